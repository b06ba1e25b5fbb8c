package ratesource

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	aggregatorABIJSON = `[{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`
)

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain fallback fetcher.
type ChainlinkOptions struct {
	RPCURL     string
	ETHUSDFeed string
	BTCUSDFeed string
	Timeout    time.Duration
}

// Chainlink reads USD price feeds from on-chain aggregator contracts. It is
// a fallback only: it fills BTC/ETH holes left by the HTTP ticker, and XRP
// stays HTTP-only (no canonical mainnet feed).
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChainlink builds an on-chain price feed reader.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{opts: opts, logger: logger.With().Str("component", "chainlink_source").Logger()}
}

// Fill returns the quote with nil BTC/ETH fields replaced by feed reads
// where possible. A nil input is promoted to a fresh quote when at least one
// feed answers.
func (c *Chainlink) Fill(ctx context.Context, quote *CryptoQuote) *CryptoQuote {
	out := quote
	if out == nil {
		out = &CryptoQuote{}
	}

	if out.ETHUSD == nil && c.opts.ETHUSDFeed != "" {
		if price, err := c.readFeed(ctx, c.opts.ETHUSDFeed); err != nil {
			c.logger.Warn().Err(err).Str("feed", "eth_usd").Msg("chainlink read failed")
		} else {
			out.ETHUSD = &price
		}
	}
	if out.BTCUSD == nil && c.opts.BTCUSDFeed != "" {
		if price, err := c.readFeed(ctx, c.opts.BTCUSDFeed); err != nil {
			c.logger.Warn().Err(err).Str("feed", "btc_usd").Msg("chainlink read failed")
		} else {
			out.BTCUSD = &price
		}
	}

	if quote == nil && out.BTCUSD == nil && out.ETHUSD == nil {
		return nil
	}
	return out
}

func (c *Chainlink) readFeed(ctx context.Context, feedAddr string) (float64, error) {
	if c.opts.RPCURL == "" {
		return 0, errors.New("ethereum rpc url not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	addr := common.HexToAddress(feedAddr)

	decimalsPayload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: decimalsPayload}, nil)
	if err != nil {
		return 0, err
	}
	decOut, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(decOut) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	feedDecimals, ok := decOut[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	roundPayload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return 0, err
	}
	res, err = client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: roundPayload}, nil)
	if err != nil {
		return 0, err
	}
	roundOut, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return 0, err
	}
	if len(roundOut) != 5 {
		return 0, errors.New("unexpected latestRoundData response")
	}
	answer, ok := roundOut[1].(*big.Int)
	if !ok {
		return 0, errors.New("failed to decode latestRoundData answer")
	}
	if answer.Sign() <= 0 {
		return 0, errors.New("feed answered non-positive price")
	}

	price := decimal.NewFromBigInt(answer, -int32(feedDecimals))
	return price.InexactFloat64(), nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}
