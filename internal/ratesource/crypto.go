package ratesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Upstream asset ids for the three tracked symbols (CoinGecko naming).
const (
	assetBitcoin  = "bitcoin"
	assetEthereum = "ethereum"
	assetRipple   = "ripple"
)

// CryptoOptions parameterise the crypto ticker client.
type CryptoOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Crypto fetches spot USD prices for BTC, ETH, and XRP from a simple-price
// endpoint. Any subset of the three may be absent from the response.
type Crypto struct {
	opts    CryptoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCrypto constructs a crypto ticker client.
func NewCrypto(opts CryptoOptions, logger zerolog.Logger) *Crypto {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}

	return &Crypto{
		opts:    opts,
		logger:  logger.With().Str("component", "crypto_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchCrypto retrieves the symbol-keyed ticker. A completely failed fetch
// yields nil; missing symbols stay nil inside the quote.
func (c *Crypto) FetchCrypto(ctx context.Context) *CryptoQuote {
	endpoint := fmt.Sprintf(
		"%s/api/v3/simple/price?ids=%s,%s,%s&vs_currencies=usd",
		c.baseURL, assetBitcoin, assetEthereum, assetRipple,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("crypto fetch failed")
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("crypto fetch failed")
		return nil
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("crypto fetch failed")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).
			Str("body", strings.TrimSpace(string(payload))).
			Msg("crypto api error")
		return nil
	}

	var body map[string]map[string]float64
	if err := json.Unmarshal(payload, &body); err != nil {
		c.logger.Warn().Err(err).Msg("crypto response malformed")
		return nil
	}

	quote := &CryptoQuote{
		BTCUSD: usdPrice(body, assetBitcoin),
		ETHUSD: usdPrice(body, assetEthereum),
		XRPUSD: usdPrice(body, assetRipple),
	}
	if quote.BTCUSD == nil && quote.ETHUSD == nil && quote.XRPUSD == nil {
		c.logger.Warn().Msg("crypto response carried none of the tracked symbols")
		return nil
	}
	return quote
}

func usdPrice(body map[string]map[string]float64, asset string) *float64 {
	entry, ok := body[asset]
	if !ok {
		return nil
	}
	price, ok := entry["usd"]
	if !ok || price <= 0 {
		return nil
	}
	return &price
}

var _ CryptoSource = (*Crypto)(nil)
