package ratesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MetalsOptions parameterise the precious-metal spot client.
type MetalsOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Metals fetches gold and silver spot prices in USD per troy ounce.
// The upstream rejects default Go user agents, so a browser UA is sent.
type Metals struct {
	opts    MetalsOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMetals constructs a metals spot client.
func NewMetals(opts MetalsOptions, logger zerolog.Logger) *Metals {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.gold-api.com"
	}

	return &Metals{
		opts:    opts,
		logger:  logger.With().Str("component", "metals_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchMetals retrieves gold and silver spot prices. Either leg may be
// missing (NaN); both legs failing yields nil.
func (m *Metals) FetchMetals(ctx context.Context) *MetalsQuote {
	gold, goldErr := m.fetchSymbol(ctx, "XAU")
	silver, silverErr := m.fetchSymbol(ctx, "XAG")

	if goldErr != nil {
		m.logger.Warn().Err(goldErr).Str("symbol", "XAU").Msg("metals fetch failed")
	}
	if silverErr != nil {
		m.logger.Warn().Err(silverErr).Str("symbol", "XAG").Msg("metals fetch failed")
	}
	if goldErr != nil && silverErr != nil {
		return nil
	}

	quote := &MetalsQuote{GoldOunceUSD: math.NaN(), SilverOunceUSD: math.NaN()}
	if goldErr == nil {
		quote.GoldOunceUSD = gold
	}
	if silverErr == nil {
		quote.SilverOunceUSD = silver
	}
	return quote
}

func (m *Metals) fetchSymbol(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/price/%s", m.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("metals api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return 0, err
	}
	if body.Price <= 0 {
		return 0, fmt.Errorf("metals api returned non-positive price for %s", symbol)
	}
	return body.Price, nil
}

var _ MetalsSource = (*Metals)(nil)
