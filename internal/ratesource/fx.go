package ratesource

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FXOptions parameterise the FX rate table client.
type FXOptions struct {
	BaseURL string
	Timeout time.Duration
}

// FX fetches a USD-base rate table and derives inverse conversions
// (USD per 100 units of foreign currency) for EUR and GBP.
type FX struct {
	opts    FXOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewFX constructs an FX rate client.
func NewFX(opts FXOptions, logger zerolog.Logger) *FX {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://open.er-api.com"
	}

	return &FX{
		opts:    opts,
		logger:  logger.With().Str("component", "fx_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchFX retrieves the USD-base table. Both derived conversions missing
// yields nil; a single missing rate degrades to NaN.
func (f *FX) FetchFX(ctx context.Context) *FXQuote {
	endpoint := f.baseURL + "/v6/latest/USD"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("fx fetch failed")
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Msg("fx fetch failed")
		return nil
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn().Err(err).Msg("fx fetch failed")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		f.logger.Warn().Int("status", resp.StatusCode).
			Str("body", strings.TrimSpace(string(payload))).
			Msg("fx api error")
		return nil
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		f.logger.Warn().Err(err).Msg("fx response malformed")
		return nil
	}
	if len(body.Rates) == 0 {
		f.logger.Warn().Msg("fx response carried no rates table")
		return nil
	}

	quote := &FXQuote{
		USDPerEUR100: inversePer100(body.Rates, "EUR"),
		USDPerGBP100: inversePer100(body.Rates, "GBP"),
	}
	if math.IsNaN(quote.USDPerEUR100) && math.IsNaN(quote.USDPerGBP100) {
		f.logger.Warn().Msg("fx response missing both EUR and GBP")
		return nil
	}
	return quote
}

// inversePer100 turns a USD-base rate (foreign per USD) into USD per 100
// units of the foreign currency.
func inversePer100(rates map[string]float64, code string) float64 {
	rate, ok := rates[code]
	if !ok || rate <= 0 {
		return math.NaN()
	}
	return 100 / rate
}

var _ FXSource = (*FX)(nil)
