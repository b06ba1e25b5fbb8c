package ratesource

import (
	"context"
	"sync"
	"time"
)

// MetalsQuote carries USD-per-troy-ounce spot prices. A NaN leg means that
// symbol could not be fetched this cycle.
type MetalsQuote struct {
	GoldOunceUSD   float64
	SilverOunceUSD float64
}

// CryptoQuote carries spot USD prices. A nil field means the symbol was
// absent from the upstream response.
type CryptoQuote struct {
	BTCUSD *float64
	ETHUSD *float64
	XRPUSD *float64
}

// FXQuote carries inverse FX conversions derived from a USD-base rate table:
// how many USD 100 units of the foreign currency buy. NaN marks a missing
// rate.
type FXQuote struct {
	USDPerEUR100 float64
	USDPerGBP100 float64
}

// RawQuote joins one cycle's upstream results. Nil pointers mean the whole
// source failed (already logged at the client boundary).
type RawQuote struct {
	Metals    *MetalsQuote
	Crypto    *CryptoQuote
	FX        *FXQuote
	FetchedAt time.Time
}

// Sources never return errors across their boundary: transport and parse
// failures are logged inside the client and surface as a nil quote.
type (
	MetalsSource interface {
		FetchMetals(ctx context.Context) *MetalsQuote
	}
	CryptoSource interface {
		FetchCrypto(ctx context.Context) *CryptoQuote
	}
	FXSource interface {
		FetchFX(ctx context.Context) *FXQuote
	}
)

// FetchAll runs the three clients concurrently and joins them, so a cycle's
// latency is the slowest upstream, not the sum.
func FetchAll(ctx context.Context, metals MetalsSource, crypto CryptoSource, fx FXSource) RawQuote {
	raw := RawQuote{FetchedAt: time.Now().UTC()}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		raw.Metals = metals.FetchMetals(ctx)
	}()
	go func() {
		defer wg.Done()
		raw.Crypto = crypto.FetchCrypto(ctx)
	}()
	go func() {
		defer wg.Done()
		raw.FX = fx.FetchFX(ctx)
	}()
	wg.Wait()

	return raw
}

// Empty reports whether every source failed this cycle.
func (r RawQuote) Empty() bool {
	return r.Metals == nil && r.Crypto == nil && r.FX == nil
}

// Partial reports whether at least one source failed this cycle.
func (r RawQuote) Partial() bool {
	return r.Metals == nil || r.Crypto == nil || r.FX == nil
}
