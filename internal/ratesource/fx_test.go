package ratesource

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFXDerivesInverseRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v6/latest/USD" {
			t.Fatalf("路径错误: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": "success",
			"rates":  map[string]float64{"USD": 1, "EUR": 0.92, "GBP": 0.79},
		})
	}))
	defer srv.Close()

	f := NewFX(FXOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	quote := f.FetchFX(context.Background())
	if quote == nil {
		t.Fatal("成功响应不应返回 nil")
	}
	if got, want := quote.USDPerEUR100, 100/0.92; math.Abs(got-want) > 1e-9 {
		t.Fatalf("EUR 反算错误: got %v want %v", got, want)
	}
	if got, want := quote.USDPerGBP100, 100/0.79; math.Abs(got-want) > 1e-9 {
		t.Fatalf("GBP 反算错误: got %v want %v", got, want)
	}
}

func TestFXMissingSingleRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rates": map[string]float64{"EUR": 0.92},
		})
	}))
	defer srv.Close()

	f := NewFX(FXOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	quote := f.FetchFX(context.Background())
	if quote == nil {
		t.Fatal("单一汇率缺失仍应返回报价")
	}
	if !math.IsNaN(quote.USDPerGBP100) {
		t.Fatalf("缺失的 GBP 应为 NaN: %+v", quote)
	}
}

func TestFXEmptyTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"rates": map[string]float64{}})
	}))
	defer srv.Close()

	f := NewFX(FXOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if quote := f.FetchFX(context.Background()); quote != nil {
		t.Fatalf("空表应返回 nil, 实际 %+v", quote)
	}
}

func TestFetchAllJoinsConcurrently(t *testing.T) {
	metals := sourceFunc{metals: &MetalsQuote{GoldOunceUSD: 2650, SilverOunceUSD: 31}}
	raw := FetchAll(context.Background(), metals, metals, metals)

	if raw.Metals == nil {
		t.Fatal("metals 应有值")
	}
	if raw.Crypto != nil || raw.FX != nil {
		t.Fatalf("失败的来源应为 nil: %+v", raw)
	}
	if !raw.Partial() || raw.Empty() {
		t.Fatal("单来源失败应判定为 Partial 而非 Empty")
	}
	if raw.FetchedAt.IsZero() {
		t.Fatal("FetchedAt 应被填充")
	}
}

// sourceFunc is a stub implementing all three source interfaces.
type sourceFunc struct {
	metals *MetalsQuote
	crypto *CryptoQuote
	fx     *FXQuote
}

func (s sourceFunc) FetchMetals(context.Context) *MetalsQuote { return s.metals }
func (s sourceFunc) FetchCrypto(context.Context) *CryptoQuote { return s.crypto }
func (s sourceFunc) FetchFX(context.Context) *FXQuote         { return s.fx }
