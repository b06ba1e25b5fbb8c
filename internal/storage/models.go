package storage

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ReportSample is one persisted report cycle. Nil fields map to NULL
// columns and correspond to values the cycle rendered as N/A.
type ReportSample struct {
	CycleTS time.Time

	GoldOunceUSD   *decimal.Decimal
	SilverOunceUSD *decimal.Decimal
	BTCUSD         *decimal.Decimal
	ETHUSD         *decimal.Decimal
	XRPUSD         *decimal.Decimal
	USDPerEUR100   *decimal.Decimal
	USDPerGBP100   *decimal.Decimal

	Unit21KUSD      *decimal.Decimal
	Bar1KgUSD       *decimal.Decimal
	SilverBar1KgUSD *decimal.Decimal

	Status    string
	Error     *string
	CreatedAt time.Time
}

// DeliveryRecord captures one send-with-retry outcome for auditing.
type DeliveryRecord struct {
	ID        int64
	CycleTS   time.Time
	Attempts  int
	Outcome   string
	Error     *string
	CreatedAt time.Time
}

// DecimalFromFloat converts a cycle value to its nullable column form.
// NaN marks a missing upstream value and becomes NULL.
func DecimalFromFloat(v float64) *decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	d := decimal.NewFromFloat(v)
	return &d
}

// DecimalFromPtr converts an optional quote to its nullable column form.
func DecimalFromPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	return DecimalFromFloat(*v)
}
