package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gold-rate-bot/internal/pricing"
)

// Fixed section headers, rendered exactly once each and always in this order.
const (
	HeaderTitle  = "📊 Gold & Currency Report"
	HeaderSpot   = "🌍 Spot Prices"
	HeaderGold   = "🥇 Gold Denominations"
	HeaderSilver = "🥈 Silver"
	HeaderFX     = "💱 Exchange Rates"
)

// NA is rendered in place of any value whose upstream was unavailable.
const NA = "N/A"

// Input carries everything the formatter needs. The caller supplies the
// timestamp already localised to the report zone; Build never consults the
// wall clock.
type Input struct {
	Now time.Time

	GoldOunceUSD   float64 // NaN when missing
	SilverOunceUSD float64

	BTCUSD *float64 // nil when missing
	ETHUSD *float64
	XRPUSD *float64

	Denoms pricing.Denominations

	USDPerEUR100 float64 // NaN when missing
	USDPerGBP100 float64

	Footer string
}

// Build renders the fixed-layout report. Pure: same input, same output.
func Build(in Input) string {
	var b strings.Builder

	b.WriteString(HeaderTitle + "\n")
	b.WriteString("🕒 " + in.Now.Format("2006-01-02 15:04") + " (" + in.Now.Format("MST") + ")\n")

	b.WriteString("\n" + HeaderSpot + "\n")
	writeLine(&b, "Gold ounce", fixed2(in.GoldOunceUSD))
	writeLine(&b, "Silver ounce", fixed2(in.SilverOunceUSD))
	writeLine(&b, "BTC", grouped2(in.BTCUSD))
	writeLine(&b, "ETH", grouped2(in.ETHUSD))
	writeLine(&b, "XRP", fixed4(in.XRPUSD))

	b.WriteString("\n" + HeaderGold + "\n")
	writeLine(&b, "21K 5g unit", fixed2(in.Denoms.Unit21KUSD))
	writeLine(&b, "18K 5g unit", fixed2(in.Denoms.Unit18KUSD))
	writeLine(&b, "7.2g unit (916)", fixed2(in.Denoms.Unit916USD))
	writeLine(&b, "250g bar (995)", fixed2(in.Denoms.Bar250gUSD))
	writeLine(&b, "500g bar (995)", fixed2(in.Denoms.Bar500gUSD))
	writeLine(&b, "1Kg bar (995)", fixed2(in.Denoms.Bar1KgUSD))

	b.WriteString("\n" + HeaderSilver + "\n")
	writeLine(&b, "1Kg bar", fixed2(in.Denoms.SilverBar1KgUSD))

	b.WriteString("\n" + HeaderFX + "\n")
	writeLine(&b, "100 EUR", fixed2(in.USDPerEUR100))
	writeLine(&b, "100 GBP", fixed2(in.USDPerGBP100))

	if footer := strings.TrimSpace(in.Footer); footer != "" {
		b.WriteString("\n" + footer + "\n")
	}

	return b.String()
}

func writeLine(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

// fixed2 is fixed-point display for metals, denominations, and FX values.
func fixed2(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	return fmt.Sprintf("$%.2f", v)
}

// grouped2 is thousands-separated display for large-magnitude crypto values.
func grouped2(v *float64) string {
	if v == nil {
		return NA
	}
	return "$" + humanize.CommafWithDigits(*v, 2)
}

// fixed4 keeps four decimals for sub-dollar assets.
func fixed4(v *float64) string {
	if v == nil {
		return NA
	}
	return fmt.Sprintf("$%.4f", *v)
}
