package pricing

import "math"

// GramsPerTroyOunce is the troy ounce to gram divisor used by the retail
// denomination table. The retail convention is 31.1, not the exact 31.1035.
const GramsPerTroyOunce = 31.1

// Purity factors and unit weights for the fixed denomination set.
const (
	purity21K = 0.875
	purity18K = 0.750
	purity916 = 0.916
	purityBar = 0.995

	unitWeight5g   = 5.0
	unitWeight7_2g = 7.2
)

// Denominations holds derived USD values for the fixed retail unit set.
// A NaN field means the corresponding spot input was unavailable.
type Denominations struct {
	GoldGramUSD float64

	// 5g karat units and the 7.2g 916-purity unit.
	Unit21KUSD float64
	Unit18KUSD float64
	Unit916USD float64

	// Bulk bars at 0.995 purity.
	Bar250gUSD float64
	Bar500gUSD float64
	Bar1KgUSD  float64

	SilverGramUSD   float64
	SilverBar1KgUSD float64
}

// GramFromOunce converts a USD-per-troy-ounce price to USD per gram.
func GramFromOunce(ouncePriceUSD float64) float64 {
	return ouncePriceUSD / GramsPerTroyOunce
}

// Normalize derives the full denomination table from gold and silver ounce
// prices. No rounding happens here; display truncation is the formatter's
// job. NaN inputs propagate into the affected fields only.
func Normalize(goldOunceUSD, silverOunceUSD float64) Denominations {
	g := GramFromOunce(goldOunceUSD)
	sg := GramFromOunce(silverOunceUSD)

	return Denominations{
		GoldGramUSD: g,

		Unit21KUSD: g * purity21K * unitWeight5g,
		Unit18KUSD: g * purity18K * unitWeight5g,
		Unit916USD: g * purity916 * unitWeight7_2g,

		Bar250gUSD: g * purityBar * 250,
		Bar500gUSD: g * purityBar * 500,
		Bar1KgUSD:  g * purityBar * 1000,

		SilverGramUSD:   sg,
		SilverBar1KgUSD: sg * 1000,
	}
}

// Missing reports whether a derived value is unavailable.
func Missing(v float64) bool {
	return math.IsNaN(v)
}
