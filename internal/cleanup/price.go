package cleanup

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amount matches a European or English price with exactly two decimals,
// optionally with period thousands separators ("1.299,00").
const amount = `(\d{1,3}(?:\.\d{3})+|\d+)[.,](\d{2})`

// pricePatterns are tried in order; the first match wins.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(amount + `\s*€`),
	regexp.MustCompile(`€\s*` + amount),
	regexp.MustCompile(`(?i)` + amount + `\s*(?:EUR|Euro)\b`),
	regexp.MustCompile(`(?i)Preis:\s*` + amount),
}

// ParsePrice finds the first price in text. It is the fallback used when the
// model found a physical product but no price.
func ParsePrice(text string) (decimal.Decimal, bool) {
	for _, re := range pricePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		whole := strings.ReplaceAll(m[1], ".", "")
		d, err := decimal.NewFromString(whole + "." + m[2])
		if err != nil {
			continue
		}
		return d, true
	}
	return decimal.Zero, false
}
