// Package money converts between source amount strings, fixed-point decimals
// and presentation strings.
package money

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Places is the number of decimal places amounts are reported with.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Parse reads an amount such as "1,200.50", "$1,200.50" or "(500.00)".
// An empty string parses as zero.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round rounds half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Fixed renders d with exactly two places and no separators: "1200.50".
func Fixed(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Format renders d for display with thousands separators: "1,200.50".
func Format(d decimal.Decimal) string {
	d = Round(d)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0)
	frac := d.Sub(whole).StringFixed(Places) // "0.50"
	return sign + humanize.Comma(whole.IntPart()) + frac[1:]
}

// Percent renders a ratio already scaled to percent: 12.5 -> "12.50%".
func Percent(d decimal.Decimal) string {
	return d.StringFixed(Places) + "%"
}

// PercentOf returns part/whole*100. whole must be non-zero.
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	return part.Div(whole).Mul(hundred)
}
