package report

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money renders a currency amount rounded to cents with thousands separators.
func Money(v float64) string {
	if !finite(v) {
		return "n/a"
	}
	return groupThousands(decimal.NewFromFloat(v).StringFixed(2))
}

// Percent renders a ratio as a percentage with two decimals (0.0525 → "5.25%").
func Percent(r float64) string {
	if !finite(r) {
		return "n/a"
	}
	return decimal.NewFromFloat(r).Shift(2).StringFixed(2) + "%"
}

// Factor renders a discount factor to four decimals.
func Factor(f float64) string {
	if !finite(f) {
		return "n/a"
	}
	return decimal.NewFromFloat(f).StringFixed(4)
}

// Multiple renders a valuation multiple such as TV / EBIT.
func Multiple(m float64) string {
	if !finite(m) {
		return "n/a"
	}
	return decimal.NewFromFloat(m).StringFixed(1) + "x"
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
