package trading

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice renders a dollar amount with thousands separators, "-" for nil
func FormatPrice(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac
}

// FormatPercent renders a signed percentage, "-" for nil
func FormatPercent(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	sign := ""
	if !d.IsNegative() {
		sign = "+"
	}
	return sign + d.StringFixed(2) + "%"
}
