package domain

import (
	"fmt"
	"strings"
	"time"
)

// FormatCurrency renders a value as Brazilian currency, e.g. "R$ 1.234,56".
// Negative values keep the sign before the symbol amount: "R$ -12,50".
func FormatCurrency(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := fmt.Sprintf("%.2f", v)
	parts := strings.SplitN(whole, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("R$ %s%s,%s", sign, b.String(), fracPart)
}

// FormatDate renders a timestamp the way the history shows it:
// "02/01/2006 15:04" (dd/mm/yyyy hh:mm).
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}
