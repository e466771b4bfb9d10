// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing user supplied amounts and
// formatting signed values for display.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. The
// magnitude of the parsed number is used, so "-12.5" yields 12.5; the sign of
// a transaction comes from its type. Zero, NaN and infinities are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-5")    -> 5, nil
//	ParseAmount("0")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if isHex(s) {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	v = math.Abs(v)
	if err := ValidateAmount(v); err != nil {
		return 0, err
	}
	return v, nil
}

// isHex reports a hexadecimal literal, which ParseFloat would otherwise accept.
func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// FormatCurrency renders v as US dollars with an explicit sign, e.g.
// "+$1,000.00" or "-$200.00". Values that round to zero carry no sign.
func FormatCurrency(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "$0.00"
	}
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsZero() {
		return "$0.00"
	}
	sign := "+"
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
	return sign + "$" + groupThousands(whole) + "." + frac
}

// FormatUnsigned is FormatCurrency without the leading sign.
func FormatUnsigned(v float64) string {
	return strings.TrimLeft(FormatCurrency(v), "+-")
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
