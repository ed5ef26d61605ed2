// Package money holds the integer currency type used for receipt totals and
// the Chilean-locale parser that turns OCR'd numbers into it.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a whole number of pesos. Receipts never carry fractional CLP.
type Amount int64

// MaxReceiptTotal is the largest total accepted from extraction.
const MaxReceiptTotal Amount = 10_000_000

var (
	ErrEmpty    = errors.New("empty amount")
	ErrNoDigits = errors.New("no digits in amount")
)

// Parse converts a Chilean-formatted number into a decimal.
//
// When the string has a comma, dots are thousands separators and the last
// comma is the decimal point ("44.995,50" -> 44995.50). Without a comma every
// dot is a thousands separator ("44.995" -> 44995). Currency markers, spaces
// and signs are ignored.
func Parse(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, s)
	if onlyDigits(s) == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNoDigits, raw)
	}

	var intPart, fracPart string
	if i := strings.LastIndex(s, ","); i >= 0 {
		intPart = onlyDigits(s[:i])
		fracPart = onlyDigits(s[i+1:])
	} else {
		intPart = onlyDigits(s)
	}
	if intPart == "" {
		intPart = "0"
	}
	num := intPart
	if fracPart != "" {
		num += "." + fracPart
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d, nil
}

// ParseAmount parses raw with Parse and rounds half away from zero.
func ParseAmount(raw string) (Amount, error) {
	d, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	return FromDecimal(d), nil
}

// FromDecimal rounds d to whole pesos, half away from zero.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Round(0).IntPart())
}

// FromFloat rounds f to whole pesos.
func FromFloat(f float64) Amount {
	return FromDecimal(decimal.NewFromFloat(f))
}

// InReceiptRange reports whether a is a plausible receipt total: (0, MaxReceiptTotal].
func (a Amount) InReceiptRange() bool {
	return a > 0 && a <= MaxReceiptTotal
}

// Float64 returns a as a float for statistics.
func (a Amount) Float64() float64 {
	return float64(a)
}

// String formats a the way Chilean receipts print it: "$44.995".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + Group(strconv.FormatInt(v, 10))
}

// Group inserts dot thousands separators into a digit string.
func Group(ds string) string {
	n := len(ds)
	if n <= 3 {
		return ds
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(ds[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(ds[i : i+3])
	}
	return b.String()
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
