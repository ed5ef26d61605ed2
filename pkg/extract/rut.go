package extract

import (
	"strconv"
	"strings"
)

// NormalizeRUT validates a Chilean RUT and returns it as "12345678-K".
// Dots, spaces and the dash are optional on input. The check digit is
// verified with the modulo 11 rule.
func NormalizeRUT(s string) (string, bool) {
	s = strings.ToUpper(strings.NewReplacer(".", "", " ", "", "-", "").Replace(strings.TrimSpace(s)))
	if len(s) < 2 || len(s) > 9 {
		return "", false
	}
	body, dv := s[:len(s)-1], s[len(s)-1:]
	n, err := strconv.Atoi(body)
	if err != nil || n <= 0 {
		return "", false
	}
	if checkDigit(n) != dv {
		return "", false
	}
	return strconv.Itoa(n) + "-" + dv, true
}

func checkDigit(n int) string {
	sum, mul := 0, 2
	for ; n > 0; n /= 10 {
		sum += (n % 10) * mul
		mul++
		if mul > 7 {
			mul = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return "0"
	case 10:
		return "K"
	default:
		return strconv.Itoa(r)
	}
}
