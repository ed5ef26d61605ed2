package extract

import (
	"regexp"
	"strconv"
	"time"
)

var (
	dmyRE      = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`)
	ymdRE      = regexp.MustCompile(`\b(\d{4})[/.-](\d{1,2})[/.-](\d{1,2})\b`)
	spanishRE  = regexp.MustCompile(`\b(\d{1,2})\s+de\s+([a-z]+)\.?\s+(?:de|del)\s+(\d{4})\b`)
	dmyShortRE = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2})\b`)
)

var spanishMonths = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "setiembre": time.September, "sep": time.September, "sept": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,
}

// dateRules is tried in order; the first structurally valid date wins.
var dateRules = []rule[time.Time]{
	{name: "dmy", confidence: 0.9, fn: func(text string) (time.Time, bool) {
		return scanDates(dmyRE, text, func(m []string) (int, int, int) {
			return atoi(m[3]), atoi(m[2]), atoi(m[1])
		})
	}},
	{name: "ymd", confidence: 0.85, fn: func(text string) (time.Time, bool) {
		return scanDates(ymdRE, text, func(m []string) (int, int, int) {
			return atoi(m[1]), atoi(m[2]), atoi(m[3])
		})
	}},
	{name: "spanish_month", confidence: 0.95, fn: func(text string) (time.Time, bool) {
		return scanDates(spanishRE, fold(text), func(m []string) (int, int, int) {
			mon, ok := spanishMonths[m[2]]
			if !ok {
				return 0, 0, 0
			}
			return atoi(m[3]), int(mon), atoi(m[1])
		})
	}},
	{name: "dmy_short", confidence: 0.6, fn: func(text string) (time.Time, bool) {
		return scanDates(dmyShortRE, text, func(m []string) (int, int, int) {
			return 2000 + atoi(m[3]), atoi(m[2]), atoi(m[1])
		})
	}},
}

func scanDates(re *regexp.Regexp, text string, parts func([]string) (y, m, d int)) (time.Time, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if t, ok := validDate(parts(m)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// validDate rejects out-of-range parts and days that do not exist in the month.
func validDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 1900 || y > 2100 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// ParseDate runs the date cascade over text.
func ParseDate(text string) (time.Time, bool) {
	t, _, ok := firstMatch(text, dateRules)
	return t, ok
}

func (e *Extractor) extractDate(text string, r *Result) {
	if t, rl, ok := firstMatch(text, dateRules); ok {
		r.Fields.Date = t
		r.set(FieldDate, rl.name, rl.confidence)
		return
	}
	r.Fields.Date = dateOnly(e.now())
	r.setDefault(FieldDate)
}
