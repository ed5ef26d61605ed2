// Package alerts evaluates user alert rules against a user's receipt history.
// Everything here is a pure function over in-memory data.
package alerts

import (
	"fmt"
	"math"
	"time"

	"gastos/pkg/money"
)

// RuleType selects how a rule is evaluated.
type RuleType string

const (
	TypeAmount    RuleType = "AMOUNT"
	TypeCategory  RuleType = "CATEGORY"
	TypeFrequency RuleType = "FREQUENCY"
)

// Timeframe is the look-back window of a frequency rule.
type Timeframe string

const (
	Daily   Timeframe = "DAILY"
	Weekly  Timeframe = "WEEKLY"
	Monthly Timeframe = "MONTHLY"
)

// DefaultSigma is the number of standard deviations that marks a total as unusual.
const DefaultSigma = 2.0

// DefaultWindows maps each timeframe to a fixed day count. MONTHLY is 30 days, not a calendar month.
var DefaultWindows = map[Timeframe]int{
	Daily:   1,
	Weekly:  7,
	Monthly: 30,
}

// Rule is a user-defined alert.
type Rule struct {
	ID        uint      `json:"id,omitempty"`
	Type      RuleType  `json:"type"`
	Threshold float64   `json:"threshold"`
	Category  string    `json:"category,omitempty"`
	Timeframe Timeframe `json:"timeframe"`
	IsActive  bool      `json:"is_active"`
}

// Receipt is the slice of a stored receipt the evaluator needs.
type Receipt struct {
	Total    money.Amount
	Category string
	Date     time.Time
}

// Pattern summarizes historical totals.
type Pattern struct {
	Average           float64 `json:"average"`
	StandardDeviation float64 `json:"standard_deviation"`
}

// Triggered is a rule that fired for a new receipt.
type Triggered struct {
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

// Evaluator checks rules. The zero value is not usable; use New.
type Evaluator struct {
	sigma   float64
	windows map[Timeframe]int
	now     func() time.Time
	loc     *time.Location
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSigma sets the anomaly threshold in standard deviations.
func WithSigma(s float64) Option {
	return func(e *Evaluator) {
		if s > 0 {
			e.sigma = s
		}
	}
}

// WithWindows overrides the day count of each timeframe.
func WithWindows(w map[Timeframe]int) Option {
	return func(e *Evaluator) { e.windows = w }
}

// WithClock sets the clock used for frequency windows.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLocation sets the zone that decides which calendar day "today" is.
// The clock's own zone is used when unset.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) { e.loc = loc }
}

// New returns an Evaluator with the two-sigma rule and 1/7/30 day windows.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{sigma: DefaultSigma, windows: DefaultWindows, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CalculateSpendingPattern returns the mean and population standard
// deviation of the receipt totals. An empty list yields {0, 0}.
func CalculateSpendingPattern(receipts []Receipt) Pattern {
	n := len(receipts)
	if n == 0 {
		return Pattern{}
	}
	var sum float64
	for _, r := range receipts {
		sum += r.Total.Float64()
	}
	avg := sum / float64(n)
	var sq float64
	for _, r := range receipts {
		d := r.Total.Float64() - avg
		sq += d * d
	}
	return Pattern{Average: avg, StandardDeviation: math.Sqrt(sq / float64(n))}
}

// CalculateCategoryPattern is CalculateSpendingPattern over receipts of one category.
func CalculateCategoryPattern(receipts []Receipt, category string) Pattern {
	var in []Receipt
	for _, r := range receipts {
		if r.Category == category {
			in = append(in, r)
		}
	}
	return CalculateSpendingPattern(in)
}

// IsUnusualSpending reports whether amount is more than sigma standard
// deviations away from the average. A zero deviation is never unusual.
func (e *Evaluator) IsUnusualSpending(amount money.Amount, p Pattern) bool {
	if p.StandardDeviation == 0 {
		return false
	}
	return math.Abs(amount.Float64()-p.Average)/p.StandardDeviation > e.sigma
}

// CalculateFrequencyPattern counts receipts dated within the last N calendar
// days, today included. Receipt dates are calendar dates, so only their
// year, month and day are compared. An unknown timeframe counts nothing.
func (e *Evaluator) CalculateFrequencyPattern(receipts []Receipt, tf Timeframe) int {
	days, ok := e.windows[tf]
	if !ok || days <= 0 {
		return 0
	}
	now := e.now()
	if e.loc != nil {
		now = now.In(e.loc)
	}
	today := civilDay(now)
	from := today.AddDate(0, 0, -(days - 1))
	count := 0
	for _, r := range receipts {
		d := civilDay(r.Date)
		if !d.Before(from) && !d.After(today) {
			count++
		}
	}
	return count
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CheckAlertRule evaluates one rule against history and the receipt being
// saved. Unknown rule types never fire.
func (e *Evaluator) CheckAlertRule(rule Rule, receipts []Receipt, newReceipt Receipt) bool {
	switch rule.Type {
	case TypeAmount:
		return e.IsUnusualSpending(newReceipt.Total, CalculateSpendingPattern(receipts))
	case TypeCategory:
		if newReceipt.Category != rule.Category {
			return false
		}
		return e.IsUnusualSpending(newReceipt.Total, CalculateCategoryPattern(receipts, rule.Category))
	case TypeFrequency:
		return float64(e.CalculateFrequencyPattern(receipts, rule.Timeframe)) > rule.Threshold
	default:
		return false
	}
}

// Evaluate checks every active rule and returns those that fired.
func (e *Evaluator) Evaluate(rules []Rule, receipts []Receipt, newReceipt Receipt) []Triggered {
	var out []Triggered
	for _, r := range rules {
		if !r.IsActive || !e.CheckAlertRule(r, receipts, newReceipt) {
			continue
		}
		out = append(out, Triggered{Rule: r, Message: e.message(r, receipts, newReceipt)})
	}
	return out
}

func (e *Evaluator) message(r Rule, receipts []Receipt, nr Receipt) string {
	switch r.Type {
	case TypeAmount:
		p := CalculateSpendingPattern(receipts)
		return fmt.Sprintf("Gasto inusual: %s frente a un promedio de %s", nr.Total, money.FromFloat(p.Average))
	case TypeCategory:
		p := CalculateCategoryPattern(receipts, r.Category)
		return fmt.Sprintf("Gasto inusual en %s: %s frente a un promedio de %s", r.Category, nr.Total, money.FromFloat(p.Average))
	case TypeFrequency:
		n := e.CalculateFrequencyPattern(receipts, r.Timeframe)
		return fmt.Sprintf("%d boletas en el periodo %s (límite %g)", n, r.Timeframe, r.Threshold)
	}
	return ""
}

// Valid reports whether r names a known type and timeframe.
func (r Rule) Valid() bool {
	switch r.Type {
	case TypeAmount, TypeCategory, TypeFrequency:
	default:
		return false
	}
	if r.Type == TypeCategory && r.Category == "" {
		return false
	}
	if r.Type == TypeFrequency {
		if _, ok := DefaultWindows[r.Timeframe]; !ok {
			return false
		}
	}
	return true
}
