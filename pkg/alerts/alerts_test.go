package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gastos/pkg/money"
)

var now = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

func newTestEvaluator() *Evaluator {
	return New(WithClock(func() time.Time { return now }))
}

func totals(vs ...int64) []Receipt {
	out := make([]Receipt, len(vs))
	for i, v := range vs {
		out[i] = Receipt{Total: money.Amount(v), Category: "Alimentación", Date: now}
	}
	return out
}

func TestCalculateSpendingPattern(t *testing.T) {
	t.Parallel()

	require.Equal(t, Pattern{}, CalculateSpendingPattern(nil))

	p := CalculateSpendingPattern(totals(2, 4, 4, 4, 5, 5, 7, 9))
	require.InDelta(t, 5.0, p.Average, 1e-9)
	require.InDelta(t, 2.0, p.StandardDeviation, 1e-9)
}

func TestCalculateSpendingPatternProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int64Range(1, int64(money.MaxReceiptTotal)).Draw(t, "v")
		n := rapid.IntRange(1, 50).Draw(t, "n")
		rs := make([]Receipt, n)
		for i := range rs {
			rs[i] = Receipt{Total: money.Amount(v)}
		}
		p := CalculateSpendingPattern(rs)
		if p.StandardDeviation != 0 {
			t.Fatalf("constant totals gave std %v", p.StandardDeviation)
		}
		amount := rapid.Int64Range(0, int64(money.MaxReceiptTotal)).Draw(t, "amount")
		if New().IsUnusualSpending(money.Amount(amount), p) {
			t.Fatalf("zero deviation flagged %d as unusual", amount)
		}
	})
}

func TestIsUnusualSpending(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator()
	p := Pattern{Average: 10000, StandardDeviation: 1000}
	require.False(t, e.IsUnusualSpending(12000, p))
	require.True(t, e.IsUnusualSpending(12001, p))
	require.True(t, e.IsUnusualSpending(7000, p))
	require.False(t, e.IsUnusualSpending(1_000_000, Pattern{Average: 10}))

	strict := New(WithSigma(1))
	require.True(t, strict.IsUnusualSpending(11500, p))
}

func TestCalculateCategoryPattern(t *testing.T) {
	t.Parallel()

	rs := []Receipt{
		{Total: 1000, Category: "Salud"},
		{Total: 3000, Category: "Salud"},
		{Total: 99000, Category: "Transporte"},
	}
	p := CalculateCategoryPattern(rs, "Salud")
	require.InDelta(t, 2000.0, p.Average, 1e-9)
	require.InDelta(t, 1000.0, p.StandardDeviation, 1e-9)
	require.Equal(t, Pattern{}, CalculateCategoryPattern(rs, "Oficina"))
}

func TestCalculateFrequencyPattern(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator()
	rs := []Receipt{
		{Date: now},
		{Date: now.Add(-23 * time.Hour)},
		{Date: now.AddDate(0, 0, -3)},
		{Date: now.AddDate(0, 0, -7)},
		{Date: now.AddDate(0, 0, -20)},
		{Date: now.AddDate(0, 0, -31)},
		{Date: now.Add(time.Hour)},
	}
	require.Equal(t, 2, e.CalculateFrequencyPattern(rs, Daily))
	require.Equal(t, 4, e.CalculateFrequencyPattern(rs, Weekly))
	require.Equal(t, 5, e.CalculateFrequencyPattern(rs, Monthly))
	require.Equal(t, 0, e.CalculateFrequencyPattern(rs, Timeframe("YEARLY")))

	custom := New(WithClock(func() time.Time { return now }), WithWindows(map[Timeframe]int{Weekly: 3}))
	require.Equal(t, 3, custom.CalculateFrequencyPattern(rs, Weekly))
}

func TestCheckAlertRuleFrequency(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator()
	rule := Rule{Type: TypeFrequency, Threshold: 3, Timeframe: Daily, IsActive: true}
	require.True(t, e.CheckAlertRule(rule, totals(1, 2, 3, 4), Receipt{}))
	require.False(t, e.CheckAlertRule(rule, totals(1, 2), Receipt{}))
	require.False(t, e.CheckAlertRule(rule, totals(1, 2, 3), Receipt{}))
}

func TestFrequencyCountsCalendarDays(t *testing.T) {
	t.Parallel()

	santiago := time.FixedZone("CLT", -3*60*60)
	evening := time.Date(2024, 3, 15, 22, 0, 0, 0, santiago)
	stored := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	today := []Receipt{{Date: stored}, {Date: stored}, {Date: stored}, {Date: stored}}
	rule := Rule{Type: TypeFrequency, Threshold: 3, Timeframe: Daily, IsActive: true}

	tests := []struct {
		name string
		e    *Evaluator
		want int
	}{
		{"clock zone", New(WithClock(func() time.Time { return evening })), 4},
		{"utc clock with location", New(WithClock(func() time.Time { return evening.UTC() }), WithLocation(santiago)), 4},
		{"just after midnight", New(WithClock(func() time.Time { return evening.Add(2 * time.Hour) })), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.e.CalculateFrequencyPattern(today, Daily))
			require.Equal(t, tt.want > 3, tt.e.CheckAlertRule(rule, today, Receipt{}))
		})
	}

	weekly := New(WithClock(func() time.Time { return evening }))
	week := []Receipt{{Date: stored.AddDate(0, 0, -6)}, {Date: stored.AddDate(0, 0, -7)}}
	require.Equal(t, 1, weekly.CalculateFrequencyPattern(week, Weekly))
}

func TestCheckAlertRuleAmount(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator()
	history := totals(9000, 10000, 11000, 10000, 9000, 11000)
	rule := Rule{Type: TypeAmount, IsActive: true}
	require.True(t, e.CheckAlertRule(rule, history, Receipt{Total: 50000}))
	require.False(t, e.CheckAlertRule(rule, history, Receipt{Total: 10500}))
	require.False(t, e.CheckAlertRule(rule, nil, Receipt{Total: 50000}))
}

func TestCheckAlertRuleCategory(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator()
	history := []Receipt{
		{Total: 5000, Category: "Salud"},
		{Total: 6000, Category: "Salud"},
		{Total: 5500, Category: "Salud"},
		{Total: 900000, Category: "Transporte"},
	}
	rule := Rule{Type: TypeCategory, Category: "Salud", IsActive: true}
	require.True(t, e.CheckAlertRule(rule, history, Receipt{Total: 40000, Category: "Salud"}))
	require.False(t, e.CheckAlertRule(rule, history, Receipt{Total: 40000, Category: "Transporte"}))
	require.False(t, e.CheckAlertRule(rule, history, Receipt{Total: 5600, Category: "Salud"}))
}

func TestCheckAlertRuleUnknownType(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator()
	rule := Rule{Type: RuleType("BUDGET"), Threshold: 0, Timeframe: Daily, IsActive: true}
	require.False(t, e.CheckAlertRule(rule, totals(1, 2, 3, 4, 5), Receipt{Total: 1_000_000}))
}

func TestEvaluateSkipsInactive(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator()
	rules := []Rule{
		{ID: 1, Type: TypeFrequency, Threshold: 1, Timeframe: Daily, IsActive: false},
		{ID: 2, Type: TypeFrequency, Threshold: 1, Timeframe: Daily, IsActive: true},
		{ID: 3, Type: TypeAmount, IsActive: true},
	}
	got := e.Evaluate(rules, totals(1000, 1000), Receipt{Total: 1000})
	require.Len(t, got, 1)
	require.Equal(t, uint(2), got[0].Rule.ID)
	require.Equal(t, "2 boletas en el periodo DAILY (límite 1)", got[0].Message)
}

func TestRuleValid(t *testing.T) {
	t.Parallel()

	require.True(t, Rule{Type: TypeAmount}.Valid())
	require.False(t, Rule{Type: TypeCategory}.Valid())
	require.True(t, Rule{Type: TypeCategory, Category: "Salud"}.Valid())
	require.False(t, Rule{Type: TypeFrequency, Timeframe: "HOURLY"}.Valid())
	require.False(t, Rule{Type: "OTHER"}.Valid())
}
