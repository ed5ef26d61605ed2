package money

import (
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"44.995", "44995"},
		{"$ 44.995", "44995"},
		{"44.995,50", "44995.5"},
		{"10.000,00", "10000"},
		{"1.234.567", "1234567"},
		{"5000", "5000"},
		{"1,5", "1.5"},
		{",50", "0.5"},
		{"44.995.", "44995"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			require.NoError(t, err)
			require.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	_, err := Parse("   ")
	require.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("$ ..,")
	require.ErrorIs(t, err, ErrNoDigits)
}

func TestParseAmountRounds(t *testing.T) {
	t.Parallel()

	a, err := ParseAmount("44.995,50")
	require.NoError(t, err)
	require.Equal(t, Amount(44996), a)

	a, err = ParseAmount("44.995,49")
	require.NoError(t, err)
	require.Equal(t, Amount(44995), a)
}

func TestInReceiptRange(t *testing.T) {
	t.Parallel()

	require.False(t, Amount(0).InReceiptRange())
	require.True(t, Amount(1).InReceiptRange())
	require.True(t, MaxReceiptTotal.InReceiptRange())
	require.False(t, (MaxReceiptTotal + 1).InReceiptRange())
}

func TestString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "$44.995", Amount(44995).String())
	require.Equal(t, "$1.234.567", Amount(1234567).String())
	require.Equal(t, "$999", Amount(999).String())
	require.Equal(t, "-$10.000", Amount(-10000).String())
}

func TestGroupedRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int64Range(0, int64(MaxReceiptTotal)).Draw(t, "n")
		printed := Group(strconv.FormatInt(n, 10))
		got, err := ParseAmount(printed)
		if err != nil {
			t.Fatalf("parse %q: %v", printed, err)
		}
		if int64(got) != n {
			t.Fatalf("round trip %d -> %q -> %d", n, printed, got)
		}
	})
}
