package transfer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCanonicalDelta(t *testing.T) {
	cases := []struct {
		name      string
		from, to  int64
		delta     string
		wantA     int64
		wantB     int64
		wantDelta string
	}{
		{"lower id sends", 1, 2, "500.00", 1, 2, "500.00"},
		{"higher id sends", 2, 1, "500.00", 1, 2, "-500.00"},
		{"repayment from lower", 1, 2, "-200.00", 1, 2, "-200.00"},
		{"repayment from higher", 9, 3, "-200.00", 3, 9, "200.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, b, oriented := canonicalDelta(tc.from, tc.to, money(tc.delta))
			require.Equal(t, tc.wantA, a)
			require.Equal(t, tc.wantB, b)
			require.True(t, oriented.Equal(money(tc.wantDelta)), "got %s", oriented)
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	amount := money("500.00")
	require.Equal(t, StatusPending, DeriveStatus(amount, decimal.Zero))
	require.Equal(t, StatusPartiallyPaid, DeriveStatus(amount, money("0.01")))
	require.Equal(t, StatusPartiallyPaid, DeriveStatus(amount, money("499.99")))
	require.Equal(t, StatusFullyPaid, DeriveStatus(amount, money("500.00")))
	require.Equal(t, StatusFullyPaid, DeriveStatus(amount, money("500.01")))
}

func TestRemainingBalanceClamped(t *testing.T) {
	tr := Transfer{Amount: money("100.00"), AmountPaid: money("100.00")}
	require.True(t, tr.RemainingBalance().IsZero())
	tr.AmountPaid = money("150.00")
	require.True(t, tr.RemainingBalance().IsZero())
	tr.AmountPaid = money("40.00")
	require.True(t, tr.RemainingBalance().Equal(money("60.00")))
}

func TestBalanceRowOrientation(t *testing.T) {
	row := BalanceRow{BusinessA: 1, BusinessB: 2, NetBalance: money("300.00")}

	owes, owed := row.OwedByOwedTo(1)
	require.True(t, owes.Equal(money("300.00")))
	require.True(t, owed.IsZero())

	owes, owed = row.OwedByOwedTo(2)
	require.True(t, owes.IsZero())
	require.True(t, owed.Equal(money("300.00")))

	row.NetBalance = money("-120.00")
	owes, owed = row.OwedByOwedTo(1)
	require.True(t, owes.IsZero())
	require.True(t, owed.Equal(money("120.00")))
	owes, owed = row.OwedByOwedTo(2)
	require.True(t, owes.Equal(money("120.00")))
	require.True(t, owed.IsZero())

	owes, owed = row.OwedByOwedTo(9)
	require.True(t, owes.IsZero())
	require.True(t, owed.IsZero())
}
