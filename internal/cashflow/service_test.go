package cashflow

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/shared"
	"github.com/crossledger/crossledger/internal/transfer"
)

type memRepo struct {
	received map[int64]decimal.Decimal
	sent     map[int64]decimal.Decimal
	balances []transfer.BalanceRow
	given    map[int64]int
	taken    map[int64]int
	overdue  map[int64]int
}

func newMemRepo() *memRepo {
	return &memRepo{
		received: make(map[int64]decimal.Decimal),
		sent:     make(map[int64]decimal.Decimal),
		given:    make(map[int64]int),
		taken:    make(map[int64]int),
		overdue:  make(map[int64]int),
	}
}

func (m *memRepo) SumReceived(ctx context.Context, businessID int64, start, end time.Time) (decimal.Decimal, error) {
	return m.received[businessID], nil
}

func (m *memRepo) SumSent(ctx context.Context, businessID int64, start, end time.Time) (decimal.Decimal, error) {
	return m.sent[businessID], nil
}

func (m *memRepo) BalancesTouching(ctx context.Context, businessID int64) ([]transfer.BalanceRow, error) {
	var out []transfer.BalanceRow
	for _, row := range m.balances {
		if row.BusinessA == businessID || row.BusinessB == businessID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memRepo) CountActiveLoans(ctx context.Context, businessID int64) (int, int, error) {
	return m.given[businessID], m.taken[businessID], nil
}

func (m *memRepo) CountOverdueInstallments(ctx context.Context, businessID int64, asOf time.Time) (int, error) {
	return m.overdue[businessID], nil
}

type memRoles map[[2]int64]business.Role

func (m memRoles) RoleOf(ctx context.Context, userID, businessID int64) (business.Role, bool, error) {
	role, ok := m[[2]int64{userID, businessID}]
	return role, ok, nil
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSummarize(t *testing.T) {
	repo := newMemRepo()
	repo.received[1] = money("1200.00")
	repo.sent[1] = money("700.00")
	repo.balances = []transfer.BalanceRow{
		{BusinessA: 1, BusinessB: 2, NetBalance: money("300.00")},
		{BusinessA: 1, BusinessB: 3, NetBalance: money("-150.00")},
		{BusinessA: 4, BusinessB: 5, NetBalance: money("999.00")},
	}
	repo.given[1] = 2
	repo.taken[1] = 1
	repo.overdue[1] = 3

	actor := shared.Actor{ID: 10}
	roles := memRoles{{10, 1}: business.RoleViewer}
	service := NewService(repo, roles)

	summary, err := service.Summarize(context.Background(), actor, 1, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.True(t, summary.MoneyReceived.Equal(money("1200.00")))
	require.True(t, summary.MoneySent.Equal(money("700.00")))
	require.True(t, summary.NetFlow.Equal(money("500.00")))
	require.True(t, summary.TotalOwedToOthers.Equal(money("300.00")))
	require.True(t, summary.TotalOwedByOthers.Equal(money("150.00")))
	require.Equal(t, 2, summary.ActiveLoansGiven)
	require.Equal(t, 1, summary.ActiveLoansReceived)
	require.Equal(t, 3, summary.OverdueInstallments)
}

func TestSummarizeDefaultsToCurrentMonth(t *testing.T) {
	repo := newMemRepo()
	actor := shared.Actor{ID: 10}
	roles := memRoles{{10, 1}: business.RoleOwner}
	service := NewService(repo, roles)
	now := time.Date(2026, time.September, 18, 12, 0, 0, 0, time.UTC)
	service.WithNow(func() time.Time { return now })

	summary, err := service.Summarize(context.Background(), actor, 1, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), summary.PeriodStart)
	require.Equal(t, now, summary.PeriodEnd)
}

func TestSummarizeDeniedWithoutRole(t *testing.T) {
	service := NewService(newMemRepo(), memRoles{})
	_, err := service.Summarize(context.Background(), shared.Actor{ID: 10}, 1, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrAccessDenied)
}
