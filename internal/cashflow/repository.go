package cashflow

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crossledger/crossledger/internal/transfer"
)

// Repository defines the read-only queries behind a cash-flow
// summary. All queries ignore soft-deleted transfers.
type Repository interface {
	SumReceived(ctx context.Context, businessID int64, start, end time.Time) (decimal.Decimal, error)
	SumSent(ctx context.Context, businessID int64, start, end time.Time) (decimal.Decimal, error)
	BalancesTouching(ctx context.Context, businessID int64) ([]transfer.BalanceRow, error)
	CountActiveLoans(ctx context.Context, businessID int64) (given, received int, err error)
	CountOverdueInstallments(ctx context.Context, businessID int64, asOf time.Time) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) SumReceived(ctx context.Context, businessID int64, start, end time.Time) (decimal.Decimal, error) {
	return r.sumTransfers(ctx, `to_business_id`, businessID, start, end)
}

func (r *repository) SumSent(ctx context.Context, businessID int64, start, end time.Time) (decimal.Decimal, error) {
	return r.sumTransfers(ctx, `from_business_id`, businessID, start, end)
}

func (r *repository) sumTransfers(ctx context.Context, column string, businessID int64, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)
FROM inter_business_transactions
WHERE `+column+` = $1 AND is_deleted = FALSE AND date >= $2 AND date <= $3`,
		businessID, start, end).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repository) BalancesTouching(ctx context.Context, businessID int64) ([]transfer.BalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT business_a_id, business_b_id, net_balance, last_updated
FROM inter_business_balances
WHERE business_a_id = $1 OR business_b_id = $1`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.BalanceRow
	for rows.Next() {
		var b transfer.BalanceRow
		if err := rows.Scan(&b.BusinessA, &b.BusinessB, &b.NetBalance, &b.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) CountActiveLoans(ctx context.Context, businessID int64) (int, int, error) {
	var given, received int
	err := r.pool.QueryRow(ctx, `SELECT
  COUNT(*) FILTER (WHERE from_business_id = $1),
  COUNT(*) FILTER (WHERE to_business_id = $1)
FROM inter_business_transactions
WHERE transaction_type = 'loan'
  AND status IN ('pending', 'partially_paid')
  AND is_deleted = FALSE
  AND (from_business_id = $1 OR to_business_id = $1)`, businessID).Scan(&given, &received)
	if err != nil {
		return 0, 0, err
	}
	return given, received, nil
}

func (r *repository) CountOverdueInstallments(ctx context.Context, businessID int64, asOf time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM repayment_schedules rs
JOIN inter_business_transactions t ON t.id = rs.transfer_id
WHERE rs.is_paid = FALSE AND rs.due_date < $2
  AND t.is_deleted = FALSE
  AND (t.from_business_id = $1 OR t.to_business_id = $1)`, businessID, asOf).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
