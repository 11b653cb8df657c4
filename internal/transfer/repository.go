package transfer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for transfers and the
// pairwise balance ledger. Mutations happen through WithTx so the
// transfer record, the balance upsert and the mirrored ledger writes
// commit or roll back together.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, businessIDs []int64, filters ListFilters) ([]Transfer, error)
	BalancesAmong(ctx context.Context, businessIDs []int64) ([]BalanceRow, error)
	ListOverdueLoans(ctx context.Context, businessIDs []int64, asOf time.Time) ([]Transfer, error)
	ListSchedule(ctx context.Context, transferID int64) ([]ScheduleEntry, error)
	MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error)
}

// TxRepository exposes the writes available within one transaction.
type TxRepository interface {
	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	ApplyRepayment(ctx context.Context, id int64, amountPaid decimal.Decimal, status Status) error
	SoftDeleteTransfer(ctx context.Context, id, actorID int64, at time.Time) error
	UpsertBalance(ctx context.Context, businessA, businessB int64, delta decimal.Decimal) (decimal.Decimal, error)
	InsertMirrorRecord(ctx context.Context, rec MirrorRecord) error
	InsertScheduleEntries(ctx context.Context, transferID int64, entries []ScheduleEntry) error
}

// MirrorRecord is one side of a transfer reflected into a business's
// own transaction ledger.
type MirrorRecord struct {
	BusinessID      int64
	CategoryID      int64
	Type            string
	Amount          decimal.Decimal
	Date            time.Time
	Description     string
	ReferenceNumber string
	CreatedBy       int64
}

// ListFilters narrows transfer listings.
type ListFilters struct {
	Type         Type
	Status       Status
	FromBusiness int64
	ToBusiness   int64
	StartDate    *time.Time
	EndDate      *time.Time
}

var errTransferMissing = errors.New("transfer: not found")

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const transferColumns = `id, from_business_id, to_business_id, transaction_type, amount, amount_paid, status, date, due_date, purpose, COALESCE(category, ''), priority, COALESCE(notes, ''), created_by, created_at, updated_at, is_deleted, deleted_at, deleted_by`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.FromBusinessID, &t.ToBusinessID, &t.Type, &t.Amount, &t.AmountPaid,
		&t.Status, &t.Date, &t.DueDate, &t.Purpose, &t.Category, &t.Priority, &t.Notes,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.IsDeleted, &t.DeletedAt, &t.DeletedBy)
	return t, err
}

func (r *repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM inter_business_transactions WHERE id=$1 AND is_deleted=FALSE`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, errTransferMissing
		}
		return Transfer{}, err
	}
	return t, nil
}

func (r *repository) ListTransfers(ctx context.Context, businessIDs []int64, filters ListFilters) ([]Transfer, error) {
	if len(businessIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + transferColumns + ` FROM inter_business_transactions
WHERE is_deleted=FALSE AND from_business_id = ANY($1) AND to_business_id = ANY($1)`
	args := []any{businessIDs}
	argCount := 1

	add := func(clause string, value any) {
		argCount++
		query += clause + strconv.Itoa(argCount)
		args = append(args, value)
	}
	if filters.Type.Valid() {
		add(` AND transaction_type = $`, filters.Type)
	}
	if filters.Status != "" {
		add(` AND status = $`, filters.Status)
	}
	if filters.FromBusiness > 0 {
		add(` AND from_business_id = $`, filters.FromBusiness)
	}
	if filters.ToBusiness > 0 {
		add(` AND to_business_id = $`, filters.ToBusiness)
	}
	if filters.StartDate != nil {
		add(` AND date >= $`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		add(` AND date <= $`, *filters.EndDate)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) BalancesAmong(ctx context.Context, businessIDs []int64) ([]BalanceRow, error) {
	if len(businessIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT business_a_id, business_b_id, net_balance, last_updated
FROM inter_business_balances
WHERE business_a_id = ANY($1) AND business_b_id = ANY($1) AND net_balance <> 0
ORDER BY business_a_id, business_b_id`, businessIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceRow
	for rows.Next() {
		var b BalanceRow
		if err := rows.Scan(&b.BusinessA, &b.BusinessB, &b.NetBalance, &b.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) ListOverdueLoans(ctx context.Context, businessIDs []int64, asOf time.Time) ([]Transfer, error) {
	if len(businessIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM inter_business_transactions
WHERE is_deleted=FALSE
  AND transaction_type='loan'
  AND status IN ('pending','partially_paid')
  AND due_date IS NOT NULL AND due_date < $2
  AND (from_business_id = ANY($1) OR to_business_id = ANY($1))
ORDER BY due_date ASC`, businessIDs, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const scheduleColumns = `id, transfer_id, installment_number, due_date, amount_due, amount_paid, paid_date, is_paid, is_overdue, late_fee`

func (r *repository) ListSchedule(ctx context.Context, transferID int64) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM repayment_schedules WHERE transfer_id=$1 ORDER BY due_date ASC`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.ID, &e.TransferID, &e.InstallmentNumber, &e.DueDate, &e.AmountDue,
			&e.AmountPaid, &e.PaidDate, &e.IsPaid, &e.IsOverdue, &e.LateFee); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkOverdueInstallments flips the overdue flag on unpaid
// installments whose due date has passed. Used by the background
// scan; touches nothing else.
func (r *repository) MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE repayment_schedules
SET is_overdue=TRUE
WHERE is_paid=FALSE AND is_overdue=FALSE AND due_date < $1`, asOf)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO inter_business_transactions
(from_business_id, to_business_id, transaction_type, amount, amount_paid, status, date, due_date, purpose, category, priority, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, NULLIF($12, ''), $13)
RETURNING `+transferColumns,
		t.FromBusinessID, t.ToBusinessID, t.Type, t.Amount, t.AmountPaid, t.Status, t.Date,
		t.DueDate, t.Purpose, t.Category, t.Priority, t.Notes, t.CreatedBy)
	return scanTransfer(row)
}

// GetTransferForUpdate locks the transfer row so concurrent
// repayments against the same transfer serialize on the remaining
// balance check.
func (r *txRepository) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM inter_business_transactions WHERE id=$1 AND is_deleted=FALSE FOR UPDATE`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, errTransferMissing
		}
		return Transfer{}, err
	}
	return t, nil
}

func (r *txRepository) ApplyRepayment(ctx context.Context, id int64, amountPaid decimal.Decimal, status Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inter_business_transactions
SET amount_paid=$2, status=$3, updated_at=NOW()
WHERE id=$1 AND is_deleted=FALSE`, id, amountPaid, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errTransferMissing
	}
	return nil
}

func (r *txRepository) SoftDeleteTransfer(ctx context.Context, id, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inter_business_transactions
SET is_deleted=TRUE, deleted_at=$2, deleted_by=$3, updated_at=NOW()
WHERE id=$1 AND is_deleted=FALSE`, id, at, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errTransferMissing
	}
	return nil
}

// UpsertBalance is the sole writer of net_balance. The addition
// happens in one statement so concurrent writers on the same pair
// serialize on the row lock instead of losing updates. Callers must
// pass the pair in canonical order.
func (r *txRepository) UpsertBalance(ctx context.Context, businessA, businessB int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var net decimal.Decimal
	err := r.tx.QueryRow(ctx, `INSERT INTO inter_business_balances (business_a_id, business_b_id, net_balance, last_updated)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (business_a_id, business_b_id)
DO UPDATE SET net_balance = inter_business_balances.net_balance + EXCLUDED.net_balance, last_updated = NOW()
RETURNING net_balance`, businessA, businessB, delta).Scan(&net)
	if err != nil {
		return decimal.Zero, err
	}
	return net, nil
}

func (r *txRepository) InsertMirrorRecord(ctx context.Context, rec MirrorRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transactions (business_id, category_id, type, amount, date, description, reference_number, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.BusinessID, rec.CategoryID, rec.Type, rec.Amount, rec.Date, rec.Description, rec.ReferenceNumber, rec.CreatedBy)
	return err
}

func (r *txRepository) InsertScheduleEntries(ctx context.Context, transferID int64, entries []ScheduleEntry) error {
	for _, e := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO repayment_schedules (transfer_id, installment_number, due_date, amount_due, amount_paid, is_paid, is_overdue, late_fee)
VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, $6)`,
			transferID, e.InstallmentNumber, e.DueDate, e.AmountDue, e.AmountPaid, e.LateFee); err != nil {
			return err
		}
	}
	return nil
}
