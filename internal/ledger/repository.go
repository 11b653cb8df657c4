package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for the transaction ledger.
type Repository interface {
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, businessID, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, businessID int64, filters ListFilters) ([]Transaction, error)
	SoftDeleteTransaction(ctx context.Context, businessID, id, actorID int64, at time.Time) (Transaction, error)
	InsertCategory(ctx context.Context, c Category) (Category, error)
	FindCategory(ctx context.Context, businessID int64, name string) (Category, bool, error)
	GetCategory(ctx context.Context, businessID, id int64) (Category, error)
	ListCategories(ctx context.Context, businessID int64) ([]Category, error)
	Summarize(ctx context.Context, businessID int64, start, end time.Time) (Summary, error)
}

// Sentinels surfaced by the repository; the service wraps them into
// the HTTP error taxonomy.
var (
	errTransactionMissing = errors.New("ledger: transaction not found")
	errCategoryMissing    = errors.New("ledger: category not found")
	errCategoryExists     = errors.New("ledger: category already exists")
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const txColumns = `id, business_id, category_id, type, amount, date, COALESCE(description, ''), COALESCE(reference_number, ''), created_by, created_at, updated_at, is_deleted, deleted_at, deleted_by`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.BusinessID, &t.CategoryID, &t.Type, &t.Amount, &t.Date,
		&t.Description, &t.ReferenceNumber, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
		&t.IsDeleted, &t.DeletedAt, &t.DeletedBy)
	return t, err
}

func (r *repository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO transactions (business_id, category_id, type, amount, date, description, reference_number, created_by)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
RETURNING `+txColumns,
		t.BusinessID, t.CategoryID, t.Type, t.Amount, t.Date, t.Description, t.ReferenceNumber, t.CreatedBy)
	return scanTransaction(row)
}

func (r *repository) GetTransaction(ctx context.Context, businessID, id int64) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1 AND business_id=$2 AND is_deleted=FALSE`, id, businessID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, errTransactionMissing
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *repository) ListTransactions(ctx context.Context, businessID int64, filters ListFilters) ([]Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE business_id=$1 AND is_deleted=FALSE`
	args := []any{businessID}
	argCount := 1

	add := func(clause string, value any) {
		argCount++
		query += clause + strconv.Itoa(argCount)
		args = append(args, value)
	}
	if filters.StartDate != nil {
		add(` AND date >= $`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		add(` AND date <= $`, *filters.EndDate)
	}
	if filters.Type.Valid() {
		add(` AND type = $`, filters.Type)
	}
	if filters.CategoryID > 0 {
		add(` AND category_id = $`, filters.CategoryID)
	}
	if filters.MinAmount != nil {
		add(` AND amount >= $`, *filters.MinAmount)
	}
	if filters.MaxAmount != nil {
		add(` AND amount <= $`, *filters.MaxAmount)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) SoftDeleteTransaction(ctx context.Context, businessID, id, actorID int64, at time.Time) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `UPDATE transactions
SET is_deleted=TRUE, deleted_at=$3, deleted_by=$4, updated_at=NOW()
WHERE id=$1 AND business_id=$2 AND is_deleted=FALSE
RETURNING `+txColumns, id, businessID, at, actorID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, errTransactionMissing
		}
		return Transaction{}, err
	}
	return t, nil
}

const categoryColumns = `id, business_id, name, type, COALESCE(description, ''), is_active, COALESCE(created_by, 0), created_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Type, &c.Description, &c.IsActive, &c.CreatedBy, &c.CreatedAt)
	return c, err
}

func (r *repository) InsertCategory(ctx context.Context, c Category) (Category, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO transaction_categories (business_id, name, type, description, created_by)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)
RETURNING `+categoryColumns, c.BusinessID, c.Name, c.Type, c.Description, c.CreatedBy)
	created, err := scanCategory(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Category{}, errCategoryExists
		}
		return Category{}, err
	}
	return created, nil
}

func (r *repository) FindCategory(ctx context.Context, businessID int64, name string) (Category, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM transaction_categories WHERE business_id=$1 AND name=$2`, businessID, name)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, false, nil
		}
		return Category{}, false, err
	}
	return c, true, nil
}

func (r *repository) GetCategory(ctx context.Context, businessID, id int64) (Category, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM transaction_categories WHERE id=$1 AND business_id=$2`, id, businessID)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, errCategoryMissing
		}
		return Category{}, err
	}
	return c, nil
}

func (r *repository) ListCategories(ctx context.Context, businessID int64) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM transaction_categories WHERE business_id=$1 AND is_active=TRUE ORDER BY name ASC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Summarize(ctx context.Context, businessID int64, start, end time.Time) (Summary, error) {
	summary := Summary{
		TotalIncome:        decimal.Zero,
		TotalExpenses:      decimal.Zero,
		PeriodStart:        start,
		PeriodEnd:          end,
		IncomeByCategory:   map[string]decimal.Decimal{},
		ExpensesByCategory: map[string]decimal.Decimal{},
	}
	rows, err := r.pool.Query(ctx, `SELECT t.type, c.name, COUNT(*), COALESCE(SUM(t.amount), 0)
FROM transactions t
JOIN transaction_categories c ON c.id = t.category_id
WHERE t.business_id=$1 AND t.is_deleted=FALSE AND t.date BETWEEN $2 AND $3
GROUP BY t.type, c.name`, businessID, start, end)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var txType TransactionType
		var categoryName string
		var count int
		var total decimal.Decimal
		if err := rows.Scan(&txType, &categoryName, &count, &total); err != nil {
			return Summary{}, err
		}
		summary.TransactionCount += count
		switch txType {
		case TypeIncome:
			summary.TotalIncome = summary.TotalIncome.Add(total)
			summary.IncomeByCategory[categoryName] = summary.IncomeByCategory[categoryName].Add(total)
		case TypeExpense:
			summary.TotalExpenses = summary.TotalExpenses.Add(total)
			summary.ExpensesByCategory[categoryName] = summary.ExpensesByCategory[categoryName].Add(total)
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	summary.NetAmount = summary.TotalIncome.Sub(summary.TotalExpenses)
	return summary, nil
}
