package business

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossledger/crossledger/internal/platform/db"
)

// Repository defines data access for businesses and roles.
type Repository interface {
	CreateWithOwnerRole(ctx context.Context, b Business) (Business, error)
	Get(ctx context.Context, id int64) (Business, error)
	ListForUser(ctx context.Context, userID int64) ([]Business, error)
	IDsForUser(ctx context.Context, userID int64) ([]int64, error)
	RoleOf(ctx context.Context, userID, businessID int64) (Role, bool, error)
	UpsertRole(ctx context.Context, role BusinessRole) error
	GetRole(ctx context.Context, userID, businessID int64) (BusinessRole, error)
	DeleteRole(ctx context.Context, userID, businessID int64) error
	ListRoles(ctx context.Context, businessID int64) ([]BusinessRole, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

var errRoleMissing = errors.New("business: role not found")

const businessColumns = `id, name, COALESCE(description, ''), owner_id, currency, fiscal_year_start, created_at, updated_at`

func scanBusiness(row pgx.Row) (Business, error) {
	var b Business
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.OwnerID, &b.Currency, &b.FiscalYearStart, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// CreateWithOwnerRole inserts the business and the creator's owner
// role in one transaction. The owner role is an explicit step here,
// not a side effect hidden behind the insert.
func (r *repository) CreateWithOwnerRole(ctx context.Context, b Business) (Business, error) {
	var created Business
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO businesses (name, description, owner_id, currency, fiscal_year_start)
VALUES ($1, NULLIF($2, ''), $3, $4, $5)
RETURNING `+businessColumns, b.Name, b.Description, b.OwnerID, b.Currency, b.FiscalYearStart)
		var err error
		created, err = scanBusiness(row)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO business_roles (user_id, business_id, role, assigned_by, assigned_at)
VALUES ($1, $2, $3, $1, $4)`, b.OwnerID, created.ID, RoleOwner, time.Now())
		return err
	})
	if err != nil {
		return Business{}, err
	}
	return created, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Business, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id=$1`, id)
	b, err := scanBusiness(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Business{}, ErrNotFound
		}
		return Business{}, err
	}
	return b, nil
}

func (r *repository) ListForUser(ctx context.Context, userID int64) ([]Business, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.id, b.name, COALESCE(b.description, ''), b.owner_id, b.currency, b.fiscal_year_start, b.created_at, b.updated_at
FROM businesses b
JOIN business_roles br ON br.business_id = b.id
WHERE br.user_id = $1
ORDER BY b.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) IDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT business_id FROM business_roles WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) RoleOf(ctx context.Context, userID, businessID int64) (Role, bool, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT role FROM business_roles WHERE user_id=$1 AND business_id=$2`, userID, businessID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return role, true, nil
}

func (r *repository) UpsertRole(ctx context.Context, role BusinessRole) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO business_roles (user_id, business_id, role, assigned_by, assigned_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, business_id) DO UPDATE SET role = EXCLUDED.role, assigned_by = EXCLUDED.assigned_by, assigned_at = EXCLUDED.assigned_at`,
		role.UserID, role.BusinessID, role.Role, role.AssignedBy, role.AssignedAt)
	return err
}

func (r *repository) GetRole(ctx context.Context, userID, businessID int64) (BusinessRole, error) {
	var br BusinessRole
	err := r.pool.QueryRow(ctx, `SELECT user_id, business_id, role, assigned_at, COALESCE(assigned_by, 0)
FROM business_roles WHERE user_id=$1 AND business_id=$2`, userID, businessID).
		Scan(&br.UserID, &br.BusinessID, &br.Role, &br.AssignedAt, &br.AssignedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BusinessRole{}, errRoleMissing
		}
		return BusinessRole{}, err
	}
	return br, nil
}

func (r *repository) DeleteRole(ctx context.Context, userID, businessID int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM business_roles WHERE user_id=$1 AND business_id=$2 AND role <> 'owner'`, userID, businessID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errRoleMissing
	}
	return nil
}

func (r *repository) ListRoles(ctx context.Context, businessID int64) ([]BusinessRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, business_id, role, assigned_at, COALESCE(assigned_by, 0)
FROM business_roles WHERE business_id=$1 ORDER BY assigned_at ASC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BusinessRole
	for rows.Next() {
		var br BusinessRole
		if err := rows.Scan(&br.UserID, &br.BusinessID, &br.Role, &br.AssignedAt, &br.AssignedBy); err != nil {
			return nil, err
		}
		out = append(out, br)
	}
	return out, rows.Err()
}
