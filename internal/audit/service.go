package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// ErrAccessDenied is returned when the actor may not view the audit
// trail.
var ErrAccessDenied = fmt.Errorf("audit: %w", httpx.ErrForbidden)

// RolePort resolves the actor's role on a business.
type RolePort interface {
	RoleOf(ctx context.Context, userID, businessID int64) (business.Role, bool, error)
}

// Repository reads the append-only audit log.
type Repository interface {
	ListForBusiness(ctx context.Context, businessID int64, p shared.Pagination) ([]shared.AuditLog, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListForBusiness(ctx context.Context, businessID int64, p shared.Pagination) ([]shared.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT actor_id, COALESCE(business_id, 0), action, entity, entity_id, COALESCE(details, '{}'), occurred_at
FROM audit_logs
WHERE business_id = $1
ORDER BY occurred_at DESC
LIMIT $2 OFFSET $3`, businessID, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.AuditLog
	for rows.Next() {
		var log shared.AuditLog
		var details []byte
		if err := rows.Scan(&log.ActorID, &log.BusinessID, &log.Action, &log.Entity, &log.EntityID, &details, &log.At); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &log.Details); err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// Service serves the audit timeline. Reads are restricted to
// manage-capable roles; writes happen through shared.AuditLogger.
type Service struct {
	repo  Repository
	roles RolePort
}

// NewService builds a Service instance.
func NewService(repo Repository, roles RolePort) *Service {
	return &Service{repo: repo, roles: roles}
}

// Timeline returns a page of a business's audit entries, newest
// first.
func (s *Service) Timeline(ctx context.Context, actor shared.Actor, businessID int64, p shared.Pagination) ([]shared.AuditLog, error) {
	role, ok, err := s.roles.RoleOf(ctx, actor.ID, businessID)
	if err != nil {
		return nil, err
	}
	if !ok || !role.CanManage() {
		return nil, ErrAccessDenied
	}
	return s.repo.ListForBusiness(ctx, businessID, p)
}
