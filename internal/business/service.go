package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// Domain errors, wrapping the httpx sentinels so handlers can map
// them onto responses with errors.Is.
var (
	ErrNotFound         = fmt.Errorf("business: %w", httpx.ErrNotFound)
	ErrAccessDenied     = fmt.Errorf("business: %w", httpx.ErrForbidden)
	ErrInvalidCurrency  = fmt.Errorf("business: unknown currency code: %w", httpx.ErrValidation)
	ErrInvalidFiscal    = fmt.Errorf("business: fiscal year start must be 1-12: %w", httpx.ErrValidation)
	ErrNameTooShort     = fmt.Errorf("business: name must be at least 2 characters: %w", httpx.ErrValidation)
	ErrOwnerRoleLocked  = fmt.Errorf("business: the owner role cannot be removed: %w", httpx.ErrValidation)
	ErrCannotGrantOwner = fmt.Errorf("business: ownership is not transferable via role assignment: %w", httpx.ErrValidation)
)

// AuditPort is the audit sink consumed by the service.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles business and role management.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and persists a business, assigning the owner role
// to the actor in the same unit of work.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateBusinessInput) (Business, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < 2 {
		return Business{}, ErrNameTooShort
	}
	code := strings.ToUpper(strings.TrimSpace(input.Currency))
	if _, err := currency.ParseISO(code); err != nil {
		return Business{}, ErrInvalidCurrency
	}
	fiscal := input.FiscalYearStart
	if fiscal == 0 {
		fiscal = 1
	}
	if fiscal < 1 || fiscal > 12 {
		return Business{}, ErrInvalidFiscal
	}

	created, err := s.repo.CreateWithOwnerRole(ctx, Business{
		Name:            name,
		Description:     strings.TrimSpace(input.Description),
		OwnerID:         actor.ID,
		Currency:        code,
		FiscalYearStart: fiscal,
	})
	if err != nil {
		return Business{}, err
	}
	s.record(ctx, actor, created.ID, "create", "business", created.ID, map[string]any{
		"name":     created.Name,
		"currency": created.Currency,
	})
	return created, nil
}

// Get returns a business the actor holds a role on. Denied and
// missing resources produce the same error so callers cannot probe
// for other tenants' data.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Business, error) {
	role, ok, err := s.repo.RoleOf(ctx, actor.ID, id)
	if err != nil {
		return Business{}, err
	}
	if !ok || !role.Valid() {
		return Business{}, ErrAccessDenied
	}
	return s.repo.Get(ctx, id)
}

// ListForActor returns every business the actor holds a role on.
func (s *Service) ListForActor(ctx context.Context, actor shared.Actor) ([]Business, error) {
	return s.repo.ListForUser(ctx, actor.ID)
}

// RoleOf is the role-lookup collaborator used by other modules.
func (s *Service) RoleOf(ctx context.Context, userID, businessID int64) (Role, bool, error) {
	return s.repo.RoleOf(ctx, userID, businessID)
}

// BusinessIDsFor returns the ids of every business the user holds a
// role on.
func (s *Service) BusinessIDsFor(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.IDsForUser(ctx, userID)
}

// AssignRole grants or replaces a role. Only owners and admins may
// manage roles, and the owner role itself is never assignable.
func (s *Service) AssignRole(ctx context.Context, actor shared.Actor, businessID int64, input AssignRoleInput) error {
	actorRole, ok, err := s.repo.RoleOf(ctx, actor.ID, businessID)
	if err != nil {
		return err
	}
	if !ok || !actorRole.CanManage() {
		return ErrAccessDenied
	}
	role := Role(input.Role)
	if role == RoleOwner {
		return ErrCannotGrantOwner
	}
	if !role.Valid() {
		return fmt.Errorf("business: unknown role %q: %w", input.Role, httpx.ErrValidation)
	}
	if err := s.repo.UpsertRole(ctx, BusinessRole{
		UserID:     input.UserID,
		BusinessID: businessID,
		Role:       role,
		AssignedBy: actor.ID,
		AssignedAt: s.now(),
	}); err != nil {
		return err
	}
	s.record(ctx, actor, businessID, "assign", "user_role", input.UserID, map[string]any{"role": input.Role})
	return nil
}

// RemoveRole deletes a user's role on a business. Removing the owner
// role is forbidden; every business keeps exactly one owner.
func (s *Service) RemoveRole(ctx context.Context, actor shared.Actor, businessID, userID int64) error {
	actorRole, ok, err := s.repo.RoleOf(ctx, actor.ID, businessID)
	if err != nil {
		return err
	}
	if !ok || !actorRole.CanManage() {
		return ErrAccessDenied
	}
	target, err := s.repo.GetRole(ctx, userID, businessID)
	if err != nil {
		if errors.Is(err, errRoleMissing) {
			return ErrNotFound
		}
		return err
	}
	if target.Role == RoleOwner {
		return ErrOwnerRoleLocked
	}
	if err := s.repo.DeleteRole(ctx, userID, businessID); err != nil {
		if errors.Is(err, errRoleMissing) {
			return ErrNotFound
		}
		return err
	}
	s.record(ctx, actor, businessID, "remove", "user_role", userID, nil)
	return nil
}

// ListRoles returns every role on a business, owner/admin only.
func (s *Service) ListRoles(ctx context.Context, actor shared.Actor, businessID int64) ([]BusinessRole, error) {
	actorRole, ok, err := s.repo.RoleOf(ctx, actor.ID, businessID)
	if err != nil {
		return nil, err
	}
	if !ok || !actorRole.CanManage() {
		return nil, ErrAccessDenied
	}
	return s.repo.ListRoles(ctx, businessID)
}

func (s *Service) record(ctx context.Context, actor shared.Actor, businessID int64, action, entity string, entityID int64, details map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:    actor.ID,
		BusinessID: businessID,
		Action:     action,
		Entity:     entity,
		EntityID:   fmt.Sprintf("%d", entityID),
		Details:    details,
		At:         s.now(),
	})
}
