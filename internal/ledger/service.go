package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// Domain errors surfaced to the HTTP layer.
var (
	ErrNotFound          = fmt.Errorf("ledger: %w", httpx.ErrNotFound)
	ErrAccessDenied      = fmt.Errorf("ledger: %w", httpx.ErrForbidden)
	ErrInvalidAmount     = fmt.Errorf("ledger: amount must be positive: %w", httpx.ErrValidation)
	ErrInvalidType       = fmt.Errorf("ledger: type must be income or expense: %w", httpx.ErrValidation)
	ErrCategoryMismatch  = fmt.Errorf("ledger: category does not admit this transaction type: %w", httpx.ErrValidation)
	ErrCategoryDuplicate = fmt.Errorf("ledger: category name already in use: %w", httpx.ErrDuplicate)
	ErrInvalidCategory   = fmt.Errorf("ledger: invalid category: %w", httpx.ErrValidation)
)

// RolePort resolves the actor's role on a business.
type RolePort interface {
	RoleOf(ctx context.Context, userID, businessID int64) (business.Role, bool, error)
}

// AuditPort is the audit sink consumed by the service.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles ledger business logic.
type Service struct {
	repo  Repository
	roles RolePort
	audit AuditPort
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, roles RolePort, audit AuditPort) *Service {
	return &Service{repo: repo, roles: roles, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AppendInput groups fields for recording a transaction.
type AppendInput struct {
	CategoryID      int64
	Type            TransactionType
	Amount          decimal.Decimal
	Date            time.Time
	Description     string
	ReferenceNumber string
}

// Append records an income or expense transaction. Viewers cannot
// write and employees may only record income.
func (s *Service) Append(ctx context.Context, actor shared.Actor, businessID int64, input AppendInput) (Transaction, error) {
	role, err := s.requireRole(ctx, actor, businessID)
	if err != nil {
		return Transaction{}, err
	}
	if !role.CanWriteTransactions() {
		return Transaction{}, ErrAccessDenied
	}
	if input.Type == TypeExpense && !role.CanWriteExpenses() {
		return Transaction{}, ErrAccessDenied
	}
	if !input.Type.Valid() {
		return Transaction{}, ErrInvalidType
	}
	if !input.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	category, err := s.repo.GetCategory(ctx, businessID, input.CategoryID)
	if err != nil {
		if errors.Is(err, errCategoryMissing) {
			return Transaction{}, ErrInvalidCategory
		}
		return Transaction{}, err
	}
	if !category.Type.Admits(input.Type) {
		return Transaction{}, ErrCategoryMismatch
	}
	created, err := s.repo.InsertTransaction(ctx, Transaction{
		BusinessID:      businessID,
		CategoryID:      category.ID,
		Type:            input.Type,
		Amount:          input.Amount,
		Date:            input.Date,
		Description:     strings.TrimSpace(input.Description),
		ReferenceNumber: strings.TrimSpace(input.ReferenceNumber),
		CreatedBy:       actor.ID,
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, actor, businessID, "create", "transaction", created.ID, map[string]any{
		"type":     string(created.Type),
		"amount":   created.Amount.String(),
		"category": category.Name,
	})
	return created, nil
}

// List returns a business's non-deleted transactions.
func (s *Service) List(ctx context.Context, actor shared.Actor, businessID int64, filters ListFilters) ([]Transaction, error) {
	if _, err := s.requireRole(ctx, actor, businessID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, businessID, filters)
}

// SoftDelete flags a transaction as deleted. Records are never
// removed from storage.
func (s *Service) SoftDelete(ctx context.Context, actor shared.Actor, businessID, id int64) (Transaction, error) {
	role, err := s.requireRole(ctx, actor, businessID)
	if err != nil {
		return Transaction{}, err
	}
	if !role.CanManage() {
		return Transaction{}, ErrAccessDenied
	}
	deleted, err := s.repo.SoftDeleteTransaction(ctx, businessID, id, actor.ID, s.now())
	if err != nil {
		if errors.Is(err, errTransactionMissing) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	s.record(ctx, actor, businessID, "delete", "transaction", deleted.ID, map[string]any{
		"type":   string(deleted.Type),
		"amount": deleted.Amount.String(),
	})
	return deleted, nil
}

// CreateCategory adds a category; names are unique per business.
func (s *Service) CreateCategory(ctx context.Context, actor shared.Actor, businessID int64, name string, ctype CategoryType, description string) (Category, error) {
	role, err := s.requireRole(ctx, actor, businessID)
	if err != nil {
		return Category{}, err
	}
	if !role.CanManage() {
		return Category{}, ErrAccessDenied
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, fmt.Errorf("ledger: category name required: %w", httpx.ErrValidation)
	}
	if !ctype.Valid() {
		return Category{}, fmt.Errorf("ledger: category type must be income, expense or both: %w", httpx.ErrValidation)
	}
	created, err := s.repo.InsertCategory(ctx, Category{
		BusinessID:  businessID,
		Name:        name,
		Type:        ctype,
		Description: strings.TrimSpace(description),
		CreatedBy:   actor.ID,
	})
	if err != nil {
		if errors.Is(err, errCategoryExists) {
			return Category{}, ErrCategoryDuplicate
		}
		return Category{}, err
	}
	s.record(ctx, actor, businessID, "create", "category", created.ID, map[string]any{
		"name": created.Name,
		"type": string(created.Type),
	})
	return created, nil
}

// ListCategories returns a business's active categories.
func (s *Service) ListCategories(ctx context.Context, actor shared.Actor, businessID int64) ([]Category, error) {
	if _, err := s.requireRole(ctx, actor, businessID); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, businessID)
}

// GetOrCreateCategory looks a category up by name, creating it if
// absent. A concurrent first-time create losing the unique-constraint
// race falls back to re-reading the winner's row, so calling this any
// number of times yields exactly one category.
func (s *Service) GetOrCreateCategory(ctx context.Context, actorID, businessID int64, name string, ctype CategoryType, description string) (Category, error) {
	category, found, err := s.repo.FindCategory(ctx, businessID, name)
	if err != nil {
		return Category{}, err
	}
	if found {
		return category, nil
	}
	created, err := s.repo.InsertCategory(ctx, Category{
		BusinessID:  businessID,
		Name:        name,
		Type:        ctype,
		Description: description,
		CreatedBy:   actorID,
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, errCategoryExists) {
		return Category{}, err
	}
	category, found, err = s.repo.FindCategory(ctx, businessID, name)
	if err != nil {
		return Category{}, err
	}
	if !found {
		return Category{}, fmt.Errorf("ledger: category %q vanished after conflict", name)
	}
	return category, nil
}

var defaultCategories = []struct {
	Name        string
	Type        CategoryType
	Description string
}{
	{"Sales Revenue", CategoryIncome, "Revenue from sales"},
	{"Service Revenue", CategoryIncome, "Revenue from services"},
	{"Rent", CategoryExpense, "Office or store rent"},
	{"Utilities", CategoryExpense, "Electricity, water, internet"},
	{"Supplies", CategoryExpense, "Office or business supplies"},
	{"Marketing", CategoryExpense, "Advertising and marketing costs"},
	{"Miscellaneous", CategoryBoth, "Other income or expenses"},
}

// CreateDefaultCategories seeds the standard category set for a new
// business. Existing names are left untouched.
func (s *Service) CreateDefaultCategories(ctx context.Context, actor shared.Actor, businessID int64) ([]Category, error) {
	role, err := s.requireRole(ctx, actor, businessID)
	if err != nil {
		return nil, err
	}
	if !role.CanManage() {
		return nil, ErrAccessDenied
	}
	var created []Category
	for _, def := range defaultCategories {
		category, err := s.GetOrCreateCategory(ctx, actor.ID, businessID, def.Name, def.Type, def.Description)
		if err != nil {
			return nil, err
		}
		created = append(created, category)
	}
	return created, nil
}

// Summary aggregates income and expenses for the range, defaulting to
// the current month.
func (s *Service) Summary(ctx context.Context, actor shared.Actor, businessID int64, start, end time.Time) (Summary, error) {
	if _, err := s.requireRole(ctx, actor, businessID); err != nil {
		return Summary{}, err
	}
	now := s.now()
	if start.IsZero() {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if end.IsZero() {
		end = now
	}
	return s.repo.Summarize(ctx, businessID, start, end)
}

func (s *Service) requireRole(ctx context.Context, actor shared.Actor, businessID int64) (business.Role, error) {
	role, ok, err := s.roles.RoleOf(ctx, actor.ID, businessID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAccessDenied
	}
	return role, nil
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
