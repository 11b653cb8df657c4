package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/ledger"
	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// The mirrored ledger entries for every transfer and repayment land
// under this fixed category, created once per business on first use.
const (
	mirrorCategoryName        = "Inter-Business Transfer"
	mirrorCategoryDescription = "Transfers between owned businesses"

	transferReferencePrefix  = "IBT-"
	repaymentReferencePrefix = "REP-"
)

// Domain errors surfaced to the HTTP layer.
var (
	ErrNotFound       = fmt.Errorf("transfer: %w", httpx.ErrNotFound)
	ErrAccessDenied   = fmt.Errorf("transfer: %w", httpx.ErrForbidden)
	ErrCrossOwnership = fmt.Errorf("transfer: businesses are not under common ownership: %w", httpx.ErrForbidden)
	ErrSelfTransfer   = fmt.Errorf("transfer: from and to business must differ: %w", httpx.ErrValidation)
	ErrInvalidAmount  = fmt.Errorf("transfer: amount must be positive: %w", httpx.ErrValidation)
	ErrInvalidType    = fmt.Errorf("transfer: unknown transaction type: %w", httpx.ErrValidation)
	ErrOverpayment    = fmt.Errorf("transfer: amount exceeds remaining balance: %w", httpx.ErrValidation)
	ErrCancelled      = fmt.Errorf("transfer: transfer is cancelled: %w", httpx.ErrValidation)
	ErrInvalidPlan    = fmt.Errorf("transfer: invalid installment plan: %w", httpx.ErrValidation)
)

// BusinessPort exposes the business lookups the engine needs.
type BusinessPort interface {
	Get(ctx context.Context, id int64) (business.Business, error)
	RoleOf(ctx context.Context, userID, businessID int64) (business.Role, bool, error)
	IDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// CategoryPort resolves the mirror category in a business's ledger,
// creating it on first use. The lookup is idempotent and race-safe.
type CategoryPort interface {
	GetOrCreateCategory(ctx context.Context, actorID, businessID int64, name string, ctype ledger.CategoryType, description string) (ledger.Category, error)
}

// AuditPort is the audit sink consumed by the service.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts engine activity. May be nil.
type MetricsPort interface {
	TransferCreated(transferType string)
	RepaymentRecorded()
}

// Service implements the transfer engine: creation, repayment,
// pairwise balance maintenance and ledger mirroring.
type Service struct {
	repo       Repository
	businesses BusinessPort
	categories CategoryPort
	audit      AuditPort
	metrics    MetricsPort
	now        func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, businesses BusinessPort, categories CategoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{
		repo:       repo,
		businesses: businesses,
		categories: categories,
		audit:      audit,
		metrics:    metrics,
		now:        time.Now,
	}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and persists a transfer. The transfer row, the
// pairwise balance update and both mirrored ledger records commit in
// one transaction; the mirror categories are resolved beforehand
// since their lookup is idempotent and safe to repeat on rollback.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Transfer, error) {
	if !input.Type.Valid() {
		return Transfer{}, ErrInvalidType
	}
	if input.FromBusinessID == input.ToBusinessID {
		return Transfer{}, ErrSelfTransfer
	}
	if !input.Amount.IsPositive() {
		return Transfer{}, ErrInvalidAmount
	}

	from, err := s.businesses.Get(ctx, input.FromBusinessID)
	if err != nil {
		return Transfer{}, mapBusinessErr(err)
	}
	to, err := s.businesses.Get(ctx, input.ToBusinessID)
	if err != nil {
		return Transfer{}, mapBusinessErr(err)
	}
	if from.OwnerID != to.OwnerID {
		return Transfer{}, ErrCrossOwnership
	}
	if err := s.requireControl(ctx, actor, from.ID, to.ID); err != nil {
		return Transfer{}, err
	}

	fromCategory, toCategory, err := s.mirrorCategories(ctx, actor.ID, from.ID, to.ID)
	if err != nil {
		return Transfer{}, err
	}

	date := input.Date
	if date.IsZero() {
		date = s.now()
	}

	var created Transfer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err = tx.InsertTransfer(ctx, Transfer{
			FromBusinessID: from.ID,
			ToBusinessID:   to.ID,
			Type:           input.Type,
			Amount:         input.Amount,
			AmountPaid:     decimal.Zero,
			Status:         StatusPending,
			Date:           date,
			DueDate:        input.DueDate,
			Purpose:        strings.TrimSpace(input.Purpose),
			Category:       strings.TrimSpace(input.Category),
			Priority:       input.Priority,
			Notes:          strings.TrimSpace(input.Notes),
			CreatedBy:      actor.ID,
		})
		if err != nil {
			return err
		}

		businessA, businessB, delta := canonicalDelta(from.ID, to.ID, input.Amount)
		if _, err := tx.UpsertBalance(ctx, businessA, businessB, delta); err != nil {
			return err
		}

		reference := fmt.Sprintf("%s%d", transferReferencePrefix, created.ID)
		if err := tx.InsertMirrorRecord(ctx, MirrorRecord{
			BusinessID:      from.ID,
			CategoryID:      fromCategory.ID,
			Type:            string(ledger.TypeExpense),
			Amount:          input.Amount,
			Date:            date,
			Description:     mirrorDescription("Transfer to", to.Name, created.Purpose),
			ReferenceNumber: reference,
			CreatedBy:       actor.ID,
		}); err != nil {
			return err
		}
		return tx.InsertMirrorRecord(ctx, MirrorRecord{
			BusinessID:      to.ID,
			CategoryID:      toCategory.ID,
			Type:            string(ledger.TypeIncome),
			Amount:          input.Amount,
			Date:            date,
			Description:     mirrorDescription("Transfer from", from.Name, created.Purpose),
			ReferenceNumber: reference,
			CreatedBy:       actor.ID,
		})
	})
	if err != nil {
		return Transfer{}, err
	}

	s.record(ctx, actor, from.ID, "create", "transfer", created.ID, map[string]any{
		"type":   string(created.Type),
		"amount": created.Amount.String(),
		"to":     to.ID,
	})
	if s.metrics != nil {
		s.metrics.TransferCreated(string(created.Type))
	}
	return created, nil
}

// RecordRepayment applies a partial or full repayment against a
// transfer. The direction of money reverses: the original receiver
// pays back, so the balance delta is negative and the mirrors book an
// expense in the receiving business and an income in the sender.
func (s *Service) RecordRepayment(ctx context.Context, actor shared.Actor, transferID int64, input RepaymentInput) (RepaymentResult, error) {
	if !input.Amount.IsPositive() {
		return RepaymentResult{}, ErrInvalidAmount
	}

	// Pre-read for authorization and category resolution; the amount
	// check repeats inside the transaction under the row lock.
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, errTransferMissing) {
			return RepaymentResult{}, ErrNotFound
		}
		return RepaymentResult{}, err
	}
	if err := s.requireControl(ctx, actor, t.FromBusinessID, t.ToBusinessID); err != nil {
		return RepaymentResult{}, err
	}

	fromCategory, toCategory, err := s.mirrorCategories(ctx, actor.ID, t.FromBusinessID, t.ToBusinessID)
	if err != nil {
		return RepaymentResult{}, err
	}

	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}

	var result RepaymentResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			if errors.Is(err, errTransferMissing) {
				return ErrNotFound
			}
			return err
		}
		if locked.Status == StatusCancelled {
			return ErrCancelled
		}
		if input.Amount.GreaterThan(locked.RemainingBalance()) {
			return ErrOverpayment
		}

		newPaid := locked.AmountPaid.Add(input.Amount)
		newStatus := DeriveStatus(locked.Amount, newPaid)
		if err := tx.ApplyRepayment(ctx, transferID, newPaid, newStatus); err != nil {
			return err
		}

		businessA, businessB, delta := canonicalDelta(locked.FromBusinessID, locked.ToBusinessID, input.Amount.Neg())
		if _, err := tx.UpsertBalance(ctx, businessA, businessB, delta); err != nil {
			return err
		}

		reference := fmt.Sprintf("%s%d", repaymentReferencePrefix, transferID)
		if err := tx.InsertMirrorRecord(ctx, MirrorRecord{
			BusinessID:      locked.ToBusinessID,
			CategoryID:      toCategory.ID,
			Type:            string(ledger.TypeExpense),
			Amount:          input.Amount,
			Date:            paymentDate,
			Description:     mirrorDescription("Repayment to", s.businessName(ctx, locked.FromBusinessID), ""),
			ReferenceNumber: reference,
			CreatedBy:       actor.ID,
		}); err != nil {
			return err
		}
		if err := tx.InsertMirrorRecord(ctx, MirrorRecord{
			BusinessID:      locked.FromBusinessID,
			CategoryID:      fromCategory.ID,
			Type:            string(ledger.TypeIncome),
			Amount:          input.Amount,
			Date:            paymentDate,
			Description:     mirrorDescription("Repayment from", s.businessName(ctx, locked.ToBusinessID), ""),
			ReferenceNumber: reference,
			CreatedBy:       actor.ID,
		}); err != nil {
			return err
		}

		result = RepaymentResult{
			TransferID:       transferID,
			AmountPaid:       newPaid,
			RemainingBalance: locked.Amount.Sub(newPaid),
			Status:           newStatus,
		}
		if result.RemainingBalance.IsNegative() {
			result.RemainingBalance = decimal.Zero
		}
		return nil
	})
	if err != nil {
		return RepaymentResult{}, err
	}

	s.record(ctx, actor, t.FromBusinessID, "repayment", "transfer", transferID, map[string]any{
		"amount": input.Amount.String(),
		"status": string(result.Status),
	})
	if s.metrics != nil {
		s.metrics.RepaymentRecorded()
	}
	return result, nil
}

// Get returns one transfer visible to the actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, transferID int64) (Transfer, error) {
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, errTransferMissing) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	if err := s.requireVisibility(ctx, actor, t); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// List returns transfers among the actor's businesses.
func (s *Service) List(ctx context.Context, actor shared.Actor, filters ListFilters) ([]Transfer, error) {
	ids, err := s.businesses.IDsForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransfers(ctx, ids, filters)
}

// SoftDelete flags a transfer as deleted. The pairwise balance keeps
// the transfer's contribution; deletion hides the record without
// rewriting settlement history.
func (s *Service) SoftDelete(ctx context.Context, actor shared.Actor, transferID int64) error {
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, errTransferMissing) {
			return ErrNotFound
		}
		return err
	}
	if err := s.requireManage(ctx, actor, t.FromBusinessID, t.ToBusinessID); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDeleteTransfer(ctx, transferID, actor.ID, s.now())
	})
	if err != nil {
		if errors.Is(err, errTransferMissing) {
			return ErrNotFound
		}
		return err
	}
	s.record(ctx, actor, t.FromBusinessID, "delete", "transfer", transferID, map[string]any{
		"type":   string(t.Type),
		"amount": t.Amount.String(),
	})
	return nil
}

// Balances returns every nonzero pairwise balance among the actor's
// businesses.
func (s *Service) Balances(ctx context.Context, actor shared.Actor) ([]BalanceRow, error) {
	ids, err := s.businesses.IDsForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return s.repo.BalancesAmong(ctx, ids)
}

// OverduePayments returns loans past their due date that are not yet
// settled, across the actor's businesses.
func (s *Service) OverduePayments(ctx context.Context, actor shared.Actor) ([]Transfer, error) {
	ids, err := s.businesses.IDsForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOverdueLoans(ctx, ids, s.now())
}

// CreateSchedule generates an advisory installment plan: equal
// monthly installments over the remaining balance, with any rounding
// remainder folded into the last installment. Installments never
// feed amount_paid or the pairwise balance.
func (s *Service) CreateSchedule(ctx context.Context, actor shared.Actor, transferID int64, input ScheduleInput) ([]ScheduleEntry, error) {
	if input.Installments < 1 || input.Installments > 120 {
		return nil, ErrInvalidPlan
	}
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, errTransferMissing) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.requireControl(ctx, actor, t.FromBusinessID, t.ToBusinessID); err != nil {
		return nil, err
	}
	remaining := t.RemainingBalance()
	if !remaining.IsPositive() {
		return nil, ErrInvalidPlan
	}

	start := input.StartDate
	if start.IsZero() {
		start = s.now()
	}
	count := int64(input.Installments)
	per := remaining.Div(decimal.NewFromInt(count)).RoundDown(2)
	entries := make([]ScheduleEntry, 0, input.Installments)
	for i := 0; i < input.Installments; i++ {
		due := per
		if i == input.Installments-1 {
			due = remaining.Sub(per.Mul(decimal.NewFromInt(count - 1)))
		}
		entries = append(entries, ScheduleEntry{
			TransferID:        transferID,
			InstallmentNumber: i + 1,
			DueDate:           start.AddDate(0, i, 0),
			AmountDue:         due,
			AmountPaid:        decimal.Zero,
			LateFee:           decimal.Zero,
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertScheduleEntries(ctx, transferID, entries)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, t.FromBusinessID, "create", "repayment_schedule", transferID, map[string]any{
		"installments": input.Installments,
	})
	return s.repo.ListSchedule(ctx, transferID)
}

// ListSchedule returns a transfer's installment plan.
func (s *Service) ListSchedule(ctx context.Context, actor shared.Actor, transferID int64) ([]ScheduleEntry, error) {
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, errTransferMissing) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.requireVisibility(ctx, actor, t); err != nil {
		return nil, err
	}
	return s.repo.ListSchedule(ctx, transferID)
}

// MarkOverdueInstallments flips overdue flags on late unpaid
// installments. Called from the background scan.
func (s *Service) MarkOverdueInstallments(ctx context.Context) (int64, error) {
	return s.repo.MarkOverdueInstallments(ctx, s.now())
}

// requireControl checks that the actor holds an update-capable role
// on both sides of a transfer.
func (s *Service) requireControl(ctx context.Context, actor shared.Actor, fromID, toID int64) error {
	for _, id := range []int64{fromID, toID} {
		role, ok, err := s.businesses.RoleOf(ctx, actor.ID, id)
		if err != nil {
			return err
		}
		if !ok || !role.CanUpdateTransactions() {
			return ErrAccessDenied
		}
	}
	return nil
}

// requireManage checks for a manage-capable role on both sides.
func (s *Service) requireManage(ctx context.Context, actor shared.Actor, fromID, toID int64) error {
	for _, id := range []int64{fromID, toID} {
		role, ok, err := s.businesses.RoleOf(ctx, actor.ID, id)
		if err != nil {
			return err
		}
		if !ok || !role.CanManage() {
			return ErrAccessDenied
		}
	}
	return nil
}

// requireVisibility allows any role on either side to read.
func (s *Service) requireVisibility(ctx context.Context, actor shared.Actor, t Transfer) error {
	for _, id := range []int64{t.FromBusinessID, t.ToBusinessID} {
		_, ok, err := s.businesses.RoleOf(ctx, actor.ID, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrAccessDenied
}

func (s *Service) mirrorCategories(ctx context.Context, actorID, fromID, toID int64) (ledger.Category, ledger.Category, error) {
	fromCategory, err := s.categories.GetOrCreateCategory(ctx, actorID, fromID, mirrorCategoryName, ledger.CategoryBoth, mirrorCategoryDescription)
	if err != nil {
		return ledger.Category{}, ledger.Category{}, err
	}
	toCategory, err := s.categories.GetOrCreateCategory(ctx, actorID, toID, mirrorCategoryName, ledger.CategoryBoth, mirrorCategoryDescription)
	if err != nil {
		return ledger.Category{}, ledger.Category{}, err
	}
	return fromCategory, toCategory, nil
}

func (s *Service) businessName(ctx context.Context, id int64) string {
	b, err := s.businesses.Get(ctx, id)
	if err != nil {
		return fmt.Sprintf("business %d", id)
	}
	return b.Name
}

func mirrorDescription(prefix, name, purpose string) string {
	if purpose == "" {
		return fmt.Sprintf("%s %s", prefix, name)
	}
	return fmt.Sprintf("%s %s: %s", prefix, name, purpose)
}

func mapBusinessErr(err error) error {
	switch {
	case errors.Is(err, httpx.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, httpx.ErrForbidden):
		return ErrAccessDenied
	default:
		return err
	}
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
