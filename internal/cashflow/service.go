package cashflow

import (
	"context"
	"fmt"
	"time"

	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// ErrAccessDenied is returned when the actor holds no role on the
// business.
var ErrAccessDenied = fmt.Errorf("cashflow: %w", httpx.ErrForbidden)

// RolePort resolves the actor's role on a business.
type RolePort interface {
	RoleOf(ctx context.Context, userID, businessID int64) (business.Role, bool, error)
}

// Service produces cash-flow summaries. Strictly read-only.
type Service struct {
	repo  Repository
	roles RolePort
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, roles RolePort) *Service {
	return &Service{repo: repo, roles: roles, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Summarize computes the cash-flow summary for a business over the
// range, defaulting to the current month. Any role on the business
// may read it.
func (s *Service) Summarize(ctx context.Context, actor shared.Actor, businessID int64, start, end time.Time) (Summary, error) {
	_, ok, err := s.roles.RoleOf(ctx, actor.ID, businessID)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		return Summary{}, ErrAccessDenied
	}

	now := s.now()
	if start.IsZero() {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if end.IsZero() {
		end = now
	}

	received, err := s.repo.SumReceived(ctx, businessID, start, end)
	if err != nil {
		return Summary{}, err
	}
	sent, err := s.repo.SumSent(ctx, businessID, start, end)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		BusinessID:    businessID,
		PeriodStart:   start,
		PeriodEnd:     end,
		MoneyReceived: received,
		MoneySent:     sent,
		NetFlow:       received.Sub(sent),
	}

	balances, err := s.repo.BalancesTouching(ctx, businessID)
	if err != nil {
		return Summary{}, err
	}
	for _, row := range balances {
		owes, owed := row.OwedByOwedTo(businessID)
		summary.TotalOwedToOthers = summary.TotalOwedToOthers.Add(owes)
		summary.TotalOwedByOthers = summary.TotalOwedByOthers.Add(owed)
	}

	summary.ActiveLoansGiven, summary.ActiveLoansReceived, err = s.repo.CountActiveLoans(ctx, businessID)
	if err != nil {
		return Summary{}, err
	}
	summary.OverdueInstallments, err = s.repo.CountOverdueInstallments(ctx, businessID, now)
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}
