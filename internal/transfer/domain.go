package transfer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates inter-business money movements.
type Type string

const (
	TypeLoan          Type = "loan"
	TypeTransfer      Type = "transfer"
	TypeSharedExpense Type = "shared_expense"
	TypeInvestment    Type = "investment"
	TypeRepayment     Type = "repayment"
)

// Valid reports whether the type is known.
func (t Type) Valid() bool {
	switch t {
	case TypeLoan, TypeTransfer, TypeSharedExpense, TypeInvestment, TypeRepayment:
		return true
	}
	return false
}

// Status is derived from amount vs amount_paid, except cancelled
// which is a terminal state set externally.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPartiallyPaid Status = "partially_paid"
	StatusFullyPaid     Status = "fully_paid"
	StatusCancelled     Status = "cancelled"
)

// DeriveStatus computes the payment status from the invariant rule:
// zero paid is pending, anything between is partially paid, and paid
// meeting or exceeding the amount is fully paid.
func DeriveStatus(amount, amountPaid decimal.Decimal) Status {
	switch {
	case amountPaid.GreaterThanOrEqual(amount):
		return StatusFullyPaid
	case amountPaid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusPending
	}
}

// Transfer is a directional money movement between two businesses
// under common ownership.
type Transfer struct {
	ID             int64
	FromBusinessID int64
	ToBusinessID   int64
	Type           Type
	Amount         decimal.Decimal
	AmountPaid     decimal.Decimal
	Status         Status
	Date           time.Time
	DueDate        *time.Time
	Purpose        string
	Category       string
	Priority       string
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsDeleted      bool
	DeletedAt      *time.Time
	DeletedBy      *int64
}

// RemainingBalance is amount minus amount_paid, clamped at zero.
func (t Transfer) RemainingBalance() decimal.Decimal {
	remaining := t.Amount.Sub(t.AmountPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// BalanceRow is the pairwise net-balance ledger entry for an
// unordered business pair, stored with business_a < business_b.
// Positive net_balance means business_a owes business_b; negative
// means business_b owes business_a.
type BalanceRow struct {
	BusinessA   int64
	BusinessB   int64
	NetBalance  decimal.Decimal
	LastUpdated time.Time
}

// OwedByOwedTo splits the row into what the given business owes
// others and what others owe it, based on which side it occupies.
func (b BalanceRow) OwedByOwedTo(businessID int64) (owes, owed decimal.Decimal) {
	switch businessID {
	case b.BusinessA:
		if b.NetBalance.IsPositive() {
			return b.NetBalance, decimal.Zero
		}
		return decimal.Zero, b.NetBalance.Abs()
	case b.BusinessB:
		if b.NetBalance.IsNegative() {
			return b.NetBalance.Abs(), decimal.Zero
		}
		return decimal.Zero, b.NetBalance
	default:
		return decimal.Zero, decimal.Zero
	}
}

// ScheduleEntry is an advisory installment plan row for a transfer.
// Installment payments are planning data only; they never feed the
// transfer's amount_paid or the pairwise balance ledger.
type ScheduleEntry struct {
	ID                int64
	TransferID        int64
	InstallmentNumber int
	DueDate           time.Time
	AmountDue         decimal.Decimal
	AmountPaid        decimal.Decimal
	PaidDate          *time.Time
	IsPaid            bool
	IsOverdue         bool
	LateFee           decimal.Decimal
}
