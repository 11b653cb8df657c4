package transfer

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateInput groups fields for creating a transfer.
type CreateInput struct {
	FromBusinessID int64
	ToBusinessID   int64
	Type           Type
	Amount         decimal.Decimal
	Date           time.Time
	DueDate        *time.Time
	Purpose        string
	Category       string
	Priority       string
	Notes          string
}

// RepaymentInput groups fields for recording a repayment.
type RepaymentInput struct {
	Amount      decimal.Decimal
	PaymentDate time.Time
	Notes       string
}

// RepaymentResult is the outcome of a recorded repayment.
type RepaymentResult struct {
	TransferID       int64
	AmountPaid       decimal.Decimal
	RemainingBalance decimal.Decimal
	Status           Status
}

// ScheduleInput describes an installment plan to generate. Due dates
// advance one month per installment starting at StartDate.
type ScheduleInput struct {
	Installments int
	StartDate    time.Time
}
