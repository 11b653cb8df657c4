package cashflow

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is an immutable point-in-time cash-flow view for one
// business. Recomputed per request, never cached.
type Summary struct {
	BusinessID          int64
	PeriodStart         time.Time
	PeriodEnd           time.Time
	MoneyReceived       decimal.Decimal
	MoneySent           decimal.Decimal
	NetFlow             decimal.Decimal
	TotalOwedToOthers   decimal.Decimal
	TotalOwedByOthers   decimal.Decimal
	ActiveLoansGiven    int
	ActiveLoansReceived int
	OverdueInstallments int
}
