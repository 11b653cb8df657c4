package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates ledger record directions.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Valid reports whether the type is income or expense.
func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// CategoryType governs which transaction types a category admits.
type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
	CategoryBoth    CategoryType = "both"
)

// Valid reports whether the category type is known.
func (c CategoryType) Valid() bool {
	return c == CategoryIncome || c == CategoryExpense || c == CategoryBoth
}

// Admits reports whether a transaction of the given type may use a
// category of this type.
func (c CategoryType) Admits(t TransactionType) bool {
	return c == CategoryBoth || string(c) == string(t)
}

// Category groups transactions within a business. (business, name) is
// unique.
type Category struct {
	ID          int64
	BusinessID  int64
	Name        string
	Type        CategoryType
	Description string
	IsActive    bool
	CreatedBy   int64
	CreatedAt   time.Time
}

// Transaction is a single income or expense record in a business's
// ledger. Transactions are never hard-deleted; the soft-delete triple
// records who removed it and when.
type Transaction struct {
	ID              int64
	BusinessID      int64
	CategoryID      int64
	Type            TransactionType
	Amount          decimal.Decimal
	Date            time.Time
	Description     string
	ReferenceNumber string
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	IsDeleted       bool
	DeletedAt       *time.Time
	DeletedBy       *int64
}

// ListFilters narrows transaction listings.
type ListFilters struct {
	StartDate  *time.Time
	EndDate    *time.Time
	Type       TransactionType
	CategoryID int64
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
}

// Summary aggregates a business's ledger over a date range.
type Summary struct {
	TotalIncome        decimal.Decimal
	TotalExpenses      decimal.Decimal
	NetAmount          decimal.Decimal
	TransactionCount   int
	PeriodStart        time.Time
	PeriodEnd          time.Time
	IncomeByCategory   map[string]decimal.Decimal
	ExpensesByCategory map[string]decimal.Decimal
}
