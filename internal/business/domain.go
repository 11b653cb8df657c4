package business

import "time"

// Role enumerates the permission levels a user can hold against a
// business. Every business has exactly one owner role at all times.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleEmployee   Role = "employee"
	RoleViewer     Role = "viewer"
)

// Valid reports whether the role is one of the known levels.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleAccountant, RoleEmployee, RoleViewer:
		return true
	}
	return false
}

// CanManage reports whether the role may administer the business
// (roles, categories, audit log, deletions).
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanWriteTransactions reports whether the role may record
// transactions at all.
func (r Role) CanWriteTransactions() bool {
	return r != RoleViewer && r != ""
}

// CanWriteExpenses reports whether the role may record expense
// transactions. Employees may only record income.
func (r Role) CanWriteExpenses() bool {
	return r.CanWriteTransactions() && r != RoleEmployee
}

// CanUpdateTransactions reports whether the role may amend existing
// transactions.
func (r Role) CanUpdateTransactions() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleAccountant
}

// Business is a bookkeeping tenant with its own transaction ledger.
type Business struct {
	ID              int64
	Name            string
	Description     string
	OwnerID         int64
	Currency        string
	FiscalYearStart int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BusinessRole links a user to a business with a permission level.
// Unique per (user, business) pair.
type BusinessRole struct {
	UserID     int64
	BusinessID int64
	Role       Role
	AssignedAt time.Time
	AssignedBy int64
}
