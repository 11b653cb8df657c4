package business

// CreateBusinessInput groups fields for creating a business.
type CreateBusinessInput struct {
	Name            string `json:"name" validate:"required,min=2,max=255"`
	Description     string `json:"description" validate:"max=2000"`
	Currency        string `json:"currency" validate:"required,len=3"`
	FiscalYearStart int    `json:"fiscal_year_start" validate:"omitempty,min=1,max=12"`
}

// AssignRoleInput grants or replaces a role on a business.
type AssignRoleInput struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Role   string `json:"role" validate:"required,oneof=admin accountant employee viewer"`
}
