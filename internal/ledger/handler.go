package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for categories and transactions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes under /businesses/{businessID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{businessID}/categories", h.listCategories)
	r.Post("/{businessID}/categories", h.createCategory)
	r.Post("/{businessID}/categories/create-defaults", h.createDefaults)
	r.Get("/{businessID}/transactions", h.listTransactions)
	r.Post("/{businessID}/transactions", h.createTransaction)
	r.Delete("/{businessID}/transactions/{transactionID}", h.deleteTransaction)
	r.Get("/{businessID}/summary", h.summary)
}

type createCategoryRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Type        string `json:"type" validate:"required,oneof=income expense both"`
	Description string `json:"description" validate:"max=2000"`
}

type categoryView struct {
	ID          int64     `json:"id"`
	BusinessID  int64     `json:"business_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCategoryView(c Category) categoryView {
	return categoryView{
		ID:          c.ID,
		BusinessID:  c.BusinessID,
		Name:        c.Name,
		Type:        string(c.Type),
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
}

type createTransactionRequest struct {
	CategoryID      int64           `json:"category_id" validate:"required,gt=0"`
	Type            string          `json:"type" validate:"required,oneof=income expense"`
	Amount          decimal.Decimal `json:"amount"`
	Date            string          `json:"date" validate:"required"`
	Description     string          `json:"description" validate:"max=2000"`
	ReferenceNumber string          `json:"reference_number" validate:"max=50"`
}

type transactionView struct {
	ID              int64      `json:"id"`
	BusinessID      int64      `json:"business_id"`
	CategoryID      int64      `json:"category_id"`
	Type            string     `json:"type"`
	Amount          string     `json:"amount"`
	Date            string     `json:"date"`
	Description     string     `json:"description,omitempty"`
	ReferenceNumber string     `json:"reference_number,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

func toTransactionView(t Transaction) transactionView {
	return transactionView{
		ID:              t.ID,
		BusinessID:      t.BusinessID,
		CategoryID:      t.CategoryID,
		Type:            string(t.Type),
		Amount:          t.Amount.StringFixed(2),
		Date:            t.Date.Format(dateLayout),
		Description:     t.Description,
		ReferenceNumber: t.ReferenceNumber,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
		DeletedAt:       t.DeletedAt,
	}
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	var req createCategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	created, err := h.service.CreateCategory(r.Context(), actor, businessID, req.Name, CategoryType(req.Type), req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCategoryView(created))
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	categories, err := h.service.ListCategories(r.Context(), actor, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		views = append(views, toCategoryView(c))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) createDefaults(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	categories, err := h.service.CreateDefaultCategories(r.Context(), actor, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		views = append(views, toCategoryView(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": views})
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	var req createTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"date": "must be YYYY-MM-DD"})
		return
	}
	created, err := h.service.Append(r.Context(), actor, businessID, AppendInput{
		CategoryID:      req.CategoryID,
		Type:            TransactionType(req.Type),
		Amount:          req.Amount,
		Date:            date,
		Description:     req.Description,
		ReferenceNumber: req.ReferenceNumber,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionView(created))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	filters, err := parseListFilters(r)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"query": err.Error()})
		return
	}
	transactions, err := h.service.List(r.Context(), actor, businessID, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]transactionView, 0, len(transactions))
	for _, t := range transactions {
		views = append(views, toTransactionView(t))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	transactionID, err := pathID(r, "transactionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	deleted, err := h.service.SoftDelete(r.Context(), actor, businessID, transactionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"detail":              "transaction deleted",
		"deleted_transaction": toTransactionView(deleted),
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	start, end, err := parseDateRange(r)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"query": err.Error()})
		return
	}
	summary, err := h.service.Summary(r.Context(), actor, businessID, start, end)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total_income":         summary.TotalIncome.StringFixed(2),
		"total_expenses":       summary.TotalExpenses.StringFixed(2),
		"net_amount":           summary.NetAmount.StringFixed(2),
		"transaction_count":    summary.TransactionCount,
		"period_start":         summary.PeriodStart.Format(dateLayout),
		"period_end":           summary.PeriodEnd.Format(dateLayout),
		"income_by_category":   stringAmounts(summary.IncomeByCategory),
		"expenses_by_category": stringAmounts(summary.ExpensesByCategory),
	})
}

func stringAmounts(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for name, amount := range in {
		out[name] = amount.StringFixed(2)
	}
	return out
}

func parseListFilters(r *http.Request) (ListFilters, error) {
	var filters ListFilters
	q := r.URL.Query()
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return ListFilters{}, err
		}
		filters.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return ListFilters{}, err
		}
		filters.EndDate = &t
	}
	if v := q.Get("type"); v == "income" || v == "expense" {
		filters.Type = TransactionType(v)
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			filters.CategoryID = id
		}
	}
	if v := q.Get("min_amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err == nil {
			filters.MinAmount = &amount
		}
	}
	if v := q.Get("max_amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err == nil {
			filters.MaxAmount = &amount
		}
	}
	return filters, nil
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	var start, end time.Time
	q := r.URL.Query()
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return start, end, err
		}
		start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return start, end, err
		}
		end = t
	}
	return start, end, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
