package transfer

import (
	"context"
	"errors"
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

// IdempotencyPort is the slice of the idempotency store the handler
// needs to dedupe create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler wires HTTP endpoints for transfers, repayments, balances
// and schedules.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
	validate    *validator.Validate
}

// NewHandler constructs a Handler instance. The idempotency store may
// be nil, in which case Idempotency-Key headers are ignored.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validator.New()}
}

// MountRoutes registers transfer routes under /transfers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/balances", h.balances)
	r.Get("/overdue-payments", h.overduePayments)
	r.Get("/{transferID}", h.get)
	r.Delete("/{transferID}", h.delete)
	r.Post("/{transferID}/repayments", h.recordRepayment)
	r.Get("/{transferID}/schedule", h.listSchedule)
	r.Post("/{transferID}/schedule", h.createSchedule)
}

type createTransferRequest struct {
	FromBusinessID int64           `json:"from_business_id" validate:"required,gt=0"`
	ToBusinessID   int64           `json:"to_business_id" validate:"required,gt=0"`
	Type           string          `json:"transaction_type" validate:"required,oneof=loan transfer shared_expense investment repayment"`
	Amount         decimal.Decimal `json:"amount"`
	Date           string          `json:"date" validate:"required"`
	DueDate        string          `json:"due_date" validate:"omitempty"`
	Purpose        string          `json:"purpose" validate:"required,max=500"`
	Category       string          `json:"category" validate:"max=100"`
	Priority       string          `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Notes          string          `json:"notes" validate:"max=2000"`
}

type repaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date" validate:"omitempty"`
	Notes       string          `json:"notes" validate:"max=2000"`
}

type scheduleRequest struct {
	Installments int    `json:"installments" validate:"required,gt=0,lte=120"`
	StartDate    string `json:"start_date" validate:"required"`
}

type transferView struct {
	ID               int64      `json:"id"`
	FromBusinessID   int64      `json:"from_business_id"`
	ToBusinessID     int64      `json:"to_business_id"`
	Type             string     `json:"transaction_type"`
	Amount           string     `json:"amount"`
	AmountPaid       string     `json:"amount_paid"`
	RemainingBalance string     `json:"remaining_balance"`
	Status           string     `json:"status"`
	Date             string     `json:"date"`
	DueDate          *string    `json:"due_date,omitempty"`
	Purpose          string     `json:"purpose"`
	Category         string     `json:"category,omitempty"`
	Priority         string     `json:"priority,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedBy        int64      `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

func toTransferView(t Transfer) transferView {
	view := transferView{
		ID:               t.ID,
		FromBusinessID:   t.FromBusinessID,
		ToBusinessID:     t.ToBusinessID,
		Type:             string(t.Type),
		Amount:           t.Amount.StringFixed(2),
		AmountPaid:       t.AmountPaid.StringFixed(2),
		RemainingBalance: t.RemainingBalance().StringFixed(2),
		Status:           string(t.Status),
		Date:             t.Date.Format(dateLayout),
		Purpose:          t.Purpose,
		Category:         t.Category,
		Priority:         t.Priority,
		Notes:            t.Notes,
		CreatedBy:        t.CreatedBy,
		CreatedAt:        t.CreatedAt,
		DeletedAt:        t.DeletedAt,
	}
	if t.DueDate != nil {
		due := t.DueDate.Format(dateLayout)
		view.DueDate = &due
	}
	return view
}

type balanceView struct {
	BusinessAID int64     `json:"business_a_id"`
	BusinessBID int64     `json:"business_b_id"`
	NetBalance  string    `json:"net_balance"`
	LastUpdated time.Time `json:"last_updated"`
}

type scheduleView struct {
	ID                int64   `json:"id"`
	TransferID        int64   `json:"transfer_id"`
	InstallmentNumber int     `json:"installment_number"`
	DueDate           string  `json:"due_date"`
	AmountDue         string  `json:"amount_due"`
	AmountPaid        string  `json:"amount_paid"`
	PaidDate          *string `json:"paid_date,omitempty"`
	IsPaid            bool    `json:"is_paid"`
	IsOverdue         bool    `json:"is_overdue"`
	LateFee           string  `json:"late_fee"`
}

func toScheduleView(e ScheduleEntry) scheduleView {
	view := scheduleView{
		ID:                e.ID,
		TransferID:        e.TransferID,
		InstallmentNumber: e.InstallmentNumber,
		DueDate:           e.DueDate.Format(dateLayout),
		AmountDue:         e.AmountDue.StringFixed(2),
		AmountPaid:        e.AmountPaid.StringFixed(2),
		IsPaid:            e.IsPaid,
		IsOverdue:         e.IsOverdue,
		LateFee:           e.LateFee.StringFixed(2),
	}
	if e.PaidDate != nil {
		paid := e.PaidDate.Format(dateLayout)
		view.PaidDate = &paid
	}
	return view
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "transfer"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "request already processed")
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}
	if h.createTransfer(w, r, actor) {
		return
	}
	// No transfer was recorded, so the key must stay reusable for the
	// client's corrected retry.
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Delete(r.Context(), key); err != nil {
			h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// createTransfer decodes, validates and executes the create, reporting
// whether a transfer was recorded.
func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request, actor shared.Actor) bool {
	var req createTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return false
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"date": "must be YYYY-MM-DD"})
		return false
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		due, err := time.Parse(dateLayout, req.DueDate)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"due_date": "must be YYYY-MM-DD"})
			return false
		}
		dueDate = &due
	}
	created, err := h.service.Create(r.Context(), actor, CreateInput{
		FromBusinessID: req.FromBusinessID,
		ToBusinessID:   req.ToBusinessID,
		Type:           Type(req.Type),
		Amount:         req.Amount,
		Date:           date,
		DueDate:        dueDate,
		Purpose:        req.Purpose,
		Category:       req.Category,
		Priority:       req.Priority,
		Notes:          req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return false
	}
	httpx.JSON(w, http.StatusCreated, toTransferView(created))
	return true
}

func (h *Handler) recordRepayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	transferID, err := pathID(r, "transferID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer id")
		return
	}
	var req repaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	var paymentDate time.Time
	if req.PaymentDate != "" {
		paymentDate, err = time.Parse(dateLayout, req.PaymentDate)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"payment_date": "must be YYYY-MM-DD"})
			return
		}
	}
	result, err := h.service.RecordRepayment(r.Context(), actor, transferID, RepaymentInput{
		Amount:      req.Amount,
		PaymentDate: paymentDate,
		Notes:       req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transfer_id":       result.TransferID,
		"amount_paid":       result.AmountPaid.StringFixed(2),
		"remaining_balance": result.RemainingBalance.StringFixed(2),
		"status":            string(result.Status),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	transferID, err := pathID(r, "transferID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer id")
		return
	}
	t, err := h.service.Get(r.Context(), actor, transferID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferView(t))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters, err := parseListFilters(r)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"query": err.Error()})
		return
	}
	transfers, err := h.service.List(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]transferView, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, toTransferView(t))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	transferID, err := pathID(r, "transferID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer id")
		return
	}
	if err := h.service.SoftDelete(r.Context(), actor, transferID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"detail": "transfer deleted"})
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	rows, err := h.service.Balances(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]balanceView, 0, len(rows))
	for _, row := range rows {
		views = append(views, balanceView{
			BusinessAID: row.BusinessA,
			BusinessBID: row.BusinessB,
			NetBalance:  row.NetBalance.StringFixed(2),
			LastUpdated: row.LastUpdated,
		})
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) overduePayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	transfers, err := h.service.OverduePayments(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]transferView, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, toTransferView(t))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	transferID, err := pathID(r, "transferID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer id")
		return
	}
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"start_date": "must be YYYY-MM-DD"})
		return
	}
	entries, err := h.service.CreateSchedule(r.Context(), actor, transferID, ScheduleInput{
		Installments: req.Installments,
		StartDate:    start,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]scheduleView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toScheduleView(e))
	}
	httpx.JSON(w, http.StatusCreated, views)
}

func (h *Handler) listSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	transferID, err := pathID(r, "transferID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer id")
		return
	}
	entries, err := h.service.ListSchedule(r.Context(), actor, transferID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]scheduleView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toScheduleView(e))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func parseListFilters(r *http.Request) (ListFilters, error) {
	var filters ListFilters
	q := r.URL.Query()
	if v := q.Get("transaction_type"); v != "" {
		filters.Type = Type(v)
	}
	if v := q.Get("status"); v != "" {
		filters.Status = Status(v)
	}
	if v := q.Get("from_business"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			filters.FromBusiness = id
		}
	}
	if v := q.Get("to_business"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			filters.ToBusiness = id
		}
	}
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
	return filters, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
