package business

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// Handler wires HTTP endpoints for business and role management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers business routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{businessID}", h.get)
	r.Get("/{businessID}/roles", h.listRoles)
	r.Post("/{businessID}/roles", h.assignRole)
	r.Delete("/{businessID}/roles/{userID}", h.removeRole)
}

type businessView struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	OwnerID         int64     `json:"owner_id"`
	Currency        string    `json:"currency"`
	FiscalYearStart int       `json:"fiscal_year_start"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toBusinessView(b Business) businessView {
	return businessView{
		ID:              b.ID,
		Name:            b.Name,
		Description:     b.Description,
		OwnerID:         b.OwnerID,
		Currency:        b.Currency,
		FiscalYearStart: b.FiscalYearStart,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type roleView struct {
	UserID     int64     `json:"user_id"`
	BusinessID int64     `json:"business_id"`
	Role       string    `json:"role"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy int64     `json:"assigned_by,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var input CreateBusinessInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	created, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.logger.Warn("create business", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBusinessView(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businesses, err := h.service.ListForActor(r.Context(), actor)
	if err != nil {
		h.logger.Error("list businesses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]businessView, 0, len(businesses))
	for _, b := range businesses {
		views = append(views, toBusinessView(b))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	b, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBusinessView(b))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	roles, err := h.service.ListRoles(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView{
			UserID:     role.UserID,
			BusinessID: role.BusinessID,
			Role:       string(role.Role),
			AssignedAt: role.AssignedAt,
			AssignedBy: role.AssignedBy,
		})
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r, "businessID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	var input AssignRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	if err := h.service.AssignRole(r.Context(), actor, id, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "role assigned"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
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
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	if err := h.service.RemoveRole(r.Context(), actor, businessID, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "role removed"})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
