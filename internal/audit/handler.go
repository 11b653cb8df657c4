package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes under /businesses/{businessID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{businessID}/audit-logs", h.timeline)
}

type entryView struct {
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	businessID, err := strconv.ParseInt(chi.URLParam(r, "businessID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)

	logs, err := h.service.Timeline(r.Context(), actor, businessID, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]entryView, 0, len(logs))
	for _, log := range logs {
		views = append(views, entryView{
			ActorID:  log.ActorID,
			Action:   log.Action,
			Entity:   log.Entity,
			EntityID: log.EntityID,
			Details:  log.Details,
			At:       log.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"page":     p.Page,
		"per_page": p.PerPage,
		"entries":  views,
	})
}
