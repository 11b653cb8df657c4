package cashflow

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler serves cash-flow summaries. Identical in-flight requests
// coalesce onto one computation via singleflight; the summary is
// recomputed per request otherwise.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers cash-flow routes under /cash-flow.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{businessID}", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
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
	var start, end time.Time
	q := r.URL.Query()
	if v := q.Get("start_date"); v != "" {
		start, err = time.Parse(dateLayout, v)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"start_date": "must be YYYY-MM-DD"})
			return
		}
	}
	if v := q.Get("end_date"); v != "" {
		end, err = time.Parse(dateLayout, v)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"end_date": "must be YYYY-MM-DD"})
			return
		}
	}

	key := fmt.Sprintf("%d:%d:%s:%s", actor.ID, businessID, start.Format(dateLayout), end.Format(dateLayout))
	result, err, _ := h.group.Do(key, func() (any, error) {
		return h.service.Summarize(r.Context(), actor, businessID, start, end)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary := result.(Summary)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"business_id":           summary.BusinessID,
		"period_start":          summary.PeriodStart.Format(dateLayout),
		"period_end":            summary.PeriodEnd.Format(dateLayout),
		"money_received":        summary.MoneyReceived.StringFixed(2),
		"money_sent":            summary.MoneySent.StringFixed(2),
		"net_flow":              summary.NetFlow.StringFixed(2),
		"total_owed_to_others":  summary.TotalOwedToOthers.StringFixed(2),
		"total_owed_by_others":  summary.TotalOwedByOthers.StringFixed(2),
		"active_loans_given":    summary.ActiveLoansGiven,
		"active_loans_received": summary.ActiveLoansReceived,
		"overdue_installments":  summary.OverdueInstallments,
	})
}
