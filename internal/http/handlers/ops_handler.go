package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/grantdelgado/unveil-sub008/internal/http/response"
	"github.com/grantdelgado/unveil-sub008/internal/service"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// OpsHandler exposes the endpoints called by the external scheduler, not by
// users. Routes are guarded by the cron secret middleware.
type OpsHandler struct {
	scheduler *service.Scheduler
}

func NewOpsHandler(scheduler *service.Scheduler) *OpsHandler {
	return &OpsHandler{scheduler: scheduler}
}

func (h *OpsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/dispatch-due", h.dispatchDue)
	return r
}

func (h *OpsHandler) dispatchDue(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	processed, err := h.scheduler.DispatchDue(r.Context(), limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "Dispatch sweep failed", "error", err)
		response.InternalError(w, "dispatch sweep failed")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int{"processed": processed})
}
