package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/http/middleware"
	"github.com/grantdelgado/unveil-sub008/internal/http/response"
	"github.com/grantdelgado/unveil-sub008/internal/service"
)

type MessageHandler struct {
	messenger *service.Messenger
	scheduler *service.Scheduler
}

func NewMessageHandler(messenger *service.Messenger, scheduler *service.Scheduler) *MessageHandler {
	return &MessageHandler{messenger: messenger, scheduler: scheduler}
}

// Routes is mounted under /events/{eventID}/messages.
func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.send)
	r.Get("/", h.list)
	r.Get("/{messageID}/deliveries", h.deliveries)

	r.Route("/scheduled", func(r chi.Router) {
		r.Post("/", h.schedule)
		r.Get("/", h.listScheduled)
		r.Patch("/{scheduledID}", h.modify)
		r.Delete("/{scheduledID}", h.cancel)
	})
	return r
}

func (h *MessageHandler) send(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var req service.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	msg, result, err := h.messenger.Send(r.Context(), middleware.Caller(r), eventID, req)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": msg,
		"result":  result,
	})
}

func (h *MessageHandler) list(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	out, err := h.messenger.ListMessages(r.Context(), middleware.Caller(r), eventID, limit, offset)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *MessageHandler) deliveries(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		response.BadRequest(w, "invalid message id")
		return
	}

	out, err := h.messenger.ListDeliveries(r.Context(), middleware.Caller(r), messageID)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *MessageHandler) schedule(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var req service.CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	created, err := h.scheduler.Create(r.Context(), middleware.Caller(r), eventID, req)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *MessageHandler) listScheduled(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	out, err := h.scheduler.ListByEvent(r.Context(), middleware.Caller(r), eventID, limit, offset)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *MessageHandler) modify(w http.ResponseWriter, r *http.Request) {
	scheduledID, err := uuid.Parse(chi.URLParam(r, "scheduledID"))
	if err != nil {
		response.BadRequest(w, "invalid scheduled message id")
		return
	}

	var patch domain.ScheduledMessagePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	updated, err := h.scheduler.Modify(r.Context(), middleware.Caller(r), scheduledID, patch)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, updated)
}

func (h *MessageHandler) cancel(w http.ResponseWriter, r *http.Request) {
	scheduledID, err := uuid.Parse(chi.URLParam(r, "scheduledID"))
	if err != nil {
		response.BadRequest(w, "invalid scheduled message id")
		return
	}

	if err := h.scheduler.Cancel(r.Context(), middleware.Caller(r), scheduledID); err != nil {
		response.MapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
