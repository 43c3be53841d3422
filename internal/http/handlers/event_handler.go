package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/http/middleware"
	"github.com/grantdelgado/unveil-sub008/internal/http/response"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

type EventHandler struct {
	Repo postgres.EventRepository
}

func NewEventHandler(repo postgres.EventRepository) *EventHandler {
	return &EventHandler{Repo: repo}
}

func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{eventID}", h.getByID)
	return r
}

func (h *EventHandler) create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title     string     `json:"title"`
		SMSTag    string     `json:"sms_tag"`
		Location  string     `json:"location"`
		EventDate *time.Time `json:"event_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	in.SMSTag = strings.TrimSpace(in.SMSTag)
	if in.Title == "" {
		response.BadRequest(w, "title is required")
		return
	}
	if in.SMSTag == "" {
		// The tag heads every outbound SMS; default it from the title.
		in.SMSTag = firstWord(in.Title)
	}

	caller := middleware.Caller(r)
	event, err := h.Repo.Create(r.Context(), caller.UserID, in.Title, in.SMSTag, in.Location, in.EventDate)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create event", "error", err)
		response.InternalError(w, "error creating event")
		return
	}
	response.WriteJSON(w, http.StatusCreated, event)
}

func (h *EventHandler) list(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r)
	out, err := h.Repo.ListByHost(r.Context(), caller.UserID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list events", "error", err)
		response.InternalError(w, "error listing events")
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *EventHandler) getByID(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		response.BadRequest(w, "invalid event id")
		return
	}

	event, err := h.Repo.GetByID(r.Context(), eventID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to get event", "error", err)
		response.InternalError(w, "error getting event")
		return
	}
	caller := middleware.Caller(r)
	if event == nil || !event.IsHost(caller.UserID) {
		response.NotFound(w, "event not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, event)
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
