package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/http/middleware"
	"github.com/grantdelgado/unveil-sub008/internal/http/response"
	"github.com/grantdelgado/unveil-sub008/internal/service"
)

type GuestHandler struct {
	guests *service.GuestService
}

func NewGuestHandler(guests *service.GuestService) *GuestHandler {
	return &GuestHandler{guests: guests}
}

// Routes is mounted under /events/{eventID}/guests.
func (h *GuestHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/import", h.importGuests)
	r.Get("/", h.list)
	r.Get("/counts", h.counts)
	r.Patch("/{guestID}", h.update)
	r.Delete("/{guestID}", h.remove)
	return r
}

func (h *GuestHandler) importGuests(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var in struct {
		Guests []domain.GuestImport `json:"guests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if len(in.Guests) == 0 {
		response.BadRequest(w, "guests list is empty")
		return
	}

	created, err := h.guests.Import(r.Context(), middleware.Caller(r), eventID, in.Guests)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"guests": created,
		"count":  len(created),
	})
}

func (h *GuestHandler) list(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	out, err := h.guests.List(r.Context(), middleware.Caller(r), eventID)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *GuestHandler) counts(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	counts, err := h.guests.Counts(r.Context(), middleware.Caller(r), eventID)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, counts)
}

func (h *GuestHandler) update(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	guestID, err := uuid.Parse(chi.URLParam(r, "guestID"))
	if err != nil {
		response.BadRequest(w, "invalid guest id")
		return
	}

	var patch domain.GuestPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	updated, err := h.guests.Update(r.Context(), middleware.Caller(r), eventID, guestID, patch)
	if err != nil {
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, updated)
}

func (h *GuestHandler) remove(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	guestID, err := uuid.Parse(chi.URLParam(r, "guestID"))
	if err != nil {
		response.BadRequest(w, "invalid guest id")
		return
	}

	if err := h.guests.Remove(r.Context(), middleware.Caller(r), eventID, guestID); err != nil {
		response.MapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func eventIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		response.BadRequest(w, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}
