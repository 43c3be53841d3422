package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/http/response"
	"github.com/grantdelgado/unveil-sub008/internal/service"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// WebhookHandler receives carrier callbacks: per-message delivery status and
// inbound replies (STOP keyword handling).
type WebhookHandler struct {
	messenger *service.Messenger
	guests    *service.GuestService
}

func NewWebhookHandler(messenger *service.Messenger, guests *service.GuestService) *WebhookHandler {
	return &WebhookHandler{messenger: messenger, guests: guests}
}

func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sms/status", h.deliveryStatus)
	r.Post("/sms/inbound", h.inbound)
	return r
}

// deliveryStatus handles the carrier's form-encoded status callback. Unknown
// references are acknowledged anyway; callbacks are at-least-once and may
// outlive their delivery rows.
func (h *WebhookHandler) deliveryStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.BadRequest(w, "invalid form body")
		return
	}

	providerID := r.PostFormValue("MessageSid")
	carrierStatus := r.PostFormValue("MessageStatus")
	if providerID == "" || carrierStatus == "" {
		response.BadRequest(w, "MessageSid and MessageStatus are required")
		return
	}

	var status domain.DeliveryStatus
	switch carrierStatus {
	case "delivered":
		status = domain.DeliveryDelivered
	case "failed", "undelivered":
		status = domain.DeliveryFailed
	default:
		// Intermediate states (queued, sending, sent) are not tracked.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	errMsg := r.PostFormValue("ErrorMessage")
	if code := r.PostFormValue("ErrorCode"); errMsg == "" && code != "" {
		errMsg = "carrier error " + code
	}

	if err := h.messenger.ApplyDeliveryCallback(r.Context(), providerID, status, errMsg); err != nil {
		logger.ErrorContext(r.Context(), "Failed to apply delivery callback", "provider_id", providerID, "error", err)
		response.InternalError(w, "error recording delivery status")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// inbound handles guest replies. STOP and its variants opt the phone out of
// SMS across every event it appears on.
func (h *WebhookHandler) inbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.BadRequest(w, "invalid form body")
		return
	}

	from := r.PostFormValue("From")
	body := strings.ToUpper(strings.TrimSpace(r.PostFormValue("Body")))
	if from == "" {
		response.BadRequest(w, "From is required")
		return
	}

	switch body {
	case "STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "END", "QUIT":
		affected, err := h.guests.OptOutByPhone(r.Context(), from)
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to apply opt-out", "error", err)
			response.InternalError(w, "error applying opt-out")
			return
		}
		logger.InfoContext(r.Context(), "Inbound STOP applied", "affected", affected)
	default:
		// Everything else is ignored; replies are not two-way chat.
	}
	w.WriteHeader(http.StatusNoContent)
}
