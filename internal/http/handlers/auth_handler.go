package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/http/response"
	"github.com/grantdelgado/unveil-sub008/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/request-code", h.requestCode)
	r.Post("/verify", h.verify)
	return r
}

func (h *AuthHandler) requestCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	if err := h.auth.RequestCode(r.Context(), in.Phone); err != nil {
		var rl *service.RateLimitedError
		if errors.As(err, &rl) {
			response.RateLimit(w, rl.Error())
			return
		}
		response.MapError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.Code == "" {
		response.BadRequest(w, "code is required")
		return
	}

	token, user, err := h.auth.VerifyCode(r.Context(), in.Phone, in.Code)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) && ve.Field == "code" {
			// Wrong codes are an auth failure, not malformed input.
			response.Unauthorized(w, ve.Error())
			return
		}
		response.MapError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}
