package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"launchpad/internal/form"
	"launchpad/internal/service"
	"launchpad/internal/transport/rest/middleware"
)

// AuthHandler exposes who the caller is. Tokens are issued by the funding
// platform, so there is no login here.
type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me handles GET /v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"founderId": middleware.GetFounderID(r.Context()),
		"email":     middleware.GetEmail(r.Context()),
	})
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusFor maps service and form errors to HTTP status codes
func statusFor(err error) int {
	var berr *service.BackendError
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrDocumentMissing),
		errors.Is(err, form.ErrQuestionNotFound),
		errors.Is(err, form.ErrFieldNotFound),
		errors.Is(err, form.ErrSectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, form.ErrNotInActiveStep),
		errors.Is(err, service.ErrSubmitInFlight):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidValue),
		errors.Is(err, form.ErrValueKind):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &berr):
		if berr.Status == http.StatusUnauthorized || berr.Status == http.StatusForbidden {
			return berr.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var berr *service.BackendError
	if errors.As(err, &berr) && berr.Message != "" {
		writeError(w, statusFor(err), berr.Message)
		return
	}
	writeError(w, statusFor(err), err.Error())
}
