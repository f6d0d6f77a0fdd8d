package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jobman-auth/internal/domain"
	"github.com/jobman-auth/internal/pkg/errutil"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message"`
}

// AuthEnvelope wraps sign-up and sign-in responses.
type AuthEnvelope struct {
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
	Token   string       `json:"token"`
}

// UserEnvelope wraps responses that return the (possibly absent) user.
type UserEnvelope struct {
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
}

// TokenEnvelope wraps refresh-token responses.
type TokenEnvelope struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// ErrorEnvelope is the error payload for every failed request.
type ErrorEnvelope struct {
	Message    string              `json:"message"`
	StatusCode int                 `json:"statusCode"`
	Status     string              `json:"status"`
	ComingFrom string              `json:"comingFrom"`
	Kind       string              `json:"kind,omitempty"`
	Fields     []domain.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, comingFrom, kind string) {
	writeJSON(w, status, ErrorEnvelope{
		Message:    msg,
		StatusCode: status,
		Status:     "error",
		ComingFrom: comingFrom,
		Kind:       kind,
	})
}

// httpError maps client errors to 400 and everything else to a logged 500.
func httpError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, comingFrom string, err error) {
	var ce *domain.ClientError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusBadRequest, ErrorEnvelope{
			Message:    ce.Message,
			StatusCode: http.StatusBadRequest,
			Status:     "error",
			ComingFrom: ce.ComingFrom,
			Kind:       domain.KindName(ce.Kind),
			Fields:     ce.Fields,
		})
		return
	}
	errutil.LogError(r.Context(), logger, comingFrom+" failed", err)
	writeError(w, http.StatusInternalServerError, "Internal server error", comingFrom, "")
}

// decodeJSON reads the request body into v, answering 400 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, comingFrom string, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", comingFrom, domain.KindName(domain.ErrValidation))
		return false
	}
	return true
}
