package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jobman-auth/internal/application/auth"
	"github.com/jobman-auth/internal/domain"
	"github.com/jobman-auth/internal/transport/http/middleware"
)

// AuthHandler exposes the auth lifecycle over HTTP.
type AuthHandler struct {
	svc    auth.Service
	logger *slog.Logger
}

func NewAuthHandler(svc auth.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.SignUpRequest
	if !decodeJSON(w, r, "SignUp", &req) {
		return
	}
	res, err := h.svc.SignUp(r.Context(), req)
	if err != nil {
		httpError(w, r, h.logger, "SignUp", err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{Message: "User created successfully", User: res.User, Token: res.Token})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req domain.SignInRequest
	if !decodeJSON(w, r, "SignIn", &req) {
		return
	}
	res, err := h.svc.SignIn(r.Context(), req)
	if err != nil {
		httpError(w, r, h.logger, "SignIn", err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Message: "User login successfully", User: res.User, Token: res.Token})
}

func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	u, err := h.svc.CurrentUser(r.Context(), claims.ID)
	if err != nil {
		httpError(w, r, h.logger, "CurrentUser", err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Message: "Authenticated user", User: u})
}

func (h *AuthHandler) ResendEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendEmailRequest
	if !decodeJSON(w, r, "ResendVerification", &req) {
		return
	}
	u, err := h.svc.ResendVerification(r.Context(), req)
	if err != nil {
		httpError(w, r, h.logger, "ResendVerification", err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Message: "Email sent successfully", User: u})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyEmailRequest
	if !decodeJSON(w, r, "VerifyEmail", &req) {
		return
	}
	u, err := h.svc.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		httpError(w, r, h.logger, "VerifyEmail", err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Message: "Email verified successfully", User: u})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if !decodeJSON(w, r, "ForgotPassword", &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req); err != nil {
		httpError(w, r, h.logger, "ForgotPassword", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Password reset link sent to your email"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if !decodeJSON(w, r, "ResetPassword", &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req); err != nil {
		httpError(w, r, h.logger, "ResetPassword", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Password reset successfully"})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	var req domain.ChangePasswordRequest
	if !decodeJSON(w, r, "ChangePassword", &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.Username, req); err != nil {
		httpError(w, r, h.logger, "ChangePassword", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Password changed successfully"})
}

// RefreshToken re-signs a session for the caller. The path username must
// belong to the authenticated user.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	username := domain.NormalizeUsername(chi.URLParam(r, "username"))
	if username != claims.Username {
		writeError(w, http.StatusForbidden, "Cannot refresh another user's token", "RefreshToken", "")
		return
	}
	token, err := h.svc.RefreshToken(r.Context(), username)
	if err != nil {
		httpError(w, r, h.logger, "RefreshToken", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenEnvelope{Message: "Token refreshed", Token: token})
}
