package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/service"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
	"github.com/evikzub/CVTransformer/pkg/httputil"
	"github.com/evikzub/CVTransformer/pkg/validator"
)

// AuthHandler handles HTTP requests for session endpoints.
type AuthHandler struct {
	sessions *service.SessionService
	tickets  *service.TicketService
	loader   *sessionLoader
	logger   *slog.Logger
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,notblank,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

// CredentialsRequest is the JSON request body for storing personal
// tracker credentials.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,notblank,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

// --- Response types ---

// SessionResponse describes the caller's session.
type SessionResponse struct {
	User           *domain.User        `json:"user"`
	State          domain.SessionState `json:"state"`
	HasCredentials bool                `json:"has_credentials"`
	AuthMode       domain.AuthMode     `json:"auth_mode"`
}

// --- Handlers ---

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	sess := h.loader.rotate(w, sessionFromContext(r.Context()))
	user, err := h.sessions.Login(r.Context(), sess, req.Username, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, h.describe(sess, user))
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess != nil {
		h.sessions.Logout(sess)
	}
	h.loader.destroy(w, sess)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.describe(sessionFromContext(r.Context()), userFromContext(r.Context())))
}

// StoreCredentials handles PUT /api/v1/auth/credentials
func (h *AuthHandler) StoreCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.sessions.StoreCredentials(sessionFromContext(r.Context()), req.Username, req.Password); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCredentials handles DELETE /api/v1/auth/credentials
func (h *AuthHandler) ClearCredentials(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCachedCredentials(sessionFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) describe(sess *domain.Session, user *domain.User) SessionResponse {
	_, hasCreds := h.sessions.CachedCredentials(sess)
	return SessionResponse{
		User:           user,
		State:          sess.State(),
		HasCredentials: hasCreds,
		AuthMode:       h.tickets.SelectAuthMode(hasCreds),
	}
}

// decode reads and validates a JSON body. Malformed bodies become invalid
// input errors; validation errors pass through with their field list.
func decode(r *http.Request, dst any) error {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return nil
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return err
	}
	return apperrors.InvalidInput("invalid request body")
}
