package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/softspot/proximity/internal/auth"
	"github.com/softspot/proximity/internal/middleware"
	"github.com/softspot/proximity/internal/user"
)

// AuthHandlers holds dependencies for authentication endpoints and the
// bearer-token middleware.
type AuthHandlers struct {
	tokens *auth.TokenService
	users  user.Store
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(tokens *auth.TokenService, users user.Store) *AuthHandlers {
	return &AuthHandlers{tokens: tokens, users: users}
}

// TokenResponse is the login response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// writeUnauthorized sends the uniform 401: bad credentials, unknown user
// and disabled user are indistinguishable to the caller.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, ErrCodeAuthFailed, "Could not validate credentials")
}

// Login handles POST /login_for_access_token. It accepts
// application/x-www-form-urlencoded fields username and password and
// returns a bearer token.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeUnauthorized(w)
		return
	}

	u, err := h.users.Get(r.Context(), username)
	if errors.Is(err, user.ErrUserNotFound) {
		// Burn a hash comparison anyway so unknown users cost the same
		// as wrong passwords.
		auth.VerifyPassword(password, "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0a5VFW1u1hXGKJrV3dGm4l4C3S6")
		writeUnauthorized(w)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "user lookup failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	if u.Disabled || !auth.VerifyPassword(password, u.HashedPassword) {
		writeUnauthorized(w)
		return
	}

	token, err := h.tokens.Issue(u.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "token issuance failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	WriteJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me handles GET /users/me, returning the authenticated user's record.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":  u.UserID,
		"disabled": u.Disabled,
	})
}

// RequireAuth validates the bearer token, resolves its subject to a
// non-disabled user and stores the user ID in the request context. Every
// endpoint except login and health runs behind it.
func (h *AuthHandlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeUnauthorized(w)
			return
		}

		claims, err := h.tokens.Validate(token)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		u, err := h.users.Get(r.Context(), claims.Subject)
		if err != nil || u.Disabled {
			writeUnauthorized(w)
			return
		}

		ctx := middleware.SetUserID(r.Context(), u.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
