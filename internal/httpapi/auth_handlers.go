package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"agenda.org/internal/audit"
	"agenda.org/internal/auth"
	"agenda.org/internal/event"
	"agenda.org/internal/roles"
)

const sessionTTL = 24 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type exchangeRequest struct {
	Secret           string `json:"secret"`
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Image            string `json:"image"`
	OrganizationsURL string `json:"organizations_url"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin signs in a locally provisioned account with email + password.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	userID, hash, err := a.svc.Users().CredentialByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	if err := auth.VerifyPassword(hash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	role, err := a.resolveRole(r, email, "")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.issueSession(w, r, userID, role, "auth.login")
}

// handleExchange turns a trusted frontend's identity-provider profile into a
// session token. The shared secret authenticates the frontend itself.
func (a *API) handleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.exchangeSecret == "" {
		writeError(w, r, http.StatusServiceUnavailable, "token exchange disabled")
		return
	}

	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(a.exchangeSecret)) != 1 {
		writeError(w, r, http.StatusUnauthorized, "invalid exchange secret")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	role, err := a.resolveRole(r, email, req.OrganizationsURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := a.svc.Users().UpsertUser(r.Context(), &event.User{
		ID:    userID,
		Name:  strings.TrimSpace(req.Name),
		Email: email,
		Role:  role,
		Image: strings.TrimSpace(req.Image),
	}); err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.issueSession(w, r, userID, role, "auth.exchange")
}

func (a *API) resolveRole(r *http.Request, email, organizationsURL string) (roles.Role, error) {
	if a.resolver == nil {
		return roles.Authenticated, nil
	}
	return a.resolver.Resolve(r.Context(), email, organizationsURL)
}

func (a *API) issueSession(w http.ResponseWriter, r *http.Request, userID string, role roles.Role, auditEvent string) {
	token, err := auth.GenerateToken(userID, role, sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	expiresAt := time.Now().UTC().Add(sessionTTL)

	_ = audit.LogEvent(r.Context(), auditEvent, map[string]any{
		"user_id":    userID,
		"role":       string(role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		UserID:    userID,
		Role:      string(role),
		ExpiresAt: expiresAt,
	})
}
