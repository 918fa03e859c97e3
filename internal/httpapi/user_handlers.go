package httpapi

import (
	"net/http"
	"strings"

	"agenda.org/internal/auth"
	"agenda.org/internal/event"
	"agenda.org/internal/roles"
)

type profileRequest struct {
	Username    string `json:"username"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// publicUser strips the fields that are nobody's business on the open
// profile endpoint.
type publicUser struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	Name        string `json:"name,omitempty"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
}

func toPublicUser(u *event.User) publicUser {
	return publicUser{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		Image:       u.Image,
		Description: u.Description,
	}
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	if p.Role != roles.Admin {
		writeError(w, r, http.StatusForbidden, "admin only")
		return
	}
	users, err := a.svc.Users().ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	switch {
	case path == "":
		writeError(w, r, http.StatusNotFound, "not found")
	case path == "me":
		a.handleMe(w, r)
	case path == "username-available":
		a.usernameAvailable(w, r)
	case strings.Contains(path, "/"):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		a.getPublicUser(w, r, path)
	}
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		u, err := a.svc.Users().GetUser(r.Context(), p.UserID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	case http.MethodPatch:
		a.updateProfile(w, r, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username != "" {
		current, err := a.svc.Users().GetUser(r.Context(), p.UserID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !strings.EqualFold(current.Username, username) {
			available, err := a.svc.Users().UsernameAvailable(r.Context(), username)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			if !available {
				writeError(w, r, http.StatusConflict, "username already taken")
				return
			}
		}
	}

	u, err := a.svc.Users().UpdateProfile(r.Context(), p.UserID, username,
		strings.TrimSpace(req.Description), strings.TrimSpace(req.Image))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) usernameAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, r, http.StatusBadRequest, "username query parameter is required")
		return
	}
	available, err := a.svc.Users().UsernameAvailable(r.Context(), username)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (a *API) getPublicUser(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	u, err := a.svc.Users().GetUser(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicUser(u))
}
