package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"agenda.org/internal/audit"
	"agenda.org/internal/auth"
	"agenda.org/internal/event"
	"agenda.org/internal/ical"
)

type eventRequest struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Image          string    `json:"image"`
	Location       string    `json:"location"`
	Visibility     string    `json:"visibility"`
	LinkVisibility string    `json:"link_visibility"`
	RRule          string    `json:"rrule"`
	ShortLink      string    `json:"short_link"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	OwnerIDs       []string  `json:"owner_ids"`
	Tags           []string  `json:"tags"`
}

func (req eventRequest) toEvent(id string) *event.Event {
	return &event.Event{
		ID:             id,
		Name:           req.Name,
		Description:    req.Description,
		Image:          req.Image,
		Location:       req.Location,
		Visibility:     parseRole(req.Visibility),
		LinkVisibility: parseRole(req.LinkVisibility),
		RRule:          req.RRule,
		ShortLink:      strings.TrimSpace(req.ShortLink),
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		OwnerIDs:       req.OwnerIDs,
		Tags:           req.Tags,
	}
}

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEvents(w, r)
	case http.MethodPost:
		a.saveEvent(w, r, "")
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/events/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch path {
	case "upcoming":
		a.upcomingEvents(w, r)
		return
	case "search":
		a.searchEvents(w, r)
		return
	case "stamps":
		a.listStamps(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			a.getEvent(w, r, id)
		case http.MethodPut:
			a.saveEvent(w, r, id)
		case http.MethodDelete:
			a.deleteEvent(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case 2:
		a.handleEventLeaf(w, r, id, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) handleEventLeaf(w http.ResponseWriter, r *http.Request, id, leaf string) {
	switch leaf {
	case "concise":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		p, _ := auth.PrincipalFromContext(r.Context())
		ev, err := a.svc.Concise(r.Context(), p.UserID, auth.ViewerRole(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	case "can-modify":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		p, _ := auth.PrincipalFromContext(r.Context())
		ok, err := a.svc.CanModify(r.Context(), p.UserID, auth.ViewerRole(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"can_modify": ok})
	case "confirm":
		a.handleConfirm(w, r, id)
	case "confirmed":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		p, _ := auth.PrincipalFromContext(r.Context())
		refs, err := a.svc.ConfirmedUsers(r.Context(), p.UserID, auth.ViewerRole(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": refs})
	case "owners":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		p, _ := auth.PrincipalFromContext(r.Context())
		refs, err := a.svc.Owners(r.Context(), p.UserID, auth.ViewerRole(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": refs})
	case "ical":
		a.eventICal(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	ids, err := a.svc.VisibleEventIDs(r.Context(), p.UserID, auth.ViewerRole(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (a *API) saveEvent(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := a.svc.Save(r.Context(), p.UserID, p.Role, req.toEvent(id))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "event.save", map[string]any{
		"event_id": ev.ID,
		"name":     ev.Name,
	})

	code := http.StatusOK
	if id == "" {
		code = http.StatusCreated
		w.Header().Set("Location", "/v1/events/"+ev.ID)
	}
	writeJSON(w, code, ev)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request, id string) {
	p, _ := auth.PrincipalFromContext(r.Context())
	ev, err := a.svc.Get(r.Context(), p.UserID, auth.ViewerRole(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	if err := a.svc.Delete(r.Context(), p.UserID, p.Role, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "event.delete", map[string]any{"event_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var err error
	switch r.Method {
	case http.MethodPost:
		err = a.svc.Confirm(r.Context(), p.UserID, p.Role, id)
	case http.MethodDelete:
		err = a.svc.Unconfirm(r.Context(), p.UserID, p.Role, id)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) upcomingEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit := 5
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = v
	}
	ids, err := a.svc.Upcoming(r.Context(), auth.ViewerRole(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (a *API) searchEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var f event.Filter
	if err := decodeJSON(w, r, &f); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	ids, err := a.svc.Search(r.Context(), p.UserID, auth.ViewerRole(r.Context()), f)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (a *API) listStamps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "from must be RFC 3339")
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "to must be RFC 3339")
		return
	}
	unique := r.URL.Query().Get("unique") == "true"

	stamps, err := a.svc.StampsInRange(r.Context(), auth.ViewerRole(r.Context()), from, to, unique)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stamps})
}

func (a *API) eventICal(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	ev, err := a.svc.Get(r.Context(), p.UserID, auth.ViewerRole(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ev.ID+`.ics"`)
	_, _ = w.Write([]byte(ical.Calendar([]*event.Event{ev}, a.baseURL)))
}

func (a *API) handleTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	tags, err := a.svc.Tags(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tags})
}

func (a *API) handleShortLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	link := strings.Trim(strings.TrimPrefix(r.URL.Path, "/e/"), "/")
	id, err := a.svc.ResolveShortLink(r.Context(), link)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.getEvent(w, r, id)
}

func parseTimeParam(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}
