package event

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"agenda.org/internal/ids"
	"agenda.org/internal/recurrence"
	"agenda.org/internal/roles"
)

// InMemory implements Store and UserStore with in-process state. It backs
// the HTTP handler tests and local development without Postgres; the
// Postgres gateway is the production implementation.
type InMemory struct {
	mu     sync.RWMutex
	events map[string]*Event
	users  map[string]*User
	creds  map[string]memCredential
	tags   map[string]Tag
}

type memCredential struct {
	userID string
	hash   string
}

var (
	_ Store     = (*InMemory)(nil)
	_ UserStore = (*InMemory)(nil)
)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		events: make(map[string]*Event),
		users:  make(map[string]*User),
		creds:  make(map[string]memCredential),
		tags:   make(map[string]Tag),
	}
}

func (s *InMemory) SaveEvent(_ context.Context, ev *Event, stamps []recurrence.Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *ev
	stored.Dates = make([]DateStamp, 0, len(stamps))
	for _, iv := range stamps {
		stored.Dates = append(stored.Dates, DateStamp{
			ID:      ids.New(),
			EventID: ev.ID,
			Start:   iv.Start,
			End:     iv.End,
		})
	}
	if prev, ok := s.events[ev.ID]; ok {
		stored.ConfirmedIDs = prev.ConfirmedIDs
		stored.CreatedAt = prev.CreatedAt
	}
	for _, name := range stored.Tags {
		if _, ok := s.tags[name]; !ok {
			s.tags[name] = Tag{Name: name, Color: DefaultTagColor}
		}
	}
	s.events[ev.ID] = &stored
	return nil
}

func (s *InMemory) GetEvent(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneEvent(ev)
	return &out, nil
}

func (s *InMemory) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *InMemory) OwnerRoles(_ context.Context, eventID string) ([]roles.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []roles.Role
	for _, id := range ev.OwnerIDs {
		if u, ok := s.users[id]; ok {
			out = append(out, u.Role)
		}
	}
	return out, nil
}

func (s *InMemory) ListVisibleEventIDs(_ context.Context, visible []string, viewerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visibleSet := toSet(visible)
	var out []string
	for id, ev := range s.events {
		if _, ok := visibleSet[string(ev.Visibility)]; ok || contains(ev.OwnerIDs, viewerID) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemory) SearchEvents(_ context.Context, q SearchQuery) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visibleSet := toSet(q.Visible)
	text := strings.ToLower(q.Text)

	var out []*Event
	for _, ev := range s.events {
		_, tierVisible := visibleSet[string(ev.Visibility)]
		if !tierVisible && !contains(ev.OwnerIDs, q.ViewerID) {
			continue
		}
		if q.VisibilityPrefix != "" && !strings.HasPrefix(string(ev.Visibility), q.VisibilityPrefix) {
			continue
		}
		if !anyStampWithin(ev.Dates, q.From, q.To) {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(ev.Name), text) &&
			!strings.Contains(strings.ToLower(ev.Description), text) &&
			!strings.Contains(strings.ToLower(ev.Location), text) {
			continue
		}
		clone := cloneEvent(ev)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) StampsInRange(_ context.Context, from, to time.Time, visible []string) ([]DateStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visibleSet := toSet(visible)
	var out []DateStamp
	for _, ev := range s.events {
		if _, ok := visibleSet[string(ev.Visibility)]; !ok {
			continue
		}
		for _, st := range ev.Dates {
			if !st.Start.Before(from) && st.Start.Before(to) {
				out = append(out, st)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *InMemory) UpcomingEventIDs(ctx context.Context, now time.Time, limit int, visible []string) ([]string, error) {
	stamps, err := s.StampsInRange(ctx, now, farFuture, visible)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, st := range stamps {
		if _, ok := seen[st.EventID]; ok {
			continue
		}
		seen[st.EventID] = struct{}{}
		out = append(out, st.EventID)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) SetConfirmation(_ context.Context, eventID, userID string, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	has := contains(ev.ConfirmedIDs, userID)
	switch {
	case confirmed && !has:
		ev.ConfirmedIDs = append(ev.ConfirmedIDs, userID)
	case !confirmed && has:
		out := ev.ConfirmedIDs[:0]
		for _, id := range ev.ConfirmedIDs {
			if id != userID {
				out = append(out, id)
			}
		}
		ev.ConfirmedIDs = out
	}
	return nil
}

func (s *InMemory) ConfirmedUsers(_ context.Context, eventID string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.usersByID(ev.ConfirmedIDs), nil
}

func (s *InMemory) Owners(_ context.Context, eventID string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.usersByID(ev.OwnerIDs), nil
}

func (s *InMemory) ListTags(_ context.Context) ([]Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) EventIDByShortLink(_ context.Context, link string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ev := range s.events {
		if ev.ShortLink == link {
			return id, nil
		}
	}
	return "", ErrNotFound
}

// --- UserStore ---

func (s *InMemory) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *InMemory) UpsertUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *InMemory) UpdateProfile(_ context.Context, id, username, description, image string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Username = username
	u.Description = description
	if image != "" {
		u.Image = image
	}
	out := *u
	return &out, nil
}

func (s *InMemory) UsernameAvailable(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return false, nil
		}
	}
	return true, nil
}

func (s *InMemory) ListUsers(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CredentialByEmail(_ context.Context, email string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[email]
	if !ok {
		return "", "", ErrNotFound
	}
	return cred.userID, cred.hash, nil
}

// SetCredential provisions a local login; production accounts come from the
// identity-provider exchange, this exists for bootstrap and tests.
func (s *InMemory) SetCredential(email, userID, passwordHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[email] = memCredential{userID: userID, hash: passwordHash}
}

// --- helpers ---

func (s *InMemory) usersByID(userIDs []string) []User {
	out := make([]User, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		} else {
			out = append(out, User{ID: id})
		}
	}
	return out
}

func cloneEvent(ev *Event) Event {
	out := *ev
	out.OwnerIDs = append([]string(nil), ev.OwnerIDs...)
	out.Tags = append([]string(nil), ev.Tags...)
	out.ConfirmedIDs = append([]string(nil), ev.ConfirmedIDs...)
	out.Dates = append([]DateStamp(nil), ev.Dates...)
	sort.Slice(out.Dates, func(i, j int) bool { return out.Dates[i].Start.Before(out.Dates[j].Start) })
	return out
}

func anyStampWithin(stamps []DateStamp, from, to time.Time) bool {
	for _, st := range stamps {
		if !st.Start.Before(from) && !st.End.After(to) {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
