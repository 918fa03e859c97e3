package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"agenda.org/internal/ids"
	"agenda.org/internal/obs"
	"agenda.org/internal/recurrence"
	"agenda.org/internal/roles"
	"agenda.org/internal/stream"
)

// farFuture is the open upper bound for date filters without an end date.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Service enforces the visibility and ownership rules in front of the
// store. All operations take the acting viewer explicitly; the HTTP layer
// extracts it from the request context.
type Service struct {
	store Store
	users UserStore
	hub   *stream.Hub
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithStream publishes save/delete notifications to the hub.
func WithStream(hub *stream.Hub) Option {
	return func(s *Service) { s.hub = hub }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, users UserStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	svc := &Service{store: store, users: users, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Save creates or updates an event. A new event requires the creation
// tier; an existing one requires ownership or strictly outranking every
// current owner. The date stamps are regenerated from the recurrence rule
// and replace the previous set wholesale inside one store transaction.
func (s *Service) Save(ctx context.Context, actorID string, actorRole roles.Role, ev *Event) (*Event, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, ErrForbidden
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	if ev.ID == "" {
		if !CanCreate(actorRole) {
			return nil, fmt.Errorf("%w: role %s may not create events", ErrForbidden, actorRole)
		}
		ev.ID = ids.New()
		ev.CreatedAt = s.now().UTC()
	} else {
		if err := s.authorizeModify(ctx, ev.ID, actorID, actorRole); err != nil {
			return nil, err
		}
	}
	ev.UpdatedAt = s.now().UTC()

	// The creator always ends up in the owner set, so an event can never be
	// saved without at least one owner.
	if !slices.Contains(ev.OwnerIDs, actorID) {
		ev.OwnerIDs = append(ev.OwnerIDs, actorID)
	}
	if ev.ShortLink == "" {
		ev.ShortLink = strings.ToLower(ev.ID)
	}

	stamps, err := recurrence.Expand(ev.StartTime, ev.EndTime, ev.RRule)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveEvent(ctx, ev, stamps); err != nil {
		return nil, err
	}
	obs.IncEventsSaved()
	s.publish(stream.Update{Type: stream.TypeSaved, EventID: ev.ID, Name: ev.Name, At: s.now().UTC()})
	return ev, nil
}

// Delete removes an event under the same authorization rule as modification.
func (s *Service) Delete(ctx context.Context, actorID string, actorRole roles.Role, id string) error {
	if strings.TrimSpace(actorID) == "" || strings.TrimSpace(id) == "" {
		return ErrForbidden
	}
	if err := s.authorizeModify(ctx, id, actorID, actorRole); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.publish(stream.Update{Type: stream.TypeDeleted, EventID: id, At: s.now().UTC()})
	return nil
}

// CanModify answers the edit-permission question without performing a write.
func (s *Service) CanModify(ctx context.Context, actorID string, actorRole roles.Role, id string) (bool, error) {
	if strings.TrimSpace(actorID) == "" {
		return false, nil
	}
	err := s.authorizeModify(ctx, id, actorID, actorRole)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrForbidden):
		return false, nil
	default:
		return false, err
	}
}

// authorizeModify implements the write rule: actor is a current owner, or
// strictly outranks the highest-ranked current owner (floor
// organizationMember). Deliberately independent of the event's visibility
// fields; read and write rights are separate axes here.
func (s *Service) authorizeModify(ctx context.Context, eventID, actorID string, actorRole roles.Role) error {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if slices.Contains(ev.OwnerIDs, actorID) {
		return nil
	}
	ownerRoles, err := s.store.OwnerRoles(ctx, eventID)
	if err != nil {
		return err
	}
	if !canOverrideOwners(ownerRoles, actorRole) {
		return fmt.Errorf("%w: not an owner and does not outrank the current owners", ErrForbidden)
	}
	return nil
}

// Get returns the full event when the viewer may see it; a hidden event is
// indistinguishable from a missing one.
func (s *Service) Get(ctx context.Context, viewerID string, viewerRole roles.Role, id string) (*Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanSee(ev, viewerID, viewerRole) {
		return nil, ErrNotFound
	}
	return ev, nil
}

// Concise returns the listing projection of an event under the same gate.
func (s *Service) Concise(ctx context.Context, viewerID string, viewerRole roles.Role, id string) (*Event, error) {
	ev, err := s.Get(ctx, viewerID, viewerRole, id)
	if err != nil {
		return nil, err
	}
	out := *ev
	out.ConfirmedIDs = nil
	out.Dates = nil
	return &out, nil
}

// VisibleEventIDs lists every event the viewer may see through the primary
// listing (visibility tier or ownership; link visibility is excluded here
// on purpose, shared links are not listings).
func (s *Service) VisibleEventIDs(ctx context.Context, viewerID string, viewerRole roles.Role) ([]string, error) {
	return s.store.ListVisibleEventIDs(ctx, roles.AtOrBelow(viewerRole), viewerID)
}

// Search composes the filter in two phases: the store applies the
// visibility window, date range, visibility prefix and free-text match;
// the subset constraints (owners, tags, confirmed) run here because they
// are all-of semantics over association sets.
func (s *Service) Search(ctx context.Context, viewerID string, viewerRole roles.Role, f Filter) ([]string, error) {
	q := SearchQuery{
		Visible:          roles.AtOrBelow(viewerRole),
		ViewerID:         viewerID,
		VisibilityPrefix: strings.TrimSpace(f.Visibility),
		Text:             strings.TrimSpace(f.Text),
		From:             time.Unix(0, 0).UTC(),
		To:               farFuture,
	}
	if f.StartDate != nil {
		q.From = *f.StartDate
	}
	if f.EndDate != nil {
		q.To = *f.EndDate
	}

	events, err := s.store.SearchEvents(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(events))
	for _, ev := range events {
		if !containsAll(ev.OwnerIDs, f.Owners) {
			continue
		}
		if !containsAll(ev.ConfirmedIDs, f.Confirmed) {
			continue
		}
		if !containsAll(ev.Tags, f.Tags) {
			continue
		}
		out = append(out, ev.ID)
	}
	return out, nil
}

// StampsInRange returns the ascending calendar feed of date stamps between
// from and to, visibility-filtered. With unique set, only the earliest
// stamp per event survives.
func (s *Service) StampsInRange(ctx context.Context, viewerRole roles.Role, from, to time.Time, unique bool) ([]DateStamp, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty date range", ErrInvalidInput)
	}
	stamps, err := s.store.StampsInRange(ctx, from, to, roles.AtOrBelow(viewerRole))
	if err != nil {
		return nil, err
	}
	if !unique {
		return stamps, nil
	}
	seen := make(map[string]struct{}, len(stamps))
	uniqueStamps := make([]DateStamp, 0, len(stamps))
	for _, st := range stamps {
		if _, ok := seen[st.EventID]; ok {
			continue
		}
		seen[st.EventID] = struct{}{}
		uniqueStamps = append(uniqueStamps, st)
	}
	return uniqueStamps, nil
}

// Upcoming returns the ids of the next events to start, soonest first.
func (s *Service) Upcoming(ctx context.Context, viewerRole roles.Role, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.store.UpcomingEventIDs(ctx, s.now().UTC(), limit, roles.AtOrBelow(viewerRole))
}

// Confirm records the actor's attendance. Confirming requires being able
// to see the event in the first place.
func (s *Service) Confirm(ctx context.Context, actorID string, actorRole roles.Role, eventID string) error {
	return s.setConfirmation(ctx, actorID, actorRole, eventID, true)
}

// Unconfirm withdraws the actor's attendance.
func (s *Service) Unconfirm(ctx context.Context, actorID string, actorRole roles.Role, eventID string) error {
	return s.setConfirmation(ctx, actorID, actorRole, eventID, false)
}

func (s *Service) setConfirmation(ctx context.Context, actorID string, actorRole roles.Role, eventID string, confirmed bool) error {
	if strings.TrimSpace(actorID) == "" {
		return ErrForbidden
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !CanSee(ev, actorID, actorRole) {
		return ErrNotFound
	}
	return s.store.SetConfirmation(ctx, eventID, actorID, confirmed)
}

// ConfirmedUsers lists attendees of a visible event as least-data refs.
func (s *Service) ConfirmedUsers(ctx context.Context, viewerID string, viewerRole roles.Role, eventID string) ([]Ref, error) {
	if _, err := s.Get(ctx, viewerID, viewerRole, eventID); err != nil {
		return nil, err
	}
	users, err := s.store.ConfirmedUsers(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return toRefs(users), nil
}

// Owners lists the owner set of a visible event as least-data refs.
func (s *Service) Owners(ctx context.Context, viewerID string, viewerRole roles.Role, eventID string) ([]Ref, error) {
	if _, err := s.Get(ctx, viewerID, viewerRole, eventID); err != nil {
		return nil, err
	}
	users, err := s.store.Owners(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return toRefs(users), nil
}

// Tags lists every known tag.
func (s *Service) Tags(ctx context.Context) ([]Tag, error) {
	return s.store.ListTags(ctx)
}

// ResolveShortLink maps a shared link slug to an event id. The returned id
// still goes through Get, so link resolution leaks nothing by itself.
func (s *Service) ResolveShortLink(ctx context.Context, link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: short link is required", ErrInvalidInput)
	}
	return s.store.EventIDByShortLink(ctx, link)
}

// Users exposes the account store to the HTTP layer.
func (s *Service) Users() UserStore {
	return s.users
}

func (s *Service) publish(u stream.Update) {
	if s.hub != nil {
		s.hub.Publish(u)
	}
}

func toRefs(users []User) []Ref {
	out := make([]Ref, 0, len(users))
	for _, u := range users {
		out = append(out, NewRef(u))
	}
	return out
}

// containsAll reports whether every wanted entry is present in have.
func containsAll(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
