package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"agenda.org/internal/recurrence"
	"agenda.org/internal/roles"
)

func newTestService(t *testing.T) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory()
	svc, err := NewService(store, store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func seedUser(t *testing.T, store *InMemory, id string, role roles.Role) {
	t.Helper()
	if err := store.UpsertUser(context.Background(), &User{ID: id, Role: role}); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func draftEvent(name string) *Event {
	return &Event{
		Name:        name,
		Description: "weekly robotics meeting",
		Location:    "lab 101",
		Visibility:  roles.CommunityMember,
		StartTime:   time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 3, 4, 11, 30, 0, 0, time.UTC),
	}
}

func TestSaveCreatesSingleStampWithoutRule(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	ev, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, draftEvent("Robotics 101"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("expected a generated event id")
	}

	got, err := svc.Get(context.Background(), "org-1", roles.OrganizationMember, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Dates) != 1 {
		t.Fatalf("expected one date stamp, got %d", len(got.Dates))
	}
	if !got.Dates[0].Start.Equal(ev.StartTime) || !got.Dates[0].End.Equal(ev.EndTime) {
		t.Fatalf("stamp must equal the input pair, got %+v", got.Dates[0])
	}
	if len(got.OwnerIDs) != 1 || got.OwnerIDs[0] != "org-1" {
		t.Fatalf("creator must be in the owner set, got %v", got.OwnerIDs)
	}
}

func TestSaveReplacesStampsWholesale(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	draft := draftEvent("Weekly sync")
	draft.RRule = "RRULE:FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20240318T000000Z"
	ev, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, draft)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _ := svc.Get(context.Background(), "org-1", roles.OrganizationMember, ev.ID)
	if len(got.Dates) != 5 {
		t.Fatalf("expected 5 stamps (MO/WE through 03-18), got %d", len(got.Dates))
	}

	// Drop the rule on update: the old stamps disappear entirely.
	got.RRule = ""
	if _, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := svc.Get(context.Background(), "org-1", roles.OrganizationMember, ev.ID)
	if len(updated.Dates) != 1 {
		t.Fatalf("old stamps must be replaced, got %d", len(updated.Dates))
	}
}

func TestSaveRejectsInvalidRule(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	draft := draftEvent("Broken recurrence")
	draft.RRule = "RRULE:FREQ=WEEKLY;BYDAY=MO"
	_, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, draft)
	if !errors.Is(err, recurrence.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestSaveCreationGate(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "member-1", roles.CommunityMember)

	_, err := svc.Save(context.Background(), "member-1", roles.CommunityMember, draftEvent("Not allowed"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("communityMember must not create events, got %v", err)
	}
}

func TestModifyAuthorization(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "owner-1", roles.CommunityMember)
	seedUser(t, store, "org-1", roles.OrganizationMember)
	seedUser(t, store, "peer-1", roles.CommunityMember)
	seedUser(t, store, "creator", roles.Admin)

	draft := draftEvent("Owned by a community member")
	draft.OwnerIDs = []string{"owner-1"}
	ev, err := svc.Save(context.Background(), "creator", roles.Admin, draft)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Strip the admin creator so only the communityMember owner remains.
	got, _ := store.GetEvent(context.Background(), ev.ID)
	got.OwnerIDs = []string{"owner-1"}
	stamps := []recurrence.Interval{{Start: got.StartTime, End: got.EndTime}}
	if err := store.SaveEvent(context.Background(), got, stamps); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	// A non-owner organizationMember strictly outranks the owners: permitted.
	ok, err := svc.CanModify(context.Background(), "org-1", roles.OrganizationMember, ev.ID)
	if err != nil || !ok {
		t.Fatalf("organizationMember must be permitted, got ok=%v err=%v", ok, err)
	}

	// A non-owner peer communityMember is denied.
	ok, err = svc.CanModify(context.Background(), "peer-1", roles.CommunityMember, ev.ID)
	if err != nil || ok {
		t.Fatalf("peer communityMember must be denied, got ok=%v err=%v", ok, err)
	}

	// The owner always may.
	ok, err = svc.CanModify(context.Background(), "owner-1", roles.CommunityMember, ev.ID)
	if err != nil || !ok {
		t.Fatalf("owner must be permitted, got ok=%v err=%v", ok, err)
	}

	// Denied delete surfaces ErrForbidden.
	if err := svc.Delete(context.Background(), "peer-1", roles.CommunityMember, ev.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Permitted delete goes through.
	if err := svc.Delete(context.Background(), "org-1", roles.OrganizationMember, ev.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), "org-1", roles.OrganizationMember, ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted event must be gone, got %v", err)
	}
}

func TestGetHidesInvisibleEvents(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	draft := draftEvent("Internal planning")
	draft.Visibility = roles.OrganizationMember
	draft.LinkVisibility = roles.OrganizationMember
	ev, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, draft)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := svc.Get(context.Background(), "stranger", roles.Authenticated, ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("hidden event must read as not found, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "", roles.Unauthenticated, ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("anonymous viewer must not see it, got %v", err)
	}
}

func TestConfirmRequiresVisibility(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)
	seedUser(t, store, "fan-1", roles.Authenticated)

	draft := draftEvent("Open demo day")
	draft.Visibility = roles.Authenticated
	ev, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, draft)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.Confirm(context.Background(), "fan-1", roles.Authenticated, ev.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	refs, err := svc.ConfirmedUsers(context.Background(), "fan-1", roles.Authenticated, ev.ID)
	if err != nil || len(refs) != 1 || refs[0].ID != "fan-1" {
		t.Fatalf("unexpected confirmed set: %v err=%v", refs, err)
	}

	if err := svc.Unconfirm(context.Background(), "fan-1", roles.Authenticated, ev.ID); err != nil {
		t.Fatalf("Unconfirm: %v", err)
	}
	refs, _ = svc.ConfirmedUsers(context.Background(), "fan-1", roles.Authenticated, ev.ID)
	if len(refs) != 0 {
		t.Fatalf("confirmation must be withdrawn, got %v", refs)
	}

	// An anonymous viewer cannot confirm at all.
	if err := svc.Confirm(context.Background(), "", roles.Unauthenticated, ev.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSearchTwoPhaseFilter(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	a := draftEvent("Robotics workshop")
	a.Tags = []string{"robotics", "workshop"}
	a.Visibility = roles.Unauthenticated
	saved, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, a)
	if err != nil {
		t.Fatalf("Save a: %v", err)
	}

	b := draftEvent("Chess night")
	b.Tags = []string{"games"}
	b.Visibility = roles.Unauthenticated
	if _, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, b); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	gotIDs, err := svc.Search(context.Background(), "", roles.Unauthenticated, Filter{Tags: []string{"robotics"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(gotIDs) != 1 || gotIDs[0] != saved.ID {
		t.Fatalf("tag filter must keep only the workshop, got %v", gotIDs)
	}

	gotIDs, err = svc.Search(context.Background(), "", roles.Unauthenticated, Filter{Text: "chess"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(gotIDs) != 1 || gotIDs[0] == saved.ID {
		t.Fatalf("text filter must keep only chess night, got %v", gotIDs)
	}

	// An all-of subset that nothing satisfies.
	gotIDs, err = svc.Search(context.Background(), "", roles.Unauthenticated, Filter{Tags: []string{"robotics", "games"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(gotIDs) != 0 {
		t.Fatalf("expected no matches, got %v", gotIDs)
	}
}

func TestSearchHonorsVisibilityWindow(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	hidden := draftEvent("Members only")
	hidden.Visibility = roles.OrganizationMember
	hidden.LinkVisibility = roles.OrganizationMember
	ev, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, hidden)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	gotIDs, err := svc.Search(context.Background(), "", roles.Authenticated, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(gotIDs) != 0 {
		t.Fatalf("gated event must not appear for authenticated viewers, got %v", gotIDs)
	}

	// The owner sees it regardless of tier.
	gotIDs, err = svc.Search(context.Background(), "org-1", roles.Authenticated, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(gotIDs) != 1 || gotIDs[0] != ev.ID {
		t.Fatalf("owner must find the event, got %v", gotIDs)
	}
}

func TestStampsInRangeUnique(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	draft := draftEvent("Standup")
	draft.Visibility = roles.Unauthenticated
	draft.RRule = "BYDAY=MO,TU,WE,TH,FR;UNTIL=20240308T000000Z"
	ev, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, draft)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	all, err := svc.StampsInRange(context.Background(), roles.Unauthenticated, from, to, false)
	if err != nil {
		t.Fatalf("StampsInRange: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 weekday stamps, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Start.Before(all[i-1].Start) {
			t.Fatal("stamps must be ascending")
		}
	}

	unique, err := svc.StampsInRange(context.Background(), roles.Unauthenticated, from, to, true)
	if err != nil {
		t.Fatalf("StampsInRange unique: %v", err)
	}
	if len(unique) != 1 || unique[0].EventID != ev.ID {
		t.Fatalf("unique must keep the earliest stamp per event, got %v", unique)
	}

	if _, err := svc.StampsInRange(context.Background(), roles.Unauthenticated, to, from, false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("inverted range must fail, got %v", err)
	}
}

func TestUpcoming(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svcClocked, err := NewService(store, store, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	past := draftEvent("Already happened")
	past.Visibility = roles.Unauthenticated
	past.StartTime = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	past.EndTime = time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC)
	if _, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, past); err != nil {
		t.Fatalf("Save past: %v", err)
	}

	next := draftEvent("Up next")
	next.Visibility = roles.Unauthenticated
	saved, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, next)
	if err != nil {
		t.Fatalf("Save next: %v", err)
	}

	got, err := svcClocked.Upcoming(context.Background(), roles.Unauthenticated, 5)
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(got) != 1 || got[0] != saved.ID {
		t.Fatalf("expected only the future event, got %v", got)
	}
}

func TestResolveShortLink(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "org-1", roles.OrganizationMember)

	draft := draftEvent("Linked event")
	draft.ShortLink = "spring-demo"
	ev, err := svc.Save(context.Background(), "org-1", roles.OrganizationMember, draft)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	id, err := svc.ResolveShortLink(context.Background(), "spring-demo")
	if err != nil || id != ev.ID {
		t.Fatalf("ResolveShortLink = %q, %v", id, err)
	}
	if _, err := svc.ResolveShortLink(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ResolveShortLink(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := draftEvent("ok name")

	short := *base
	short.Name = "ab"
	if err := short.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short name must fail, got %v", err)
	}

	inverted := *base
	inverted.EndTime = inverted.StartTime.Add(-time.Hour)
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("end before start must fail, got %v", err)
	}

	badRole := *base
	badRole.Visibility = "everyone"
	if err := badRole.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown visibility must fail, got %v", err)
	}

	defaulted := *base
	defaulted.LinkVisibility = ""
	if err := defaulted.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if defaulted.LinkVisibility != roles.Unauthenticated {
		t.Errorf("empty link visibility must default open, got %s", defaulted.LinkVisibility)
	}
}
