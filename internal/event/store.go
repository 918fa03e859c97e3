package event

import (
	"context"
	"time"

	"agenda.org/internal/recurrence"
	"agenda.org/internal/roles"
)

// SearchQuery is the coarse, store-composable half of a Filter. The
// remaining owner/tag/confirmed subset checks run in the service.
type SearchQuery struct {
	Visible          []string
	ViewerID         string
	VisibilityPrefix string
	Text             string
	From             time.Time
	To               time.Time
}

// Store is the persistence boundary for events. SaveEvent and DeleteEvent
// are transactional: either the whole event state (row, owners, tags,
// date stamps) changes together, or none of it does.
type Store interface {
	// SaveEvent upserts the event and replaces its owner set, tag set and
	// date stamps with exactly the given state, atomically.
	SaveEvent(ctx context.Context, ev *Event, stamps []recurrence.Interval) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error

	// OwnerRoles resolves the roles of an event's current owners.
	OwnerRoles(ctx context.Context, eventID string) ([]roles.Role, error)

	ListVisibleEventIDs(ctx context.Context, visible []string, viewerID string) ([]string, error)
	SearchEvents(ctx context.Context, q SearchQuery) ([]*Event, error)

	StampsInRange(ctx context.Context, from, to time.Time, visible []string) ([]DateStamp, error)
	UpcomingEventIDs(ctx context.Context, now time.Time, limit int, visible []string) ([]string, error)

	SetConfirmation(ctx context.Context, eventID, userID string, confirmed bool) error
	ConfirmedUsers(ctx context.Context, eventID string) ([]User, error)
	Owners(ctx context.Context, eventID string) ([]User, error)

	ListTags(ctx context.Context) ([]Tag, error)
	EventIDByShortLink(ctx context.Context, link string) (string, error)
}

// UserStore is the persistence boundary for accounts.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, id, username, description, image string) (*User, error)
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	ListUsers(ctx context.Context) ([]User, error)

	// CredentialByEmail returns the user id and password hash for locally
	// provisioned accounts; ErrNotFound when the email has no local login.
	CredentialByEmail(ctx context.Context, email string) (userID, passwordHash string, err error)
}
