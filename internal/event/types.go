package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"agenda.org/internal/roles"
)

var (
	ErrNotFound     = errors.New("event: not found")
	ErrInvalidInput = errors.New("event: invalid input")
	ErrForbidden    = errors.New("event: forbidden")
)

// Event is the aggregate root. Dates are owned exclusively by the event and
// replaced wholesale on every save; they are never patched in place.
type Event struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Image          string      `json:"image,omitempty"`
	Location       string      `json:"location"`
	Visibility     roles.Role  `json:"visibility"`
	LinkVisibility roles.Role  `json:"link_visibility"`
	RRule          string      `json:"rrule,omitempty"`
	ShortLink      string      `json:"short_link,omitempty"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        time.Time   `json:"end_time"`
	OwnerIDs       []string    `json:"owner_ids"`
	Tags           []string    `json:"tags"`
	ConfirmedIDs   []string    `json:"confirmed_ids,omitempty"`
	Dates          []DateStamp `json:"dates,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// DateStamp is one persisted occurrence of an event.
type DateStamp struct {
	ID      string    `json:"id"`
	EventID string    `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Tag labels events; tags are shared across events and upserted on save.
type Tag struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DefaultTagColor is assigned when a save introduces a brand-new tag.
const DefaultTagColor = "blue"

// User is the service-side projection of an account.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username,omitempty"`
	Name        string     `json:"name,omitempty"`
	Email       string     `json:"email,omitempty"`
	Role        roles.Role `json:"role"`
	Image       string     `json:"image,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Ref is the least-data projection of a user shared with listings: the id
// plus whichever of username/name exists.
type Ref struct {
	ID   string `json:"id"`
	Info string `json:"info"`
}

// NewRef picks the display info in username > name > id order.
func NewRef(u User) Ref {
	switch {
	case u.Username != "":
		return Ref{ID: u.ID, Info: u.Username}
	case u.Name != "":
		return Ref{ID: u.ID, Info: u.Name}
	default:
		return Ref{ID: u.ID, Info: u.ID}
	}
}

// Filter carries the search criteria; nil/empty members mean "no constraint".
type Filter struct {
	Text       string     `json:"text"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
	Visibility string     `json:"visibility"`
	Owners     []string   `json:"owners"`
	Tags       []string   `json:"tags"`
	Confirmed  []string   `json:"confirmed"`
}

// Validate checks the invariants a save must hold before touching storage.
func (e *Event) Validate() error {
	e.Name = strings.TrimSpace(e.Name)
	if len(e.Name) < 3 {
		return fmt.Errorf("%w: event name must be at least 3 characters", ErrInvalidInput)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end times are required", ErrInvalidInput)
	}
	if !e.EndTime.After(e.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}
	if _, err := roles.Parse(string(e.Visibility)); err != nil {
		return fmt.Errorf("%w: visibility: %v", ErrInvalidInput, err)
	}
	if e.LinkVisibility == "" {
		e.LinkVisibility = roles.Unauthenticated
	}
	if _, err := roles.Parse(string(e.LinkVisibility)); err != nil {
		return fmt.Errorf("%w: link visibility: %v", ErrInvalidInput, err)
	}
	e.Tags = dedupeStrings(e.Tags)
	e.OwnerIDs = dedupeStrings(e.OwnerIDs)
	return nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
