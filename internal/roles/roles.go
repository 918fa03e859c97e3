package roles

import (
	"errors"
	"fmt"
)

// Role is one of five ordered privilege tiers. The wire strings are stable
// and stored as-is in user records and in event visibility columns.
type Role string

const (
	Unauthenticated    Role = "unauthenticated"
	Authenticated      Role = "authenticated"
	CommunityMember    Role = "communityMember"
	OrganizationMember Role = "organizationMember"
	Admin              Role = "admin"
)

// ErrUnknownRole indicates a role string outside the closed enumeration.
// Unknown roles are never granted access.
var ErrUnknownRole = errors.New("roles: unknown role")

// ordered lists every role in ascending privilege; a role's index is its rank.
var ordered = []Role{
	Unauthenticated,
	Authenticated,
	CommunityMember,
	OrganizationMember,
	Admin,
}

var ranks = func() map[Role]int {
	m := make(map[Role]int, len(ordered))
	for i, r := range ordered {
		m[r] = i
	}
	return m
}()

// Parse validates a wire string against the closed enumeration.
func Parse(s string) (Role, error) {
	r := Role(s)
	if _, ok := ranks[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// All returns every role in ascending privilege order.
func All() []Role {
	out := make([]Role, len(ordered))
	copy(out, ordered)
	return out
}

// SatisfiesMinimum reports whether actor meets the required minimum role.
// A requirement of the lowest tier is satisfied by anyone, including
// anonymous viewers. An absent or unknown actor role fails closed.
func SatisfiesMinimum(required, actor Role) bool {
	if required == Unauthenticated {
		return true
	}
	rr, ok := ranks[required]
	if !ok {
		return false
	}
	ar, ok := ranks[actor]
	if !ok {
		return false
	}
	return ar >= rr
}

// StrictlyExceeds reports whether actor outranks baseline. Equal ranks do
// not exceed; unknown roles on either side fail closed.
func StrictlyExceeds(baseline, actor Role) bool {
	br, ok := ranks[baseline]
	if !ok {
		return false
	}
	ar, ok := ranks[actor]
	if !ok {
		return false
	}
	return ar > br
}

// Highest reduces a collection of roles to the single highest-ranked one.
// Empty strings and unknown values are ignored. The floor is a fallback,
// not a participant: it is returned only when the collection holds no valid
// role at all, so a lone low-ranked member still determines the result. An
// unknown floor degrades to the lowest tier. The reduction is
// order-independent.
func Highest(list []Role, floor Role) Role {
	var (
		highest Role
		found   bool
	)
	for _, r := range list {
		if _, ok := ranks[r]; !ok {
			continue
		}
		if !found || StrictlyExceeds(highest, r) {
			highest = r
			found = true
		}
	}
	if found {
		return highest
	}
	if _, ok := ranks[floor]; !ok {
		return Unauthenticated
	}
	return floor
}

// AtOrBelow returns the wire strings of every role ranked at or below r,
// in ascending order. Used to compose visibility filters: an event is
// visible when its required role is in the viewer's at-or-below set.
// Unknown input degrades to the lowest tier alone.
func AtOrBelow(r Role) []string {
	n, ok := ranks[r]
	if !ok {
		n = 0
	}
	out := make([]string, 0, n+1)
	for _, role := range ordered[:n+1] {
		out = append(out, string(role))
	}
	return out
}
