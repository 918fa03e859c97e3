package event

import (
	"slices"

	"agenda.org/internal/roles"
)

// CanSee reports whether a viewer may read an event: the viewer's role
// satisfies the primary visibility, OR the link visibility, OR the viewer
// is a current owner. An absent viewer role behaves as unauthenticated.
func CanSee(ev *Event, viewerID string, viewerRole roles.Role) bool {
	if roles.SatisfiesMinimum(ev.Visibility, viewerRole) {
		return true
	}
	if ev.LinkVisibility != "" && roles.SatisfiesMinimum(ev.LinkVisibility, viewerRole) {
		return true
	}
	return viewerID != "" && slices.Contains(ev.OwnerIDs, viewerID)
}

// CanCreate reports whether an actor may create events. Creation is gated
// at the organizationMember tier.
func CanCreate(actorRole roles.Role) bool {
	return roles.SatisfiesMinimum(roles.OrganizationMember, actorRole)
}

// canOverrideOwners reports whether a non-owner may modify or delete an
// event: the actor must strictly outrank the highest-ranked current owner.
// When no owner roles are known the floor is organizationMember, so only
// an admin can override ownerless events.
func canOverrideOwners(ownerRoles []roles.Role, actorRole roles.Role) bool {
	highest := roles.Highest(ownerRoles, roles.OrganizationMember)
	return roles.StrictlyExceeds(highest, actorRole)
}
