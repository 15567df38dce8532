// Package authz holds the single capability check every store consults before
// mutating content.
package authz

import (
	"github.com/google/uuid"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Actor is the identity resolved by the token authenticator.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsAuthenticated() bool {
	return a.ID != uuid.Nil
}

type Action string

const (
	ActionModeratePost     Action = "post:moderate"
	ActionListAllPosts     Action = "post:list_all"
	ActionDeletePost       Action = "post:delete"
	ActionViewUnapproved   Action = "post:view_unapproved"
	ActionUpdateTopic      Action = "topic:update"
	ActionDeleteTopic      Action = "topic:delete"
	ActionSetTopicFlags    Action = "topic:set_flags"
	ActionUpdateDiscussion Action = "discussion:update"
	ActionDeleteDiscussion Action = "discussion:delete"
	ActionManageUsers      Action = "user:manage"
)

// Resource is the target of an action. OwnerID is uuid.Nil for resources
// without an owner.
type Resource struct {
	OwnerID uuid.UUID
}

func Owned(ownerID uuid.UUID) Resource {
	return Resource{OwnerID: ownerID}
}

var adminOnly = map[Action]bool{
	ActionModeratePost:  true,
	ActionListAllPosts:  true,
	ActionSetTopicFlags: true,
	ActionManageUsers:   true,
}

// Authorize reports whether actor may perform action on resource. Admins may
// do everything; owner-scoped actions require actor to own the resource.
func Authorize(actor Actor, action Action, resource Resource) bool {
	if !actor.IsAuthenticated() {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	if adminOnly[action] {
		return false
	}
	return resource.OwnerID != uuid.Nil && resource.OwnerID == actor.ID
}

func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleAdmin
}
