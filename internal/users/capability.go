package users

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPermissionDenied reports a missing capability. Callers check it before any side effect.
var ErrPermissionDenied = errors.New("users: permission denied")

// Capability names a permission required by a mutating or viewing operation.
type Capability string

const (
	CapabilityViewTask      Capability = "project_manager.view_task"
	CapabilityAddTask       Capability = "project_manager.add_task"
	CapabilityChangeTask    Capability = "project_manager.change_task"
	CapabilityAddTaskNote   Capability = "project_manager.add_tasknote"
	CapabilityAddEntry      Capability = "blog.add_entry"
	CapabilityChangeEntry   Capability = "blog.change_entry"
	CapabilityAddComment    Capability = "blog.add_comment"
	CapabilityChangeComment Capability = "blog.change_comment"
)

// RoleSuperuser grants every capability.
const RoleSuperuser = "superuser"

// Actor is the acting user passed explicitly through every mutation.
type Actor struct {
	UserID       uint
	Username     string
	superuser    bool
	capabilities map[Capability]struct{}
}

// NewActor builds an actor from its local user and the roles granted by the session.
func NewActor(user User, roles []string) Actor {
	actor := Actor{
		UserID:       user.ID,
		Username:     user.Username,
		capabilities: make(map[Capability]struct{}, len(roles)),
	}
	for _, role := range roles {
		normalized := strings.ToLower(normalize(role))
		if normalized == "" {
			continue
		}
		if normalized == RoleSuperuser {
			actor.superuser = true
			continue
		}
		actor.capabilities[Capability(normalized)] = struct{}{}
	}
	return actor
}

// Can reports whether the actor holds the capability.
func (a Actor) Can(capability Capability) bool {
	if a.superuser {
		return true
	}
	_, ok := a.capabilities[capability]
	return ok
}

// Require returns ErrPermissionDenied when the capability is missing.
func (a Actor) Require(capability Capability) error {
	if a.Can(capability) {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, a.Username, capability)
}
