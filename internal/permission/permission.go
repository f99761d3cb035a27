// Package permission answers whether an actor may perform a checklist action,
// using the role table from tally.yml.
package permission

import (
	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/pkg/fulfillment"
)

// RoleTable authorizes actions by the role assigned to each actor.
// Approve and reject require the admin role. Lock requires one of the lock
// roles when any are configured. Every other action is open to anyone.
type RoleTable struct {
	adminRole string
	actors    map[string]string
	lockRoles map[string]bool
}

// Verify interface compliance
var _ engine.Authorizer = (*RoleTable)(nil)

// New builds a role table from validated permissions config.
func New(cfg *config.PermissionsConfig) *RoleTable {
	t := &RoleTable{
		adminRole: "admin",
		actors:    make(map[string]string),
		lockRoles: make(map[string]bool),
	}
	if cfg == nil {
		return t
	}
	if cfg.AdminRole != "" {
		t.adminRole = cfg.AdminRole
	}
	for actor, role := range cfg.Actors {
		t.actors[actor] = role
	}
	for _, role := range cfg.LockRoles {
		t.lockRoles[role] = true
	}
	return t
}

// Authorize returns nil or a fulfillment error of kind Unauthorized.
func (t *RoleTable) Authorize(actorID string, action fulfillment.Action) error {
	role := t.actors[actorID]

	switch action {
	case fulfillment.ActionApprove, fulfillment.ActionReject:
		if actorID == "" {
			return fulfillment.NewError(fulfillment.KindUnauthorized, string(action), "reviewer id is required")
		}
		if role != t.adminRole {
			return fulfillment.NewError(fulfillment.KindUnauthorized, string(action),
				"actor %s (role %q) may not %s modification requests; requires %q", actorID, role, action, t.adminRole)
		}
	case fulfillment.ActionLock:
		if len(t.lockRoles) == 0 || role == t.adminRole {
			return nil
		}
		if !t.lockRoles[role] {
			return fulfillment.NewError(fulfillment.KindUnauthorized, string(action),
				"actor %s (role %q) may not lock checklists", actorID, role)
		}
	}
	return nil
}
