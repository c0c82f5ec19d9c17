// Package authz decides what a group role may do, using a Casbin RBAC model with deny overrides.
// Per-group settings pick between an action and its ":restricted" variant; per-member overrides
// are applied by the caller.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"lan-chat/internal/logging"
	"lan-chat/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Action is a capability checked against a role.
type Action string

const (
	ActPost              Action = "post"
	ActSendMedia         Action = "send_media"
	ActAddMember         Action = "add_member"
	ActEditInfo          Action = "edit_info"
	ActLeave             Action = "leave"
	ActPostLocked        Action = "post:locked"
	ActRemoveMember      Action = "remove_member"
	ActRemoveAdmin       Action = "remove_admin"
	ActMuteMember        Action = "mute_member"
	ActMuteAdmin         Action = "mute_admin"
	ActUpdateSettings    Action = "update_settings"
	ActUpdatePermissions Action = "update_permissions"
	ActUpdateRole        Action = "update_role"
	ActManageInvite      Action = "manage_invite"
	ActViewAudit         Action = "view_audit"
	ActDeleteGroup       Action = "delete_group"
)

// Restricted returns the admins-only variant of an action.
func (a Action) Restricted() Action {
	return a + ":restricted"
}

// For picks the variant matching a group setting audience ("all" or "admins").
func (a Action) For(audience string) Action {
	if audience == models.AudienceAdmins {
		return a.Restricted()
	}
	return a
}

// Enforcer answers role capability questions.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the embedded model and policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := loadPolicy(e, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: e}, nil
}

// MustEnforcer panics if the embedded policy cannot load.
func MustEnforcer() *Enforcer {
	e, err := NewEnforcer()
	if err != nil {
		panic(err)
	}
	return e
}

func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Can reports whether role may perform act. Enforcement errors deny.
func (e *Enforcer) Can(role models.Role, act Action) bool {
	if role == "" {
		return false
	}
	ok, err := e.enforcer.Enforce(string(role), string(act))
	if err != nil {
		logging.Error().Err(err).Str("role", string(role)).Str("action", string(act)).Msg("authz enforcement failed")
		return false
	}
	return ok
}
