package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lan-chat/internal/authz"
	"lan-chat/internal/models"
)

// Authorizer answers role capability questions.
type Authorizer interface {
	Can(role models.Role, act authz.Action) bool
}

// GroupRepository abstracts group persistence and the group ACL.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID, name, description, avatar string, memberIDs []string) (models.Group, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]models.GroupSummary, error)
	ListAllGroupIDs(ctx context.Context, userID string) ([]int64, error)
	Members(ctx context.Context, groupID int64) ([]models.GroupMember, error)
	MemberIDs(ctx context.Context, groupID int64) ([]string, error)
	Role(ctx context.Context, groupID int64, userID string) (models.Role, error)
	Settings(ctx context.Context, groupID int64) (models.GroupSettings, error)
	Permission(ctx context.Context, groupID int64, userID string) (models.MemberPermission, error)
	AddMembers(ctx context.Context, groupID int64, actorID string, userIDs []string) ([]string, error)
	RemoveMember(ctx context.Context, groupID int64, actorID, targetID string) error
	Leave(ctx context.Context, groupID int64, userID string) error
	UpdateRole(ctx context.Context, groupID int64, actorID, targetID string, role models.Role) error
	UpdateSettings(ctx context.Context, groupID int64, actorID string, upd models.SettingsUpdate) (models.GroupSettings, error)
	UpdateGroup(ctx context.Context, groupID int64, actorID string, upd models.GroupUpdate) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID int64, actorID string) ([]string, error)
	Mute(ctx context.Context, groupID int64, actorID, targetID, duration, reason string) (models.MemberPermission, error)
	Unmute(ctx context.Context, groupID int64, actorID, targetID string) (models.MemberPermission, error)
	UpdatePermissions(ctx context.Context, groupID int64, actorID, targetID string, upd models.PermissionUpdate) (models.MemberPermission, error)
	JoinByInvite(ctx context.Context, code, userID string) (models.Group, error)
	RegenerateInvite(ctx context.Context, groupID int64, actorID string) (string, error)
	CheckSend(ctx context.Context, groupID int64, userID string, msgType models.MessageType) error
	ExpireMutes(ctx context.Context) ([]models.MemberPermission, error)
	MuteHistory(ctx context.Context, groupID int64, actorID string) ([]models.MuteRecord, error)
	PermissionLogs(ctx context.Context, groupID int64, actorID string, limit int) ([]models.PermissionLog, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db    *sqlx.DB
	authz Authorizer
	policy
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB, az Authorizer, opts ...Option) *GroupRepo {
	return &GroupRepo{db: db, authz: az, policy: newPolicy(opts)}
}

// Audit trail actions.
const (
	LogGroupCreated      = "group_created"
	LogGroupUpdated      = "group_updated"
	LogGroupDeleted      = "group_deleted"
	LogMemberAdded       = "member_added"
	LogMemberRemoved     = "member_removed"
	LogMemberLeft        = "member_left"
	LogMemberJoined      = "member_joined_via_invite"
	LogRoleChanged       = "role_changed"
	LogSettingsChanged   = "settings_changed"
	LogPermissionChanged = "permissions_changed"
	LogMemberMuted       = "member_muted"
	LogMemberUnmuted     = "member_unmuted"
	LogInviteRegenerated = "invite_regenerated"
)

// SystemActor is recorded when the server itself acts, e.g. when a timed mute expires.
const SystemActor = "system"

const groupColumns = `g.id, g.name, g.description, g.avatar, g.creator_id, g.invite_code, g.created_at`

func newInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// CreateGroup creates a group, its settings and its members atomically. The creator is always a member.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID, name, description, avatar string, memberIDs []string) (models.Group, error) {
	var group models.Group
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := r.clock()
		if err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO chat_groups (name, description, avatar, creator_id, invite_code, created_at)
            VALUES (?, ?, ?, ?, ?, ?) RETURNING id`), name, description, avatar, creatorID, newInviteCode(), now).Scan(&group.ID); err != nil {
			return err
		}
		s := models.DefaultGroupSettings(group.ID)
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO group_settings
            (group_id, send_messages, send_media, add_members, edit_info, locked, approval_required)
            VALUES (?, ?, ?, ?, ?, ?, ?)`), s.GroupID, s.SendMessages, s.SendMedia, s.AddMembers, s.EditInfo, s.Locked, s.ApprovalRequired); err != nil {
			return err
		}

		// dedupe members, creator first
		memberSet := map[string]struct{}{creatorID: {}}
		ids := []string{}
		for _, id := range memberIDs {
			if _, dup := memberSet[id]; dup || id == "" {
				continue
			}
			memberSet[id] = struct{}{}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if err := insertMember(ctx, tx, group.ID, creatorID, models.RoleCreator, now); err != nil {
			return err
		}
		for _, id := range ids {
			if err := insertMember(ctx, tx, group.ID, id, models.RoleMember, now); err != nil {
				return err
			}
		}
		return r.logAction(ctx, tx, group.ID, creatorID, "", LogGroupCreated, name)
	})
	if err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}
	return r.GetGroup(ctx, group.ID)
}

func insertMember(ctx context.Context, tx *sqlx.Tx, groupID int64, userID string, role models.Role, at time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`),
		groupID, userID, role, at)
	return err
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, r.db.Rebind(`SELECT `+groupColumns+` FROM chat_groups g WHERE g.id = ?`), groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

// ListGroupsForUser returns groups that include the user, newest first.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID string) ([]models.GroupSummary, error) {
	groups := []models.GroupSummary{}
	err := r.db.SelectContext(ctx, &groups, r.db.Rebind(`SELECT `+groupColumns+`, gm.role,
            (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id) AS member_count
        FROM chat_groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id = ? ORDER BY g.created_at DESC, g.id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// ListAllGroupIDs returns the ids of every group the user belongs to.
func (r *GroupRepo) ListAllGroupIDs(ctx context.Context, userID string) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT group_id FROM group_members WHERE user_id = ? ORDER BY group_id`), userID)
	return ids, err
}

// Members lists the members with their display names, creator and admins first.
func (r *GroupRepo) Members(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	members := []models.GroupMember{}
	err := r.db.SelectContext(ctx, &members, r.db.Rebind(`SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at,
            COALESCE(u.display_name, '') AS display_name, COALESCE(u.status, 'offline') AS status
        FROM group_members gm LEFT JOIN users u ON u.id = gm.user_id
        WHERE gm.group_id = ?
        ORDER BY CASE gm.role WHEN 'creator' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, gm.joined_at, gm.user_id`), groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// MemberIDs lists the user ids of a group.
func (r *GroupRepo) MemberIDs(ctx context.Context, groupID int64) ([]string, error) {
	return memberIDs(ctx, r.db, groupID)
}

func memberIDs(ctx context.Context, q sqlx.ExtContext, groupID int64) ([]string, error) {
	ids := []string{}
	err := sqlx.SelectContext(ctx, q, &ids, q.Rebind(`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id`), groupID)
	return ids, err
}

// Role returns the user's role or ErrNotMember.
func (r *GroupRepo) Role(ctx context.Context, groupID int64, userID string) (models.Role, error) {
	return roleOf(ctx, r.db, groupID, userID)
}

func roleOf(ctx context.Context, q sqlx.ExtContext, groupID int64, userID string) (models.Role, error) {
	var role models.Role
	err := sqlx.GetContext(ctx, q, &role, q.Rebind(`SELECT role FROM group_members WHERE group_id = ? AND user_id = ?`), groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := sqlx.GetContext(ctx, q, &exists, q.Rebind(`SELECT EXISTS(SELECT 1 FROM chat_groups WHERE id = ?)`), groupID); err != nil {
			return "", err
		}
		if !exists {
			return "", ErrGroupNotFound
		}
		return "", ErrNotMember
	}
	if err != nil {
		return "", fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// Settings returns the group policy.
func (r *GroupRepo) Settings(ctx context.Context, groupID int64) (models.GroupSettings, error) {
	return settingsOf(ctx, r.db, groupID)
}

func settingsOf(ctx context.Context, q sqlx.ExtContext, groupID int64) (models.GroupSettings, error) {
	var s models.GroupSettings
	err := sqlx.GetContext(ctx, q, &s, q.Rebind(`SELECT group_id, send_messages, send_media, add_members, edit_info, locked, approval_required
        FROM group_settings WHERE group_id = ?`), groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupSettings{}, ErrGroupNotFound
	}
	if err != nil {
		return models.GroupSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// Permission returns the member's override row, or the permissive default when none exists.
func (r *GroupRepo) Permission(ctx context.Context, groupID int64, userID string) (models.MemberPermission, error) {
	return permissionOf(ctx, r.db, groupID, userID)
}

func permissionOf(ctx context.Context, q sqlx.ExtContext, groupID int64, userID string) (models.MemberPermission, error) {
	var p models.MemberPermission
	err := sqlx.GetContext(ctx, q, &p, q.Rebind(`SELECT group_id, user_id, can_send_messages, can_send_media, can_add_members,
            muted, muted_until, mute_reason, muted_by, muted_at
        FROM member_permissions WHERE group_id = ? AND user_id = ?`), groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultMemberPermission(groupID, userID), nil
	}
	if err != nil {
		return models.MemberPermission{}, fmt.Errorf("get permission: %w", err)
	}
	return p, nil
}

func savePermission(ctx context.Context, tx *sqlx.Tx, p models.MemberPermission) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO member_permissions
            (group_id, user_id, can_send_messages, can_send_media, can_add_members, muted, muted_until, mute_reason, muted_by, muted_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (group_id, user_id) DO UPDATE SET
            can_send_messages = excluded.can_send_messages,
            can_send_media = excluded.can_send_media,
            can_add_members = excluded.can_add_members,
            muted = excluded.muted,
            muted_until = excluded.muted_until,
            mute_reason = excluded.mute_reason,
            muted_by = excluded.muted_by,
            muted_at = excluded.muted_at`),
		p.GroupID, p.UserID, p.CanSendMessages, p.CanSendMedia, p.CanAddMembers, p.Muted,
		nullableTime(p.MutedUntil), p.MuteReason, p.MutedBy, nullableTime(p.MutedAt))
	return err
}

func (r *GroupRepo) logAction(ctx context.Context, tx *sqlx.Tx, groupID int64, actorID, targetID, action, details string) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO permission_logs (group_id, actor_id, target_id, action, details, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`), groupID, actorID, targetID, action, details, r.clock())
	return err
}

// require returns the actor's role if it may perform act.
func (r *GroupRepo) require(ctx context.Context, q sqlx.ExtContext, groupID int64, actorID string, act authz.Action) (models.Role, error) {
	role, err := roleOf(ctx, q, groupID, actorID)
	if err != nil {
		return "", err
	}
	if !r.authz.Can(role, act) {
		return role, ErrPermissionDenied
	}
	return role, nil
}

// AddMembers adds users as plain members and returns the ids actually added.
// It fails with ErrAlreadyMember only when every requested user already belongs to the group.
func (r *GroupRepo) AddMembers(ctx context.Context, groupID int64, actorID string, userIDs []string) ([]string, error) {
	added := []string{}
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		settings, err := settingsOf(ctx, tx, groupID)
		if err != nil {
			return err
		}
		role, err := r.require(ctx, tx, groupID, actorID, authz.ActAddMember.For(settings.AddMembers))
		if err != nil {
			return err
		}
		if !role.IsAdmin() {
			perm, err := permissionOf(ctx, tx, groupID, actorID)
			if err != nil {
				return err
			}
			if !perm.CanAddMembers {
				return ErrPermissionDenied
			}
		}

		now := r.clock()
		for _, id := range userIDs {
			if id == "" {
				continue
			}
			_, err := roleOf(ctx, tx, groupID, id)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotMember) {
				return err
			}
			var known bool
			if err := tx.GetContext(ctx, &known, tx.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), id); err != nil {
				return err
			}
			if !known {
				return fmt.Errorf("%w: %s", ErrUserNotFound, id)
			}
			if err := insertMember(ctx, tx, groupID, id, models.RoleMember, now); err != nil {
				return err
			}
			if err := r.logAction(ctx, tx, groupID, actorID, id, LogMemberAdded, ""); err != nil {
				return err
			}
			added = append(added, id)
		}
		if len(added) == 0 {
			return ErrAlreadyMember
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveMember removes another member. The creator cannot be removed and removing an admin needs the creator.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int64, actorID, targetID string) error {
	if actorID == targetID {
		return r.Leave(ctx, groupID, actorID)
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		actorRole, err := r.require(ctx, tx, groupID, actorID, authz.ActRemoveMember)
		if err != nil {
			return err
		}
		targetRole, err := roleOf(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		switch targetRole {
		case models.RoleCreator:
			return ErrPermissionDenied
		case models.RoleAdmin:
			if !r.authz.Can(actorRole, authz.ActRemoveAdmin) {
				return ErrPermissionDenied
			}
		}
		if err := deleteMember(ctx, tx, groupID, targetID); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, targetID, LogMemberRemoved, "")
	})
}

// Leave removes the user from the group. The creator cannot leave; they delete the group instead.
func (r *GroupRepo) Leave(ctx context.Context, groupID int64, userID string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := r.require(ctx, tx, groupID, userID, authz.ActLeave); err != nil {
			return err
		}
		if err := deleteMember(ctx, tx, groupID, userID); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, userID, userID, LogMemberLeft, "")
	})
}

func deleteMember(ctx context.Context, tx *sqlx.Tx, groupID int64, userID string) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`), groupID, userID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM member_permissions WHERE group_id = ? AND user_id = ?`), groupID, userID)
	return err
}

// UpdateRole promotes or demotes a member. Only the creator may do this and the creator's role is fixed.
func (r *GroupRepo) UpdateRole(ctx context.Context, groupID int64, actorID, targetID string, role models.Role) error {
	if role != models.RoleAdmin && role != models.RoleMember {
		return ErrInvalidRole
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := r.require(ctx, tx, groupID, actorID, authz.ActUpdateRole); err != nil {
			return err
		}
		current, err := roleOf(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		if current == models.RoleCreator {
			return ErrPermissionDenied
		}
		if current == role {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE group_members SET role = ? WHERE group_id = ? AND user_id = ?`), role, groupID, targetID); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, targetID, LogRoleChanged, string(current)+" -> "+string(role))
	})
}

// UpdateSettings applies a settings patch. Admins only.
func (r *GroupRepo) UpdateSettings(ctx context.Context, groupID int64, actorID string, upd models.SettingsUpdate) (models.GroupSettings, error) {
	var s models.GroupSettings
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := r.require(ctx, tx, groupID, actorID, authz.ActUpdateSettings); err != nil {
			return err
		}
		var err error
		if s, err = settingsOf(ctx, tx, groupID); err != nil {
			return err
		}
		var changed []string
		setAudience := func(field string, dst *string, v *string) {
			if v != nil && *v != *dst {
				*dst = *v
				changed = append(changed, field+"="+*v)
			}
		}
		setFlag := func(field string, dst *bool, v *bool) {
			if v != nil && *v != *dst {
				*dst = *v
				changed = append(changed, fmt.Sprintf("%s=%t", field, *v))
			}
		}
		setAudience("sendMessages", &s.SendMessages, upd.SendMessages)
		setAudience("sendMedia", &s.SendMedia, upd.SendMedia)
		setAudience("addMembers", &s.AddMembers, upd.AddMembers)
		setAudience("editInfo", &s.EditInfo, upd.EditInfo)
		setFlag("locked", &s.Locked, upd.Locked)
		setFlag("approvalRequired", &s.ApprovalRequired, upd.ApprovalRequired)
		if len(changed) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE group_settings SET send_messages = ?, send_media = ?, add_members = ?,
            edit_info = ?, locked = ?, approval_required = ? WHERE group_id = ?`),
			s.SendMessages, s.SendMedia, s.AddMembers, s.EditInfo, s.Locked, s.ApprovalRequired, groupID); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, "", LogSettingsChanged, strings.Join(changed, ","))
	})
	if err != nil {
		return models.GroupSettings{}, err
	}
	return s, nil
}

// UpdateGroup edits name, description or avatar, subject to the editInfo setting.
func (r *GroupRepo) UpdateGroup(ctx context.Context, groupID int64, actorID string, upd models.GroupUpdate) (models.Group, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		s, err := settingsOf(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if _, err := r.require(ctx, tx, groupID, actorID, authz.ActEditInfo.For(s.EditInfo)); err != nil {
			return err
		}
		var g models.Group
		if err := tx.GetContext(ctx, &g, tx.Rebind(`SELECT `+groupColumns+` FROM chat_groups g WHERE g.id = ?`), groupID); err != nil {
			return err
		}
		var changed []string
		if upd.Name != nil && strings.TrimSpace(*upd.Name) != "" {
			g.Name = strings.TrimSpace(*upd.Name)
			changed = append(changed, "name")
		}
		if upd.Description != nil {
			g.Description = *upd.Description
			changed = append(changed, "description")
		}
		if upd.Avatar != nil {
			g.Avatar = *upd.Avatar
			changed = append(changed, "avatar")
		}
		if len(changed) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE chat_groups SET name = ?, description = ?, avatar = ? WHERE id = ?`),
			g.Name, g.Description, g.Avatar, groupID); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, "", LogGroupUpdated, strings.Join(changed, ","))
	})
	if err != nil {
		return models.Group{}, err
	}
	return r.GetGroup(ctx, groupID)
}

// DeleteGroup removes the group and everything keyed by it, returning the former member ids.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int64, actorID string) ([]string, error) {
	var members []string
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := r.require(ctx, tx, groupID, actorID, authz.ActDeleteGroup); err != nil {
			return err
		}
		var err error
		if members, err = memberIDs(ctx, tx, groupID); err != nil {
			return err
		}
		stmts := []string{
			`DELETE FROM reactions WHERE message_id IN (SELECT id FROM messages WHERE group_id = ?)`,
			`DELETE FROM message_deletions WHERE message_id IN (SELECT id FROM messages WHERE group_id = ?)`,
			`DELETE FROM messages WHERE group_id = ?`,
			`DELETE FROM member_permissions WHERE group_id = ?`,
			`DELETE FROM mute_history WHERE group_id = ?`,
			`DELETE FROM permission_logs WHERE group_id = ?`,
			`DELETE FROM group_settings WHERE group_id = ?`,
			`DELETE FROM group_members WHERE group_id = ?`,
			`DELETE FROM chat_groups WHERE id = ?`,
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, tx.Rebind(s), groupID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// JoinByInvite adds the user to the group owning the invite code.
func (r *GroupRepo) JoinByInvite(ctx context.Context, code, userID string) (models.Group, error) {
	var group models.Group
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &group, tx.Rebind(`SELECT `+groupColumns+` FROM chat_groups g WHERE g.invite_code = ?`), code)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidInviteLink
		}
		if err != nil {
			return err
		}
		if _, err := roleOf(ctx, tx, group.ID, userID); err == nil {
			return ErrAlreadyMember
		} else if !errors.Is(err, ErrNotMember) {
			return err
		}
		s, err := settingsOf(ctx, tx, group.ID)
		if err != nil {
			return err
		}
		if s.ApprovalRequired {
			return fmt.Errorf("%w: joining requires admin approval", ErrPermissionDenied)
		}
		if err := insertMember(ctx, tx, group.ID, userID, models.RoleMember, r.clock()); err != nil {
			return err
		}
		return r.logAction(ctx, tx, group.ID, userID, userID, LogMemberJoined, "")
	})
	if err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// RegenerateInvite replaces the invite code, invalidating the old one.
func (r *GroupRepo) RegenerateInvite(ctx context.Context, groupID int64, actorID string) (string, error) {
	code := newInviteCode()
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := r.require(ctx, tx, groupID, actorID, authz.ActManageInvite); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE chat_groups SET invite_code = ? WHERE id = ?`), code, groupID); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, "", LogInviteRegenerated, "")
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// UpdatePermissions edits a member's send/media/add-member overrides. Admin targets need the creator.
func (r *GroupRepo) UpdatePermissions(ctx context.Context, groupID int64, actorID, targetID string, upd models.PermissionUpdate) (models.MemberPermission, error) {
	var p models.MemberPermission
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		actorRole, err := r.require(ctx, tx, groupID, actorID, authz.ActUpdatePermissions)
		if err != nil {
			return err
		}
		targetRole, err := roleOf(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		if targetRole == models.RoleCreator || (targetRole == models.RoleAdmin && !r.authz.Can(actorRole, authz.ActMuteAdmin)) {
			return ErrPermissionDenied
		}
		if p, err = permissionOf(ctx, tx, groupID, targetID); err != nil {
			return err
		}
		var changed []string
		apply := func(field string, dst *bool, v *bool) {
			if v != nil {
				*dst = *v
				changed = append(changed, fmt.Sprintf("%s=%t", field, *v))
			}
		}
		apply("canSendMessages", &p.CanSendMessages, upd.CanSendMessages)
		apply("canSendMedia", &p.CanSendMedia, upd.CanSendMedia)
		apply("canAddMembers", &p.CanAddMembers, upd.CanAddMembers)
		if len(changed) == 0 {
			return nil
		}
		if err := savePermission(ctx, tx, p); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, targetID, LogPermissionChanged, strings.Join(changed, ","))
	})
	if err != nil {
		return models.MemberPermission{}, err
	}
	return p, nil
}

// CheckSend applies the send-gating rules in order: membership, mute, the member's send override,
// media permission, lock, then the admins-only posting setting.
func (r *GroupRepo) CheckSend(ctx context.Context, groupID int64, userID string, msgType models.MessageType) error {
	role, err := r.Role(ctx, groupID, userID)
	if err != nil {
		return err
	}
	perm, err := r.Permission(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if perm.Muted {
		if perm.IsMutedAt(r.clock()) {
			return ErrMuted
		}
		if err := r.expireMute(ctx, perm); err != nil {
			return err
		}
	}
	if !perm.CanSendMessages {
		return ErrPermissionDenied
	}
	settings, err := r.Settings(ctx, groupID)
	if err != nil {
		return err
	}
	if msgType.IsMedia() && (!perm.CanSendMedia || !r.authz.Can(role, authz.ActSendMedia.For(settings.SendMedia))) {
		return fmt.Errorf("%w: media not allowed", ErrPermissionDenied)
	}
	if settings.Locked && !r.authz.Can(role, authz.ActPostLocked) {
		return fmt.Errorf("%w: group is locked", ErrPermissionDenied)
	}
	if !r.authz.Can(role, authz.ActPost.For(settings.SendMessages)) {
		return fmt.Errorf("%w: only admins can send messages", ErrPermissionDenied)
	}
	return nil
}
