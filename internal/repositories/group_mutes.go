package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lan-chat/internal/authz"
	"lan-chat/internal/models"
)

// MuteForever mutes until explicitly unmuted.
const MuteForever = "forever"

var muteDurations = map[string]time.Duration{
	"30m":       30 * time.Minute,
	"1h":        time.Hour,
	"8h":        8 * time.Hour,
	"1d":        24 * time.Hour,
	"1w":        7 * 24 * time.Hour,
	MuteForever: 0,
}

// ParseMuteDuration maps a mute duration label to its length. Zero means indefinite.
func ParseMuteDuration(label string) (time.Duration, error) {
	d, ok := muteDurations[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMuteDuration, label)
	}
	return d, nil
}

// Mute silences a member. Admins may mute members; muting an admin needs the creator; the creator is never muted.
func (r *GroupRepo) Mute(ctx context.Context, groupID int64, actorID, targetID, duration, reason string) (models.MemberPermission, error) {
	length, err := ParseMuteDuration(duration)
	if err != nil {
		return models.MemberPermission{}, err
	}
	var p models.MemberPermission
	err = withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := r.checkMuteTarget(ctx, tx, groupID, actorID, targetID); err != nil {
			return err
		}
		var err error
		if p, err = permissionOf(ctx, tx, groupID, targetID); err != nil {
			return err
		}
		now := r.clock()
		p.Muted = true
		p.MuteReason = reason
		p.MutedBy = actorID
		p.MutedAt = &now
		p.MutedUntil = nil
		if length > 0 {
			until := now.Add(length)
			p.MutedUntil = &until
		}
		if err := savePermission(ctx, tx, p); err != nil {
			return err
		}
		if err := r.recordMute(ctx, tx, groupID, targetID, actorID, models.MuteActionMute, duration, reason, p.MutedUntil); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, targetID, LogMemberMuted, duration)
	})
	if err != nil {
		return models.MemberPermission{}, err
	}
	return p, nil
}

// Unmute lifts a mute. The same role rules as Mute apply.
func (r *GroupRepo) Unmute(ctx context.Context, groupID int64, actorID, targetID string) (models.MemberPermission, error) {
	var p models.MemberPermission
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := r.checkMuteTarget(ctx, tx, groupID, actorID, targetID); err != nil {
			return err
		}
		var err error
		if p, err = permissionOf(ctx, tx, groupID, targetID); err != nil {
			return err
		}
		if !p.Muted {
			return nil
		}
		clearMute(&p)
		if err := savePermission(ctx, tx, p); err != nil {
			return err
		}
		if err := r.recordMute(ctx, tx, groupID, targetID, actorID, models.MuteActionUnmute, "", "", nil); err != nil {
			return err
		}
		return r.logAction(ctx, tx, groupID, actorID, targetID, LogMemberUnmuted, "")
	})
	if err != nil {
		return models.MemberPermission{}, err
	}
	return p, nil
}

func (r *GroupRepo) checkMuteTarget(ctx context.Context, tx *sqlx.Tx, groupID int64, actorID, targetID string) error {
	actorRole, err := r.require(ctx, tx, groupID, actorID, authz.ActMuteMember)
	if err != nil {
		return err
	}
	if actorID == targetID {
		return ErrPermissionDenied
	}
	targetRole, err := roleOf(ctx, tx, groupID, targetID)
	if err != nil {
		return err
	}
	switch targetRole {
	case models.RoleCreator:
		return ErrPermissionDenied
	case models.RoleAdmin:
		if !r.authz.Can(actorRole, authz.ActMuteAdmin) {
			return ErrPermissionDenied
		}
	}
	return nil
}

func clearMute(p *models.MemberPermission) {
	p.Muted = false
	p.MutedUntil = nil
	p.MuteReason = ""
	p.MutedBy = ""
	p.MutedAt = nil
}

func (r *GroupRepo) recordMute(ctx context.Context, tx *sqlx.Tx, groupID int64, userID, actorID, action, duration, reason string, until *time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO mute_history (group_id, user_id, actor_id, action, duration, reason, until_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`), groupID, userID, actorID, action, duration, reason, nullableTime(until), r.clock())
	return err
}

// expireMute clears a mute whose deadline has passed.
func (r *GroupRepo) expireMute(ctx context.Context, p models.MemberPermission) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE member_permissions SET muted = ?, muted_until = NULL, mute_reason = '', muted_by = '', muted_at = NULL
            WHERE group_id = ? AND user_id = ? AND muted = ?`), false, p.GroupID, p.UserID, true)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		return r.recordMute(ctx, tx, p.GroupID, p.UserID, SystemActor, models.MuteActionExpire, "", "", p.MutedUntil)
	})
}

// ExpireMutes clears every timed mute whose deadline has passed and returns the affected rows as they are now.
func (r *GroupRepo) ExpireMutes(ctx context.Context) ([]models.MemberPermission, error) {
	var due []models.MemberPermission
	if err := r.db.SelectContext(ctx, &due, r.db.Rebind(`SELECT group_id, user_id, can_send_messages, can_send_media, can_add_members,
            muted, muted_until, mute_reason, muted_by, muted_at
        FROM member_permissions WHERE muted = ? AND muted_until IS NOT NULL AND muted_until <= ?`), true, r.clock()); err != nil {
		return nil, fmt.Errorf("find expired mutes: %w", err)
	}
	expired := make([]models.MemberPermission, 0, len(due))
	for _, p := range due {
		if err := r.expireMute(ctx, p); err != nil {
			return expired, fmt.Errorf("expire mute %d/%s: %w", p.GroupID, p.UserID, err)
		}
		clearMute(&p)
		expired = append(expired, p)
	}
	return expired, nil
}

// MuteHistory returns the mute trail of a group, newest first. Admins only.
func (r *GroupRepo) MuteHistory(ctx context.Context, groupID int64, actorID string) ([]models.MuteRecord, error) {
	if _, err := r.require(ctx, r.db, groupID, actorID, authz.ActViewAudit); err != nil {
		return nil, err
	}
	records := []models.MuteRecord{}
	err := r.db.SelectContext(ctx, &records, r.db.Rebind(`SELECT id, group_id, user_id, actor_id, action, duration, reason, until_at, created_at
        FROM mute_history WHERE group_id = ? ORDER BY id DESC`), groupID)
	if err != nil {
		return nil, fmt.Errorf("mute history: %w", err)
	}
	return records, nil
}

// PermissionLogs returns the audit trail of a group, newest first. Admins only.
func (r *GroupRepo) PermissionLogs(ctx context.Context, groupID int64, actorID string, limit int) ([]models.PermissionLog, error) {
	if _, err := r.require(ctx, r.db, groupID, actorID, authz.ActViewAudit); err != nil {
		return nil, err
	}
	logs := []models.PermissionLog{}
	err := r.db.SelectContext(ctx, &logs, r.db.Rebind(`SELECT id, group_id, actor_id, target_id, action, details, created_at
        FROM permission_logs WHERE group_id = ? ORDER BY id DESC LIMIT ?`), groupID, r.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("permission logs: %w", err)
	}
	return logs, nil
}
