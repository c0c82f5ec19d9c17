package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lan-chat/internal/models"
)

// GroupMessageRepository defines interactions for group messages. Every read and write requires membership.
type GroupMessageRepository interface {
	Save(ctx context.Context, in models.NewGroupMessage) (models.GroupMessage, error)
	Get(ctx context.Context, id int64) (models.GroupMessage, error)
	List(ctx context.Context, groupID int64, requesterID string, limit, offset int) ([]models.GroupMessage, error)
	ListOlderThan(ctx context.Context, groupID int64, requesterID string, beforeID int64, limit int) ([]models.GroupMessage, bool, error)
	Edit(ctx context.Context, id int64, requesterID, content string) (models.GroupMessage, error)
	Delete(ctx context.Context, id int64, requesterID string, forEveryone bool) (models.GroupMessage, error)
	Pin(ctx context.Context, id int64, requesterID string) (models.GroupMessage, error)
	Unpin(ctx context.Context, id int64, requesterID string) (models.GroupMessage, error)
	Pinned(ctx context.Context, groupID int64, requesterID string) ([]models.GroupMessage, error)
	Search(ctx context.Context, groupID int64, requesterID, query string, limit int) ([]models.GroupMessage, error)
	Media(ctx context.Context, groupID int64, requesterID string, types []models.MessageType, limit, offset int) ([]models.GroupMessage, error)
}

// GroupMessageRepo is a sqlx-backed implementation.
type GroupMessageRepo struct {
	db *sqlx.DB
	policy
}

// NewGroupMessageRepo constructs a GroupMessageRepo.
func NewGroupMessageRepo(db *sqlx.DB, opts ...Option) *GroupMessageRepo {
	return &GroupMessageRepo{db: db, policy: newPolicy(opts)}
}

const groupMessageColumns = `m.id, m.group_id, m.sender_id, COALESCE(u.display_name, '') AS sender_name, m.content, m.type,
        m.reply_to, m.edited, m.edited_at, m.forwarded, m.deleted_for_all, m.pinned, m.pinned_at, m.caption,
        m.file_name, m.file_size, m.created_at`

const groupMessageFrom = ` FROM messages m LEFT JOIN users u ON u.id = m.sender_id `

// groupScope limits to one group and hides rows the viewer removed for themselves. Arguments: group, viewer.
const groupScope = `m.group_id = ?
        AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)`

// Save persists a group message. Send gating happens in GroupRepository.CheckSend.
func (r *GroupMessageRepo) Save(ctx context.Context, in models.NewGroupMessage) (models.GroupMessage, error) {
	if in.Type == "" {
		in.Type = models.TypeText
	}
	if in.ReplyToID != nil {
		target, err := r.Get(ctx, *in.ReplyToID)
		if err != nil {
			return models.GroupMessage{}, fmt.Errorf("reply target: %w", err)
		}
		if target.GroupID != in.GroupID {
			return models.GroupMessage{}, fmt.Errorf("reply target: %w", ErrMessageNotFound)
		}
	}
	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO messages
        (sender_id, group_id, content, type, reply_to, status, forwarded, caption, file_name, file_size, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		in.SenderID, in.GroupID, in.Content, in.Type, nullableID(in.ReplyToID), models.StatusSent,
		in.Forwarded, in.Caption, in.FileName, in.FileSize, r.clock()).Scan(&id)
	if err != nil {
		return models.GroupMessage{}, fmt.Errorf("insert group message: %w", err)
	}
	return r.Get(ctx, id)
}

// Get fetches a single group message with reactions and reply preview.
func (r *GroupMessageRepo) Get(ctx context.Context, id int64) (models.GroupMessage, error) {
	msg, err := r.getRaw(ctx, r.db, id)
	if err != nil {
		return models.GroupMessage{}, err
	}
	msgs := []models.GroupMessage{msg}
	if err := r.decorate(ctx, msgs); err != nil {
		return models.GroupMessage{}, err
	}
	return msgs[0], nil
}

func (r *GroupMessageRepo) getRaw(ctx context.Context, q sqlx.ExtContext, id int64) (models.GroupMessage, error) {
	var msg models.GroupMessage
	err := sqlx.GetContext(ctx, q, &msg, q.Rebind(`SELECT `+groupMessageColumns+groupMessageFrom+`WHERE m.id = ? AND m.group_id IS NOT NULL`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupMessage{}, ErrMessageNotFound
	}
	if err != nil {
		return models.GroupMessage{}, fmt.Errorf("get group message %d: %w", id, err)
	}
	return msg, nil
}

// List returns the newest page of a group, oldest first within the page.
func (r *GroupMessageRepo) List(ctx context.Context, groupID int64, requesterID string, limit, offset int) ([]models.GroupMessage, error) {
	if _, err := roleOf(ctx, r.db, groupID, requesterID); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	var msgs []models.GroupMessage
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+groupMessageColumns+groupMessageFrom+`
        WHERE `+groupScope+` ORDER BY m.id DESC LIMIT ? OFFSET ?`), groupID, requesterID, r.limit(limit), offset); err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	msgs = reversed(msgs)
	return msgs, r.decorate(ctx, msgs)
}

// ListOlderThan returns up to limit messages before beforeID and whether more exist.
func (r *GroupMessageRepo) ListOlderThan(ctx context.Context, groupID int64, requesterID string, beforeID int64, limit int) ([]models.GroupMessage, bool, error) {
	if _, err := roleOf(ctx, r.db, groupID, requesterID); err != nil {
		return nil, false, err
	}
	limit = r.limit(limit)
	var msgs []models.GroupMessage
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+groupMessageColumns+groupMessageFrom+`
        WHERE `+groupScope+` AND m.id < ? ORDER BY m.id DESC LIMIT ?`), groupID, requesterID, beforeID, limit+1); err != nil {
		return nil, false, fmt.Errorf("list older group messages: %w", err)
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	msgs = reversed(msgs)
	return msgs, hasMore, r.decorate(ctx, msgs)
}

// Edit replaces the content of the requester's own message within the edit window.
func (r *GroupMessageRepo) Edit(ctx context.Context, id int64, requesterID, content string) (models.GroupMessage, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		msg, err := r.getRaw(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := roleOf(ctx, tx, msg.GroupID, requesterID); err != nil {
			return err
		}
		if msg.SenderID != requesterID {
			return ErrNotOwner
		}
		if msg.DeletedForAll {
			return ErrMessageNotFound
		}
		if !r.withinWindow(msg.CreatedAt) {
			return ErrEditWindowExpired
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET content = ?, edited = ?, edited_at = ? WHERE id = ?`),
			content, true, r.clock(), id)
		return err
	})
	if err != nil {
		return models.GroupMessage{}, err
	}
	return r.Get(ctx, id)
}

// Delete removes a message for everyone or hides it for the requester. The sender may delete for
// everyone within the edit window; admins may do so at any time.
func (r *GroupMessageRepo) Delete(ctx context.Context, id int64, requesterID string, forEveryone bool) (models.GroupMessage, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		msg, err := r.getRaw(ctx, tx, id)
		if err != nil {
			return err
		}
		role, err := roleOf(ctx, tx, msg.GroupID, requesterID)
		if err != nil {
			return err
		}
		if !forEveryone {
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO message_deletions (message_id, user_id, created_at)
                VALUES (?, ?, ?) ON CONFLICT DO NOTHING`), id, requesterID, r.clock())
			return err
		}
		switch {
		case msg.SenderID == requesterID:
			if !r.withinWindow(msg.CreatedAt) && !role.IsAdmin() {
				return ErrEditWindowExpired
			}
		case !role.IsAdmin():
			return ErrNotOwner
		}
		return tombstone(ctx, tx, id)
	})
	if err != nil {
		return models.GroupMessage{}, err
	}
	return r.Get(ctx, id)
}

// Pin pins a message in its group, enforcing the per-group cap.
func (r *GroupMessageRepo) Pin(ctx context.Context, id int64, requesterID string) (models.GroupMessage, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		msg, err := r.getRaw(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := roleOf(ctx, tx, msg.GroupID, requesterID); err != nil {
			return err
		}
		if msg.DeletedForAll {
			return ErrMessageNotFound
		}
		if msg.Pinned {
			return nil
		}
		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM messages WHERE group_id = ? AND pinned = ?`), msg.GroupID, true); err != nil {
			return err
		}
		if count >= r.maxPinned {
			return ErrMaxPinnedExceeded
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET pinned = ?, pinned_at = ? WHERE id = ?`), true, r.clock(), id)
		return err
	})
	if err != nil {
		return models.GroupMessage{}, err
	}
	return r.Get(ctx, id)
}

// Unpin clears the pin on a group message.
func (r *GroupMessageRepo) Unpin(ctx context.Context, id int64, requesterID string) (models.GroupMessage, error) {
	msg, err := r.getRaw(ctx, r.db, id)
	if err != nil {
		return models.GroupMessage{}, err
	}
	if _, err := roleOf(ctx, r.db, msg.GroupID, requesterID); err != nil {
		return models.GroupMessage{}, err
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET pinned = ?, pinned_at = NULL WHERE id = ?`), false, id); err != nil {
		return models.GroupMessage{}, fmt.Errorf("unpin: %w", err)
	}
	return r.Get(ctx, id)
}

// Pinned lists pinned messages of a group, most recently pinned first.
func (r *GroupMessageRepo) Pinned(ctx context.Context, groupID int64, requesterID string) ([]models.GroupMessage, error) {
	if _, err := roleOf(ctx, r.db, groupID, requesterID); err != nil {
		return nil, err
	}
	var msgs []models.GroupMessage
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+groupMessageColumns+groupMessageFrom+`
        WHERE `+groupScope+` AND m.pinned = ? ORDER BY m.pinned_at DESC, m.id DESC`), groupID, requesterID, true); err != nil {
		return nil, fmt.Errorf("pinned group messages: %w", err)
	}
	return msgs, r.decorate(ctx, msgs)
}

// Search does a case-insensitive substring match within one group.
func (r *GroupMessageRepo) Search(ctx context.Context, groupID int64, requesterID, query string, limit int) ([]models.GroupMessage, error) {
	if _, err := roleOf(ctx, r.db, groupID, requesterID); err != nil {
		return nil, err
	}
	pattern := likePattern(query)
	var msgs []models.GroupMessage
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+groupMessageColumns+groupMessageFrom+`
        WHERE `+groupScope+` AND m.deleted_for_all = ?
        AND ((m.type = ? AND LOWER(m.content) LIKE ? ESCAPE '\') OR LOWER(m.caption) LIKE ? ESCAPE '\')
        ORDER BY m.id DESC LIMIT ?`), groupID, requesterID, false, models.TypeText, pattern, pattern, r.limit(limit)); err != nil {
		return nil, fmt.Errorf("search group messages: %w", err)
	}
	return msgs, r.decorate(ctx, msgs)
}

// Media lists media messages of a group, newest first.
func (r *GroupMessageRepo) Media(ctx context.Context, groupID int64, requesterID string, types []models.MessageType, limit, offset int) ([]models.GroupMessage, error) {
	if _, err := roleOf(ctx, r.db, groupID, requesterID); err != nil {
		return nil, err
	}
	if len(types) == 0 {
		types = models.MediaTypes
	}
	if offset < 0 {
		offset = 0
	}
	var msgs []models.GroupMessage
	if err := selectIn(ctx, r.db, &msgs, `SELECT `+groupMessageColumns+groupMessageFrom+`
        WHERE `+groupScope+` AND m.deleted_for_all = ? AND m.type IN (?)
        ORDER BY m.id DESC LIMIT ? OFFSET ?`, groupID, requesterID, false, typeStrings(types), r.limit(limit), offset); err != nil {
		return nil, fmt.Errorf("group media: %w", err)
	}
	return msgs, r.decorate(ctx, msgs)
}

func (r *GroupMessageRepo) decorate(ctx context.Context, msgs []models.GroupMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, len(msgs))
	known := make(map[int64]models.ReplyPreview, len(msgs))
	var replyIDs []int64
	for i, m := range msgs {
		ids[i] = m.ID
		known[m.ID] = models.ReplyPreview{ID: m.ID, SenderID: m.SenderID, Content: m.Content, Type: m.Type, DeletedForAll: m.DeletedForAll}
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}
	reactions, err := loadReactions(ctx, r.db, ids)
	if err != nil {
		return err
	}
	previews, err := loadPreviews(ctx, r.db, known, replyIDs)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].Reactions = reactions[msgs[i].ID]
		if msgs[i].Reactions == nil {
			msgs[i].Reactions = []models.ReactionGroup{}
		}
		if msgs[i].ReplyToID != nil {
			if p, ok := previews[*msgs[i].ReplyToID]; ok {
				msgs[i].ReplyTo = &p
			}
		}
	}
	return nil
}
