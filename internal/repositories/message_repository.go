package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lan-chat/internal/models"
)

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	Save(ctx context.Context, in models.NewMessage) (models.Message, error)
	Get(ctx context.Context, id int64) (models.Message, error)
	GetForUser(ctx context.Context, id int64, requesterID string) (models.Message, error)
	GetBetween(ctx context.Context, requesterID, peerID string, limit, offset int) ([]models.Message, error)
	GetOlderThan(ctx context.Context, requesterID, peerID string, beforeID int64, limit int) ([]models.Message, bool, error)
	GetAround(ctx context.Context, requesterID, peerID string, targetID int64, before, after int) (models.MessageWindow, error)
	UpdateStatus(ctx context.Context, id int64, status models.MessageStatus) (bool, error)
	MarkDelivered(ctx context.Context, senderID, receiverID string) ([]int64, error)
	MarkAllDelivered(ctx context.Context, receiverID string) ([]models.StatusChange, error)
	MarkRead(ctx context.Context, senderID, receiverID string, ids []int64) ([]int64, error)
	Edit(ctx context.Context, id int64, requesterID, content string) (models.Message, error)
	Delete(ctx context.Context, id int64, requesterID string, forEveryone bool) (models.Message, error)
	Pin(ctx context.Context, id int64, requesterID string) (models.Message, error)
	Unpin(ctx context.Context, id int64, requesterID string) (models.Message, error)
	Pinned(ctx context.Context, requesterID, peerID string) ([]models.Message, error)
	Search(ctx context.Context, requesterID string, peerID *string, query string, limit int) ([]models.Message, error)
	Media(ctx context.Context, requesterID, peerID string, types []models.MessageType, limit, offset int) ([]models.Message, error)
	Conversations(ctx context.Context, userID string) ([]models.Conversation, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
	policy
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB, opts ...Option) *MessageRepo {
	return &MessageRepo{db: db, policy: newPolicy(opts)}
}

const messageColumns = `m.id, m.sender_id, m.receiver_id, m.content, m.type, m.reply_to, m.status, m.edited, m.edited_at,
        m.forwarded, m.deleted_for_all, m.pinned, m.pinned_at, m.caption, m.file_name, m.file_size, m.created_at`

// betweenClause scopes to one direct conversation and hides rows the viewer removed for themselves.
// Arguments: viewer, peer, peer, viewer, viewer.
const betweenClause = `m.group_id IS NULL
        AND ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))
        AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)`

func betweenArgs(viewer, peer string) []any {
	return []any{viewer, peer, peer, viewer, viewer}
}

// Save stores a new message in the sent state.
func (r *MessageRepo) Save(ctx context.Context, in models.NewMessage) (models.Message, error) {
	if in.Type == "" {
		in.Type = models.TypeText
	}
	if in.ReplyToID != nil {
		target, err := r.Get(ctx, *in.ReplyToID)
		if err != nil {
			return models.Message{}, fmt.Errorf("reply target: %w", err)
		}
		if !sameConversation(target, in.SenderID, in.ReceiverID) {
			return models.Message{}, fmt.Errorf("reply target: %w", ErrMessageNotFound)
		}
	}

	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO messages
        (sender_id, receiver_id, content, type, reply_to, status, forwarded, caption, file_name, file_size, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		in.SenderID, in.ReceiverID, in.Content, in.Type, nullableID(in.ReplyToID), models.StatusSent,
		in.Forwarded, in.Caption, in.FileName, in.FileSize, r.clock()).Scan(&id)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return r.Get(ctx, id)
}

// Get retrieves a single direct message with reactions and reply preview.
func (r *MessageRepo) Get(ctx context.Context, id int64) (models.Message, error) {
	msg, err := r.getRaw(ctx, r.db, id)
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{msg}
	if err := r.decorate(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// GetForUser returns the message only if requesterID is a participant and has not hidden it.
func (r *MessageRepo) GetForUser(ctx context.Context, id int64, requesterID string) (models.Message, error) {
	msg, err := r.Get(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != requesterID && msg.ReceiverID != requesterID {
		return models.Message{}, ErrMessageNotFound
	}
	hidden, err := r.hiddenFor(ctx, id, requesterID)
	if err != nil {
		return models.Message{}, err
	}
	if hidden {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (r *MessageRepo) getRaw(ctx context.Context, q sqlx.QueryerContext, id int64) (models.Message, error) {
	var msg models.Message
	err := sqlx.GetContext(ctx, q, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages m WHERE m.id = ? AND m.group_id IS NULL`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

func (r *MessageRepo) hiddenFor(ctx context.Context, id int64, userID string) (bool, error) {
	var hidden bool
	err := r.db.GetContext(ctx, &hidden, r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM message_deletions WHERE message_id = ? AND user_id = ?)`), id, userID)
	return hidden, err
}

// GetBetween returns the newest page of a conversation, oldest first within the page.
func (r *MessageRepo) GetBetween(ctx context.Context, requesterID, peerID string, limit, offset int) ([]models.Message, error) {
	if offset < 0 {
		offset = 0
	}
	args := append(betweenArgs(requesterID, peerID), r.limit(limit), offset)
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages m
        WHERE `+betweenClause+`
        ORDER BY m.id DESC LIMIT ? OFFSET ?`), args...); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	msgs = reversed(msgs)
	return msgs, r.decorate(ctx, msgs)
}

// GetOlderThan returns up to limit messages before beforeID and whether more exist.
func (r *MessageRepo) GetOlderThan(ctx context.Context, requesterID, peerID string, beforeID int64, limit int) ([]models.Message, bool, error) {
	limit = r.limit(limit)
	msgs, err := r.page(ctx, requesterID, peerID, "m.id < ?", "m.id DESC", beforeID, limit+1)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	msgs = reversed(msgs)
	return msgs, hasMore, r.decorate(ctx, msgs)
}

// GetAround returns a window centered on targetID for jump-to-message.
func (r *MessageRepo) GetAround(ctx context.Context, requesterID, peerID string, targetID int64, before, after int) (models.MessageWindow, error) {
	target, err := r.GetForUser(ctx, targetID, requesterID)
	if err != nil {
		return models.MessageWindow{}, err
	}
	if !sameConversation(target, requesterID, peerID) {
		return models.MessageWindow{}, ErrMessageNotFound
	}
	before, after = r.limit(before), r.limit(after)

	older, err := r.page(ctx, requesterID, peerID, "m.id < ?", "m.id DESC", targetID, before+1)
	if err != nil {
		return models.MessageWindow{}, err
	}
	newer, err := r.page(ctx, requesterID, peerID, "m.id > ?", "m.id ASC", targetID, after+1)
	if err != nil {
		return models.MessageWindow{}, err
	}

	win := models.MessageWindow{HasOlder: len(older) > before, HasNewer: len(newer) > after}
	if win.HasOlder {
		older = older[:before]
	}
	if win.HasNewer {
		newer = newer[:after]
	}
	msgs := make([]models.Message, 0, len(older)+1+len(newer))
	msgs = append(msgs, reversed(older)...)
	win.TargetIndex = len(msgs)
	msgs = append(msgs, target)
	msgs = append(msgs, newer...)
	if err := r.decorate(ctx, msgs); err != nil {
		return models.MessageWindow{}, err
	}
	win.Messages = msgs
	return win, nil
}

func (r *MessageRepo) page(ctx context.Context, viewer, peer, cond, order string, pivot int64, limit int) ([]models.Message, error) {
	args := append(betweenArgs(viewer, peer), pivot, limit)
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages m
        WHERE `+betweenClause+` AND `+cond+`
        ORDER BY `+order+` LIMIT ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("page conversation: %w", err)
	}
	return msgs, nil
}

// UpdateStatus moves a message forward in its lifecycle. Same-state updates report false.
func (r *MessageRepo) UpdateStatus(ctx context.Context, id int64, status models.MessageStatus) (bool, error) {
	msg, err := r.getRaw(ctx, r.db, id)
	if err != nil {
		return false, err
	}
	if !msg.Status.CanTransition(status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, msg.Status, status)
	}
	if msg.Status == status {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET status = ? WHERE id = ? AND status = ?`), status, id, msg.Status)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkDelivered flips every sent message from sender to receiver to delivered.
func (r *MessageRepo) MarkDelivered(ctx context.Context, senderID, receiverID string) ([]int64, error) {
	var ids []int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &ids, tx.Rebind(`SELECT id FROM messages
            WHERE group_id IS NULL AND sender_id = ? AND receiver_id = ? AND status = ? ORDER BY id`),
			senderID, receiverID, models.StatusSent); err != nil {
			return err
		}
		return r.setStatus(ctx, tx, ids, models.StatusDelivered, models.StatusSent)
	})
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	return ids, nil
}

// MarkAllDelivered flips every sent message addressed to receiver, across all senders.
func (r *MessageRepo) MarkAllDelivered(ctx context.Context, receiverID string) ([]models.StatusChange, error) {
	var changes []models.StatusChange
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &changes, tx.Rebind(`SELECT id, sender_id, receiver_id FROM messages
            WHERE group_id IS NULL AND receiver_id = ? AND status = ? ORDER BY id`),
			receiverID, models.StatusSent); err != nil {
			return err
		}
		ids := make([]int64, len(changes))
		for i, c := range changes {
			ids[i] = c.MessageID
		}
		return r.setStatus(ctx, tx, ids, models.StatusDelivered, models.StatusSent)
	})
	if err != nil {
		return nil, fmt.Errorf("mark all delivered: %w", err)
	}
	return changes, nil
}

// MarkRead flips messages from sender to receiver to read. An empty ids slice means all of them.
func (r *MessageRepo) MarkRead(ctx context.Context, senderID, receiverID string, ids []int64) ([]int64, error) {
	var changed []int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `SELECT id FROM messages
            WHERE group_id IS NULL AND sender_id = ? AND receiver_id = ? AND status IN (?)`
		args := []any{senderID, receiverID, []string{string(models.StatusSent), string(models.StatusDelivered)}}
		if len(ids) > 0 {
			query += ` AND id IN (?)`
			args = append(args, ids)
		}
		if err := selectIn(ctx, tx, &changed, query+` ORDER BY id`, args...); err != nil {
			return err
		}
		return r.setStatus(ctx, tx, changed, models.StatusRead, models.StatusSent, models.StatusDelivered)
	})
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return changed, nil
}

func (r *MessageRepo) setStatus(ctx context.Context, tx *sqlx.Tx, ids []int64, to models.MessageStatus, from ...models.MessageStatus) error {
	if len(ids) == 0 {
		return nil
	}
	froms := make([]string, len(from))
	for i, f := range from {
		froms[i] = string(f)
	}
	_, err := execIn(ctx, tx, `UPDATE messages SET status = ? WHERE id IN (?) AND status IN (?)`, to, ids, froms)
	return err
}

// Edit replaces the content of a message. Recipients must acknowledge again, so status resets to sent.
func (r *MessageRepo) Edit(ctx context.Context, id int64, requesterID, content string) (models.Message, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		msg, err := r.getRaw(ctx, tx, id)
		if err != nil {
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
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET content = ?, edited = ?, edited_at = ?, status = ? WHERE id = ?`),
			content, true, r.clock(), models.StatusSent, id)
		return err
	})
	if err != nil {
		return models.Message{}, err
	}
	return r.Get(ctx, id)
}

// Delete removes a message for everyone (sender, within the edit window) or hides it for the requester.
func (r *MessageRepo) Delete(ctx context.Context, id int64, requesterID string, forEveryone bool) (models.Message, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		msg, err := r.getRaw(ctx, tx, id)
		if err != nil {
			return err
		}
		if msg.SenderID != requesterID && msg.ReceiverID != requesterID {
			return ErrMessageNotFound
		}
		if !forEveryone {
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO message_deletions (message_id, user_id, created_at)
                VALUES (?, ?, ?) ON CONFLICT DO NOTHING`), id, requesterID, r.clock())
			return err
		}
		if msg.SenderID != requesterID {
			return ErrNotOwner
		}
		if !r.withinWindow(msg.CreatedAt) {
			return ErrEditWindowExpired
		}
		return tombstone(ctx, tx, id)
	})
	if err != nil {
		return models.Message{}, err
	}
	return r.Get(ctx, id)
}

// tombstone replaces a message body with the deletion marker and drops its reactions.
func tombstone(ctx context.Context, tx *sqlx.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET content = ?, deleted_for_all = ?, pinned = ?, pinned_at = NULL,
        caption = '', file_name = '', file_size = 0 WHERE id = ?`), models.DeletedContent, true, false, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM reactions WHERE message_id = ?`), id)
	return err
}

// Pin pins a message, enforcing the per-conversation cap. Pinning a pinned message is a no-op.
func (r *MessageRepo) Pin(ctx context.Context, id int64, requesterID string) (models.Message, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		msg, err := r.getRaw(ctx, tx, id)
		if err != nil {
			return err
		}
		if msg.SenderID != requesterID && msg.ReceiverID != requesterID {
			return ErrMessageNotFound
		}
		if msg.DeletedForAll {
			return ErrMessageNotFound
		}
		if msg.Pinned {
			return nil
		}
		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM messages m
            WHERE m.group_id IS NULL AND m.pinned = ?
            AND ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))`),
			true, msg.SenderID, msg.ReceiverID, msg.ReceiverID, msg.SenderID); err != nil {
			return err
		}
		if count >= r.maxPinned {
			return ErrMaxPinnedExceeded
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET pinned = ?, pinned_at = ? WHERE id = ?`), true, r.clock(), id)
		return err
	})
	if err != nil {
		return models.Message{}, err
	}
	return r.Get(ctx, id)
}

// Unpin clears the pin on a message.
func (r *MessageRepo) Unpin(ctx context.Context, id int64, requesterID string) (models.Message, error) {
	msg, err := r.getRaw(ctx, r.db, id)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != requesterID && msg.ReceiverID != requesterID {
		return models.Message{}, ErrMessageNotFound
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET pinned = ?, pinned_at = NULL WHERE id = ?`), false, id); err != nil {
		return models.Message{}, fmt.Errorf("unpin: %w", err)
	}
	return r.Get(ctx, id)
}

// Pinned lists the pinned messages of a conversation, most recently pinned first.
func (r *MessageRepo) Pinned(ctx context.Context, requesterID, peerID string) ([]models.Message, error) {
	args := append(betweenArgs(requesterID, peerID), true)
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages m
        WHERE `+betweenClause+` AND m.pinned = ?
        ORDER BY m.pinned_at DESC, m.id DESC`), args...); err != nil {
		return nil, fmt.Errorf("pinned messages: %w", err)
	}
	return msgs, r.decorate(ctx, msgs)
}

// Search does a case-insensitive substring match over text content and captions. A nil peer searches
// every conversation of the requester.
func (r *MessageRepo) Search(ctx context.Context, requesterID string, peerID *string, query string, limit int) ([]models.Message, error) {
	pattern := likePattern(query)
	var (
		scope string
		args  []any
	)
	if peerID != nil {
		scope = betweenClause
		args = betweenArgs(requesterID, *peerID)
	} else {
		scope = `m.group_id IS NULL AND (m.sender_id = ? OR m.receiver_id = ?)
        AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)`
		args = []any{requesterID, requesterID, requesterID}
	}
	args = append(args, false, models.TypeText, pattern, pattern, r.limit(limit))

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages m
        WHERE `+scope+` AND m.deleted_for_all = ?
        AND ((m.type = ? AND LOWER(m.content) LIKE ? ESCAPE '\') OR LOWER(m.caption) LIKE ? ESCAPE '\')
        ORDER BY m.id DESC LIMIT ?`), args...); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return msgs, r.decorate(ctx, msgs)
}

// Media lists media messages of a conversation, newest first.
func (r *MessageRepo) Media(ctx context.Context, requesterID, peerID string, types []models.MessageType, limit, offset int) ([]models.Message, error) {
	if len(types) == 0 {
		types = models.MediaTypes
	}
	if offset < 0 {
		offset = 0
	}
	args := append(betweenArgs(requesterID, peerID), false, typeStrings(types), r.limit(limit), offset)
	var msgs []models.Message
	if err := selectIn(ctx, r.db, &msgs, `SELECT `+messageColumns+` FROM messages m
        WHERE `+betweenClause+` AND m.deleted_for_all = ? AND m.type IN (?)
        ORDER BY m.id DESC LIMIT ? OFFSET ?`, args...); err != nil {
		return nil, fmt.Errorf("media messages: %w", err)
	}
	return msgs, r.decorate(ctx, msgs)
}

// Conversations lists the user's direct conversations by recency with unread counts.
func (r *MessageRepo) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var heads []struct {
		PeerID string `db:"peer_id"`
		LastID int64  `db:"last_id"`
	}
	if err := r.db.SelectContext(ctx, &heads, r.db.Rebind(`SELECT
            CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END AS peer_id,
            MAX(m.id) AS last_id
        FROM messages m
        WHERE m.group_id IS NULL AND (m.sender_id = ? OR m.receiver_id = ?)
        AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)
        GROUP BY 1
        ORDER BY last_id DESC`), userID, userID, userID, userID); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if len(heads) == 0 {
		return []models.Conversation{}, nil
	}

	var unread []struct {
		SenderID string `db:"sender_id"`
		Count    int    `db:"unread"`
	}
	if err := r.db.SelectContext(ctx, &unread, r.db.Rebind(`SELECT m.sender_id, COUNT(*) AS unread FROM messages m
        WHERE m.group_id IS NULL AND m.receiver_id = ? AND m.status <> ? AND m.deleted_for_all = ?
        AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)
        GROUP BY m.sender_id`), userID, models.StatusRead, false, userID); err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	counts := make(map[string]int, len(unread))
	for _, u := range unread {
		counts[u.SenderID] = u.Count
	}

	ids := make([]int64, len(heads))
	for i, h := range heads {
		ids[i] = h.LastID
	}
	var last []models.Message
	if err := selectIn(ctx, r.db, &last, `SELECT `+messageColumns+` FROM messages m WHERE m.id IN (?)`, ids); err != nil {
		return nil, fmt.Errorf("load last messages: %w", err)
	}
	if err := r.decorate(ctx, last); err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Message, len(last))
	for _, m := range last {
		byID[m.ID] = m
	}

	out := make([]models.Conversation, 0, len(heads))
	for _, h := range heads {
		out = append(out, models.Conversation{PeerID: h.PeerID, LastMessage: byID[h.LastID], UnreadCount: counts[h.PeerID]})
	}
	return out, nil
}

// decorate attaches aggregated reactions and reply previews in place.
func (r *MessageRepo) decorate(ctx context.Context, msgs []models.Message) error {
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

func sameConversation(m models.Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
