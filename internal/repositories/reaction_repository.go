package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/jmoiron/sqlx"

	"lan-chat/internal/models"
)

// ReactionRepository toggles and aggregates emoji reactions on direct and group messages.
type ReactionRepository interface {
	Toggle(ctx context.Context, messageID int64, userID, emoji string) ([]models.ReactionGroup, bool, error)
	ForMessage(ctx context.Context, messageID int64) ([]models.ReactionGroup, error)
}

// ReactionRepo is a sqlx-backed ReactionRepository.
type ReactionRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB, opts ...Option) *ReactionRepo {
	p := newPolicy(opts)
	return &ReactionRepo{db: db, now: p.now}
}

// ValidateEmoji accepts exactly one emoji with nothing around it.
func ValidateEmoji(reaction string) error {
	found := gomoji.CollectAll(reaction)
	if len(found) != 1 || found[0].Character != reaction {
		return ErrInvalidEmoji
	}
	return nil
}

// Toggle adds the reaction if absent, removes it otherwise, and returns the new aggregate.
// The boolean reports whether the reaction was added.
func (r *ReactionRepo) Toggle(ctx context.Context, messageID int64, userID, emoji string) ([]models.ReactionGroup, bool, error) {
	if err := ValidateEmoji(emoji); err != nil {
		return nil, false, err
	}
	var added bool
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var deleted bool
		err := tx.GetContext(ctx, &deleted, tx.Rebind(`SELECT deleted_for_all FROM messages WHERE id = ?`), messageID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		if deleted {
			return ErrMessageNotFound
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`), messageID, userID, emoji)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n > 0 {
			return err
		}
		added = true
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`),
			messageID, userID, emoji, r.now().UTC())
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("toggle reaction: %w", err)
	}
	groups, err := r.ForMessage(ctx, messageID)
	return groups, added, err
}

// ForMessage returns the aggregated reactions of one message.
func (r *ReactionRepo) ForMessage(ctx context.Context, messageID int64) ([]models.ReactionGroup, error) {
	byID, err := loadReactions(ctx, r.db, []int64{messageID})
	if err != nil {
		return nil, err
	}
	if groups := byID[messageID]; groups != nil {
		return groups, nil
	}
	return []models.ReactionGroup{}, nil
}
