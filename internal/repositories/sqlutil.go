package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"lan-chat/internal/models"
)

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// selectIn expands IN (?) placeholders and rebinds for the connection's dialect.
func selectIn(ctx context.Context, q queryer, dest any, query string, args ...any) error {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(expanded), expandedArgs...)
}

// execIn is selectIn for statements.
func execIn(ctx context.Context, e rebindExecer, query string, args ...any) (int64, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return 0, err
	}
	res, err := e.ExecContext(ctx, e.Rebind(expanded), expandedArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type queryer interface {
	sqlx.QueryerContext
	Rebind(string) string
}

type rebindExecer interface {
	sqlx.ExecerContext
	Rebind(string) string
}

// likePattern builds a case-insensitive substring pattern; use with ESCAPE '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(q)) + "%"
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func typeStrings(types []models.MessageType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// loadReactions aggregates reactions for the given messages, keeping first-reaction order per emoji.
func loadReactions(ctx context.Context, q queryer, ids []int64) (map[int64][]models.ReactionGroup, error) {
	out := make(map[int64][]models.ReactionGroup, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Reaction
	if err := selectIn(ctx, q, &rows,
		`SELECT message_id, user_id, emoji, created_at FROM reactions WHERE message_id IN (?) ORDER BY created_at ASC, user_id ASC`, ids); err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	for _, r := range rows {
		groups := out[r.MessageID]
		idx := -1
		for i := range groups {
			if groups[i].Emoji == r.Emoji {
				idx = i
				break
			}
		}
		if idx < 0 {
			groups = append(groups, models.ReactionGroup{Emoji: r.Emoji})
			idx = len(groups) - 1
		}
		groups[idx].Count++
		groups[idx].Users = append(groups[idx].Users, r.UserID)
		out[r.MessageID] = groups
	}
	return out, nil
}

// loadPreviews resolves reply targets that are not already known from the current page.
func loadPreviews(ctx context.Context, q queryer, known map[int64]models.ReplyPreview, wanted []int64) (map[int64]models.ReplyPreview, error) {
	var missing []int64
	for _, id := range wanted {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return known, nil
	}
	var rows []models.ReplyPreview
	if err := selectIn(ctx, q, &rows,
		`SELECT id, sender_id, content, type, deleted_for_all FROM messages WHERE id IN (?)`, missing); err != nil {
		return nil, fmt.Errorf("load reply previews: %w", err)
	}
	for _, r := range rows {
		known[r.ID] = r
	}
	return known, nil
}

func reversed[T any](in []T) []T {
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}
	return in
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
