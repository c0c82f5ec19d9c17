package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"lan-chat/internal/config"
	"lan-chat/internal/logging"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Connect opens the database described by cfg and runs migrations.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Open connects without migrating.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; one connection also keeps :memory: databases coherent.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate applies the schema for the connection's dialect. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	stmts, err := migrationsFor(db.DriverName())
	if err != nil {
		return err
	}
	for i, m := range stmts {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	logging.Info().Str("driver", db.DriverName()).Int("statements", len(stmts)).Msg("database migrations applied")
	return nil
}

func migrationsFor(driver string) ([]string, error) {
	var r *strings.Replacer
	switch driver {
	case DriverSQLite:
		r = strings.NewReplacer("{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{ts}}", "TIMESTAMP")
	case DriverPostgres:
		r = strings.NewReplacer("{{pk}}", "BIGSERIAL PRIMARY KEY", "{{ts}}", "TIMESTAMPTZ")
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	out := make([]string, len(schema))
	for i, s := range schema {
		out[i] = r.Replace(s)
	}
	return out, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL DEFAULT '',
            hostname TEXT NOT NULL DEFAULT '',
            avatar TEXT NOT NULL DEFAULT '',
            bio TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'offline',
            last_address TEXT NOT NULL DEFAULT '',
            last_seen {{ts}} NULL,
            created_at {{ts}} NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
            id {{pk}},
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            avatar TEXT NOT NULL DEFAULT '',
            creator_id TEXT NOT NULL,
            invite_code TEXT NOT NULL UNIQUE,
            created_at {{ts}} NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id {{pk}},
            sender_id TEXT NOT NULL,
            receiver_id TEXT NULL,
            group_id BIGINT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            type TEXT NOT NULL DEFAULT 'text',
            reply_to BIGINT NULL,
            status TEXT NOT NULL DEFAULT 'sent',
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at {{ts}} NULL,
            forwarded BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_for_all BOOLEAN NOT NULL DEFAULT FALSE,
            pinned BOOLEAN NOT NULL DEFAULT FALSE,
            pinned_at {{ts}} NULL,
            caption TEXT NOT NULL DEFAULT '',
            file_name TEXT NOT NULL DEFAULT '',
            file_size BIGINT NOT NULL DEFAULT 0,
            created_at {{ts}} NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_direct ON messages (sender_id, receiver_id, id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_inbox ON messages (receiver_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, id);`,
	`CREATE TABLE IF NOT EXISTS message_deletions (
            message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            created_at {{ts}} NOT NULL,
            PRIMARY KEY (message_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS reactions (
            message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            emoji TEXT NOT NULL,
            created_at {{ts}} NOT NULL,
            PRIMARY KEY (message_id, user_id, emoji)
        );`,
	`CREATE TABLE IF NOT EXISTS attachments (
            id {{pk}},
            uploader_id TEXT NOT NULL,
            url TEXT NOT NULL,
            original_name TEXT NOT NULL,
            mime_type TEXT NOT NULL,
            size BIGINT NOT NULL,
            created_at {{ts}} NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS group_members (
            group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            joined_at {{ts}} NOT NULL,
            PRIMARY KEY (group_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members (user_id);`,
	`CREATE TABLE IF NOT EXISTS group_settings (
            group_id BIGINT PRIMARY KEY REFERENCES chat_groups(id) ON DELETE CASCADE,
            send_messages TEXT NOT NULL DEFAULT 'all',
            send_media TEXT NOT NULL DEFAULT 'all',
            add_members TEXT NOT NULL DEFAULT 'admins',
            edit_info TEXT NOT NULL DEFAULT 'admins',
            locked BOOLEAN NOT NULL DEFAULT FALSE,
            approval_required BOOLEAN NOT NULL DEFAULT FALSE
        );`,
	`CREATE TABLE IF NOT EXISTS member_permissions (
            group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            can_send_messages BOOLEAN NOT NULL DEFAULT TRUE,
            can_send_media BOOLEAN NOT NULL DEFAULT TRUE,
            can_add_members BOOLEAN NOT NULL DEFAULT TRUE,
            muted BOOLEAN NOT NULL DEFAULT FALSE,
            muted_until {{ts}} NULL,
            mute_reason TEXT NOT NULL DEFAULT '',
            muted_by TEXT NOT NULL DEFAULT '',
            muted_at {{ts}} NULL,
            PRIMARY KEY (group_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS mute_history (
            id {{pk}},
            group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            actor_id TEXT NOT NULL,
            action TEXT NOT NULL,
            duration TEXT NOT NULL DEFAULT '',
            reason TEXT NOT NULL DEFAULT '',
            until_at {{ts}} NULL,
            created_at {{ts}} NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS permission_logs (
            id {{pk}},
            group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            actor_id TEXT NOT NULL,
            target_id TEXT NOT NULL DEFAULT '',
            action TEXT NOT NULL,
            details TEXT NOT NULL DEFAULT '',
            created_at {{ts}} NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS server_settings (
            name TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
}
