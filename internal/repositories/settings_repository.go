package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SettingsRepo stores server-wide key/value settings.
type SettingsRepo struct {
	db *sqlx.DB
}

// NewSettingsRepo constructs a SettingsRepo.
func NewSettingsRepo(db *sqlx.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get returns the value and whether it was set.
func (r *SettingsRepo) Get(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := r.db.GetContext(ctx, &value, r.db.Rebind(`SELECT value FROM server_settings WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", name, err)
	}
	return value, true, nil
}

// GetOrInit returns the stored value, storing generate() first if none exists.
func (r *SettingsRepo) GetOrInit(ctx context.Context, name string, generate func() (string, error)) (string, error) {
	if v, ok, err := r.Get(ctx, name); err != nil || ok {
		return v, err
	}
	v, err := generate()
	if err != nil {
		return "", err
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO server_settings (name, value) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`), name, v); err != nil {
		return "", fmt.Errorf("init setting %s: %w", name, err)
	}
	// another writer may have won the insert
	v, _, err = r.Get(ctx, name)
	return v, err
}
