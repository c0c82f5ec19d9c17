package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lan-chat/internal/models"
)

// UserRepository persists chat users.
type UserRepository interface {
	Ensure(ctx context.Context, id, hostname, address string) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	SetPresence(ctx context.Context, id, status string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error)
}

// UserRepo is a sqlx-backed UserRepository.
type UserRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB, opts ...Option) *UserRepo {
	p := newPolicy(opts)
	return &UserRepo{db: db, now: p.now}
}

const userColumns = `id, display_name, hostname, avatar, bio, status, last_address, last_seen, created_at`

// Ensure creates the user on first contact and refreshes the auxiliary address afterwards.
// The display name defaults to the hostname, or a short form of the id.
func (r *UserRepo) Ensure(ctx context.Context, id, hostname, address string) (models.User, error) {
	name := hostname
	if name == "" {
		name = defaultDisplayName(id)
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO users (id, display_name, hostname, last_address, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET last_address = excluded.last_address`),
		id, name, hostname, address, models.PresenceOffline, r.now().UTC())
	if err != nil {
		return models.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return r.Get(ctx, id)
}

func defaultDisplayName(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "User-" + id
}

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// List returns every known user ordered by display name.
func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY display_name, id`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetPresence flips the online/offline flag and stamps last_seen.
func (r *UserRepo) SetPresence(ctx context.Context, id, status string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET status = ?, last_seen = ? WHERE id = ?`), status, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields of upd.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Avatar != nil {
		u.Avatar = *upd.Avatar
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET display_name = ?, avatar = ?, bio = ? WHERE id = ?`),
		u.DisplayName, u.Avatar, u.Bio, id); err != nil {
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}
