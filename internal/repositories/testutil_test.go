package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/authz"
	"lan-chat/internal/config"
	"lan-chat/internal/db"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Connect(context.Background(), config.DatabaseConfig{Driver: db.DriverSQLite, DSN: "file::memory:?_foreign_keys=on"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type fixture struct {
	db       *sqlx.DB
	clock    *fakeClock
	users    *UserRepo
	messages *MessageRepo
	groups   *GroupRepo
	gmsgs    *GroupMessageRepo
	reacts   *ReactionRepo
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()
	conn := newTestDB(t)
	clock := newFakeClock()
	opt := WithClock(clock.Now)
	f := &fixture{
		db:       conn,
		clock:    clock,
		users:    NewUserRepo(conn, opt),
		messages: NewMessageRepo(conn, opt),
		groups:   NewGroupRepo(conn, authz.MustEnforcer(), opt),
		gmsgs:    NewGroupMessageRepo(conn, opt),
		reacts:   NewReactionRepo(conn, opt),
	}
	for _, id := range userIDs {
		_, err := f.users.Ensure(context.Background(), id, id+"-host", "10.0.0.1")
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) send(t *testing.T, from, to, content string) int64 {
	t.Helper()
	msg, err := f.messages.Save(context.Background(), newText(from, to, content))
	require.NoError(t, err)
	// distinct timestamps keep ordering assertions readable
	f.clock.Advance(time.Second)
	return msg.ID
}
