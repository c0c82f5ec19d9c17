package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/authz"
	"lan-chat/internal/config"
	"lan-chat/internal/db"
	"lan-chat/internal/mocks"
	"lan-chat/internal/presence"
	"lan-chat/internal/repositories"
)

type emitted struct {
	scope  string // conn, user, all or group
	target string
	group  int64
	event  string
	data   any
	except string
}

type recordingHub struct {
	mu      sync.Mutex
	events  []emitted
	members map[int64]map[string]bool
	closed  []int64
}

func newRecordingHub() *recordingHub {
	return &recordingHub{members: make(map[int64]map[string]bool)}
}

func (h *recordingHub) record(e emitted) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHub) EmitToConn(connID, event string, data any) {
	h.record(emitted{scope: "conn", target: connID, event: event, data: data})
}

func (h *recordingHub) EmitToUser(userID, event string, data any, exceptConn string) {
	h.record(emitted{scope: "user", target: userID, event: event, data: data, except: exceptConn})
}

func (h *recordingHub) BroadcastAll(event string, data any, exceptUser string) {
	h.record(emitted{scope: "all", event: event, data: data, except: exceptUser})
}

func (h *recordingHub) JoinConn(string, ...int64) {}

func (h *recordingHub) JoinGroup(groupID int64, userIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[groupID] == nil {
		h.members[groupID] = make(map[string]bool)
	}
	for _, id := range userIDs {
		h.members[groupID][id] = true
	}
}

func (h *recordingHub) LeaveGroup(groupID int64, userIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range userIDs {
		delete(h.members[groupID], id)
	}
}

func (h *recordingHub) CloseGroup(groupID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, groupID)
	h.closed = append(h.closed, groupID)
}

func (h *recordingHub) EmitToGroup(groupID int64, event string, data any, exceptConn string) {
	h.record(emitted{scope: "group", group: groupID, event: event, data: data, except: exceptConn})
}

func (h *recordingHub) find(event string) []emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []emitted
	for _, e := range h.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (h *recordingHub) sentTo(scope, target, event string) []emitted {
	var out []emitted
	for _, e := range h.find(event) {
		if e.scope == scope && e.target == target {
			out = append(out, e)
		}
	}
	return out
}

func (h *recordingHub) inGroup(groupID int64, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.members[groupID][userID]
}

func (h *recordingHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	clock    *testClock
	users    *repositories.UserRepo
	messages *repositories.MessageRepo
	groups   *repositories.GroupRepo
	gmsgs    *repositories.GroupMessageRepo
	hub      *recordingHub
	registry *presence.Registry
	presence *PresenceHandler
	router   *Router
	chat     *ChatHandler
	notifier *mocks.NotifierMock
	auditor  *mocks.AuditorMock
	sweeper  *MuteSweeper
}

func newTestEnv(t *testing.T, userIDs ...string) *testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Connect(ctx, config.DatabaseConfig{Driver: db.DriverSQLite, DSN: "file::memory:?_foreign_keys=on"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opt := repositories.WithClock(clock.Now)
	env := &testEnv{
		clock:    clock,
		users:    repositories.NewUserRepo(conn, opt),
		messages: repositories.NewMessageRepo(conn, opt),
		groups:   repositories.NewGroupRepo(conn, authz.MustEnforcer(), opt),
		gmsgs:    repositories.NewGroupMessageRepo(conn, opt),
		hub:      newRecordingHub(),
		notifier: new(mocks.NotifierMock),
		auditor:  new(mocks.AuditorMock),
	}
	env.notifier.On("SendNotification", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	env.auditor.On("Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()

	reactions := repositories.NewReactionRepo(conn, opt)
	env.presence = NewPresenceHandler(env.users, env.messages, env.groups, env.hub)
	env.registry = presence.NewRegistry(env.presence)
	env.presence.SetRegistry(env.registry)

	env.router = NewRouter(env.hub, env.presence)
	env.chat = NewChatHandler(env.messages, env.gmsgs, env.groups, reactions, env.users, env.hub, env.registry, env.notifier, 0)
	env.chat.Register(env.router)
	NewGroupHandler(env.groups, env.gmsgs, env.users, env.hub, env.registry, env.notifier, env.auditor).Register(env.router)
	env.sweeper = NewMuteSweeper(env.groups, env.hub, time.Minute)

	for _, id := range userIDs {
		_, err := env.users.Ensure(ctx, id, id+"-pc", "10.0.0.2")
		require.NoError(t, err)
	}
	return env
}

func session(userID, connID string) Session {
	return Session{UserID: userID, ConnID: connID, RequestID: "req-" + connID}
}

func (e *testEnv) connect(t *testing.T, userID, connID string) {
	t.Helper()
	require.NoError(t, e.presence.Connect(context.Background(), session(userID, connID)))
}

func (e *testEnv) disconnect(userID, connID string) {
	e.presence.Disconnect(context.Background(), session(userID, connID))
}

func (e *testEnv) call(userID, connID, event string, data any) (gin.H, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	res, err := e.router.Call(context.Background(), session(userID, connID), event, raw)
	if err != nil {
		return nil, err
	}
	h, _ := res.(gin.H)
	return h, nil
}

func (e *testEnv) mustCall(t *testing.T, userID, connID, event string, data any) gin.H {
	t.Helper()
	res, err := e.call(userID, connID, event, data)
	require.NoError(t, err, event)
	return res
}
