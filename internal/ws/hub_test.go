package ws

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/config"
)

func testClient(connID, userID string) *Client {
	cfg := config.Default().Socket
	cfg.SendBuffer = 8
	return newClient(nil, ConnInfo{ConnID: connID, UserID: userID}, cfg)
}

func drain(c *Client) []string {
	var events []string
	for {
		select {
		case b := <-c.send:
			var f Frame
			if err := json.Unmarshal(b, &f); err == nil {
				events = append(events, f.Event)
			}
		default:
			return events
		}
	}
}

func TestHubEmitToUserSkipsOrigin(t *testing.T) {
	hub := NewHub()
	a1, a2, b := testClient("a1", "alice"), testClient("a2", "alice"), testClient("b1", "bob")
	hub.Add(a1)
	hub.Add(a2)
	hub.Add(b)

	hub.EmitToUser("alice", "message:new", map[string]int{"id": 1}, "a1")

	assert.Empty(t, drain(a1))
	assert.Equal(t, []string{"message:new"}, drain(a2))
	assert.Empty(t, drain(b))
}

func TestHubBroadcastAllExceptUser(t *testing.T) {
	hub := NewHub()
	a, b := testClient("a1", "alice"), testClient("b1", "bob")
	hub.Add(a)
	hub.Add(b)

	hub.BroadcastAll("user:online", map[string]string{"userId": "alice"}, "alice")

	assert.Empty(t, drain(a))
	assert.Equal(t, []string{"user:online"}, drain(b))
}

func TestHubGroupChannels(t *testing.T) {
	hub := NewHub()
	a, b, c := testClient("a1", "alice"), testClient("b1", "bob"), testClient("c1", "carol")
	hub.Add(a)
	hub.Add(b)
	hub.Add(c)

	hub.JoinConn("a1", 7)
	hub.JoinGroup(7, "bob")
	assert.Equal(t, []string{"a1", "b1"}, hub.GroupConnections(7))

	hub.EmitToGroup(7, "group:message:new", nil, "a1")
	assert.Empty(t, drain(a))
	assert.Equal(t, []string{"group:message:new"}, drain(b))
	assert.Empty(t, drain(c))

	hub.LeaveGroup(7, "bob")
	assert.Equal(t, []string{"a1"}, hub.GroupConnections(7))

	hub.CloseGroup(7)
	assert.Empty(t, hub.GroupConnections(7))
}

func TestHubRemoveClearsIndexes(t *testing.T) {
	hub := NewHub()
	a := testClient("a1", "alice")
	hub.Add(a)
	hub.JoinConn("a1", 1, 2)
	require.Equal(t, 1, hub.Len())

	hub.Remove(a)

	assert.Equal(t, 0, hub.Len())
	assert.Empty(t, hub.GroupConnections(1))
	hub.EmitToUser("alice", "x", nil, "")
	assert.Empty(t, drain(a))
}

func TestSlowClientIsClosed(t *testing.T) {
	c := testClient("a1", "alice")
	for i := 0; i < 9; i++ {
		c.Emit("tick", i)
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("expected client to be closed after overflowing its buffer")
	}
	assert.Len(t, drain(c), 8)
}

func TestFrameCodec(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"event":"message:send","ack":4,"data":{"content":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, "message:send", f.Event)
	require.NotNil(t, f.Ack)
	assert.Equal(t, int64(4), *f.Ack)
	assert.JSONEq(t, `{"content":"hi"}`, string(f.Data))

	b, err := EncodeAck(4, map[string]bool{"success": true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ack","ack":4,"data":{"success":true}}`, string(b))

	b, err = EncodeRequest("users:list", 0, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"users:list"}`, string(b))
}
