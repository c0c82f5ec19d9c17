package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	key     string
	event   any
	headers map[string]string
	err     error
}

func (c *capture) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	c.key = routingKey
	c.event = event
	c.headers = headers
	return c.err
}

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := &capture{}
	e := NewAuditEmitter(pub, "audit.groups", "lan-chat", "test")
	e.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	e.Emit(context.Background(), "req-1", "alice", AuditPayload{GroupID: 7, Action: "member_muted", TargetID: "bob"})

	require.IsType(t, AuditEnvelope{}, pub.event)
	env := pub.event.(AuditEnvelope)
	assert.Equal(t, "audit.groups", pub.key)
	assert.Equal(t, "group_audit", env.EventType)
	assert.Equal(t, "2024-01-02T03:04:05Z", env.OccurredAt)
	assert.Equal(t, "alice", env.ActorID)
	assert.Equal(t, int64(7), env.Payload.GroupID)
	assert.Equal(t, "req-1", pub.headers["x-request-id"])
}

func TestEmitSwallowsErrorsAndNil(t *testing.T) {
	var nilEmitter *AuditEmitter
	nilEmitter.Emit(context.Background(), "", "a", AuditPayload{})

	e := NewAuditEmitter(&capture{err: errors.New("down")}, "audit.groups", "lan-chat", "test")
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), "", "a", AuditPayload{Action: "x"})
	})
}
