package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lan-chat/internal/observability"
)

const wsRoutingKey = "ws_events.connections"

func newConnID() string {
	return uuid.NewString()
}

func publishLifecycle(ctx context.Context, name string, info ConnInfo, reason string) {
	var duration int64
	if name != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]any{
			"ws": map[string]any{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":    info.UserID,
				"ip":         info.IP,
				"user_agent": info.UserAgent,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
