package handlers

import (
	"context"

	"lan-chat/internal/push"
	"lan-chat/internal/telemetry"
)

// Broadcaster routes events to live connections. *ws.Hub implements it.
type Broadcaster interface {
	EmitToConn(connID, event string, data any)
	EmitToUser(userID, event string, data any, exceptConn string)
	BroadcastAll(event string, data any, exceptUser string)
	JoinConn(connID string, groupIDs ...int64)
	JoinGroup(groupID int64, userIDs ...string)
	LeaveGroup(groupID int64, userIDs ...string)
	CloseGroup(groupID int64)
	EmitToGroup(groupID int64, event string, data any, exceptConn string)
}

// Presence answers who is online. *presence.Registry implements it.
type Presence interface {
	Register(userID, connID string) bool
	Unregister(userID, connID string) bool
	IsOnline(userID string) bool
	AllOnline() []string
}

// Auditor records group mutations. *telemetry.AuditEmitter implements it.
type Auditor interface {
	Emit(ctx context.Context, requestID, actorID string, payload telemetry.AuditPayload)
}

type noopAuditor struct{}

func (noopAuditor) Emit(context.Context, string, string, telemetry.AuditPayload) {}

func orNoopNotifier(n push.Notifier) push.Notifier {
	if n == nil {
		return push.Noop{}
	}
	return n
}

func orNoopAuditor(a Auditor) Auditor {
	if a == nil {
		return noopAuditor{}
	}
	return a
}
