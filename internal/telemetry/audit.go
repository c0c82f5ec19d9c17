// Package telemetry publishes group audit events to the message bus.
package telemetry

import (
	"context"
	"time"

	"lan-chat/internal/logging"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id,omitempty"`
	ActorID       string       `json:"actor_id"`
	Payload       AuditPayload `json:"payload"`
}

// AuditPayload describes one group mutation.
type AuditPayload struct {
	GroupID  int64  `json:"group_id"`
	Action   string `json:"action"`
	TargetID string `json:"target_id,omitempty"`
	Details  string `json:"details,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes one audit event. Failures are logged and never surface to the caller.
func (e *AuditEmitter) Emit(ctx context.Context, requestID, actorID string, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "group_audit",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		ActorID:       actorID,
		Payload:       payload,
	}

	log := logging.Component("audit")
	log.Debug().
		Int64("group_id", payload.GroupID).
		Str("action", payload.Action).
		Str("actor_id", actorID).
		Msg("audit emit")
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, map[string]string{"x-request-id": requestID}); err != nil {
		log.Warn().Err(err).Str("action", payload.Action).Msg("audit publish failed")
	}
}
