// Package push hands offline-recipient notifications to an external delivery worker over AMQP.
package push

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"lan-chat/internal/logging"
	"lan-chat/internal/observability"
)

// Payload is what the delivery worker renders into a notification.
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Kind    string `json:"kind"` // direct or group
	PeerID  string `json:"peerId,omitempty"`
	GroupID int64  `json:"groupId,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Notification is the message published per recipient.
type Notification struct {
	UserID  string  `json:"userId"`
	Payload Payload `json:"payload"`
	SentAt  string  `json:"sentAt"`
}

// Notifier delivers a notification to a user who has no live connection.
type Notifier interface {
	SendNotification(ctx context.Context, userID string, payload Payload) error
}

// Publisher is satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// BreakerConfig tunes the circuit guarding the publisher.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// DefaultBreakerConfig opens after five consecutive failures and probes again after 30s.
var DefaultBreakerConfig = BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second}

// AMQPNotifier publishes notifications through a circuit breaker.
type AMQPNotifier struct {
	publisher  Publisher
	routingKey string
	cb         *gobreaker.CircuitBreaker[any]
	now        func() time.Time
}

// NewAMQPNotifier wraps publisher with a breaker named after the routing key.
func NewAMQPNotifier(publisher Publisher, routingKey string, cfg BreakerConfig) *AMQPNotifier {
	log := logging.Component("push")
	settings := gobreaker.Settings{
		Name:        "push:" + routingKey,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("push breaker state change")
		},
	}
	return &AMQPNotifier{
		publisher:  publisher,
		routingKey: routingKey,
		cb:         gobreaker.NewCircuitBreaker[any](settings),
		now:        time.Now,
	}
}

// SendNotification publishes one notification, failing fast while the breaker is open.
func (n *AMQPNotifier) SendNotification(ctx context.Context, userID string, payload Payload) error {
	msg := Notification{UserID: userID, Payload: payload, SentAt: n.now().UTC().Format(time.RFC3339)}
	_, err := n.cb.Execute(func() (any, error) {
		return nil, n.publisher.Publish(ctx, n.routingKey, msg, nil)
	})
	if err != nil {
		observability.IncPush("error")
		return fmt.Errorf("push to %s: %w", userID, err)
	}
	observability.IncPush("ok")
	return nil
}

// State reports the breaker state for health output.
func (n *AMQPNotifier) State() string {
	return n.cb.State().String()
}

// Noop drops every notification.
type Noop struct{}

func (Noop) SendNotification(context.Context, string, Payload) error {
	observability.IncPush("skipped")
	return nil
}
