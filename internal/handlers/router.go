package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lan-chat/internal/logging"
	"lan-chat/internal/observability"
	"lan-chat/internal/repositories"
	"lan-chat/internal/validation"
	"lan-chat/internal/ws"
)

// Wire error codes.
const (
	CodeNotMember         = "NotMember"
	CodeNotOwner          = "NotOwner"
	CodePermissionDenied  = "PermissionDenied"
	CodeMuted             = "Muted"
	CodeEditWindowExpired = "EditWindowExpired"
	CodeMaxPinnedExceeded = "MaxPinnedExceeded"
	CodeInvalidInviteLink = "InvalidInviteLink"
	CodeAlreadyMember     = "AlreadyMember"
	CodeNotFound          = "NotFound"
	CodeInvalidPayload    = "InvalidPayload"
	CodeInternal          = "Internal"
)

// ErrInvalidPayload wraps decode and validation failures of inbound data.
var ErrInvalidPayload = errors.New("invalid payload")

var errUnknownEvent = fmt.Errorf("%w: unknown event", ErrInvalidPayload)

// Session identifies the connection a frame arrived on.
type Session struct {
	ConnID    string
	UserID    string
	RequestID string
}

// HandlerFunc handles one inbound event and returns the success reply.
type HandlerFunc func(ctx context.Context, s Session, data json.RawMessage) (any, error)

type route struct {
	fn         HandlerFunc
	replyEvent string
	errEvent   string
}

// RouteOption customizes how a route replies when the client sent no ack id.
type RouteOption func(*route)

// ReplyAs emits the success reply as event to the originating connection.
func ReplyAs(event string) RouteOption {
	return func(r *route) { r.replyEvent = event }
}

// ErrorAs emits failures as event instead of the generic "error" event.
// An empty event means the handler reports failures itself.
func ErrorAs(event string) RouteOption {
	return func(r *route) { r.errEvent = event }
}

// Router dispatches socket frames to handlers and implements ws.Handler.
type Router struct {
	routes   map[string]route
	hub      Broadcaster
	presence *PresenceHandler
}

// NewRouter builds an empty router. presence may be nil in tests that only dispatch.
func NewRouter(hub Broadcaster, presence *PresenceHandler) *Router {
	return &Router{routes: make(map[string]route), hub: hub, presence: presence}
}

// On registers a handler for an event.
func (r *Router) On(event string, fn HandlerFunc, opts ...RouteOption) {
	rt := route{fn: fn, errEvent: "error"}
	for _, opt := range opts {
		opt(&rt)
	}
	r.routes[event] = rt
}

// Events lists the registered event names.
func (r *Router) Events() []string {
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	return out
}

// Call runs the handler for event. Panics are recovered and reported as internal errors.
func (r *Router) Call(ctx context.Context, s Session, event string, data json.RawMessage) (result any, err error) {
	rt, ok := r.routes[event]
	if !ok {
		return nil, errUnknownEvent
	}
	defer func() {
		if p := recover(); p != nil {
			logging.Component("router").Error().
				Str("event", event).
				Str("user_id", s.UserID).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			result, err = nil, fmt.Errorf("panic in %s: %v", event, p)
		}
	}()
	return rt.fn(ctx, s, data)
}

// HandleFrame implements ws.Handler.
func (r *Router) HandleFrame(ctx context.Context, c *ws.Client, f ws.Frame) {
	ctx, span := observability.Tracer().Start(ctx, "ws.event "+f.Event)
	defer span.End()
	span.SetAttributes(attribute.String("ws.event", f.Event), attribute.String("user.id", c.UserID()))

	s := Session{ConnID: c.ID(), UserID: c.UserID(), RequestID: c.Info().RequestID}
	start := time.Now()
	result, err := r.Call(ctx, s, f.Event, f.Data)

	outcome := "ok"
	var reply ws.ErrorReply
	if err != nil {
		reply = errorReply(err)
		outcome = reply.Code
		span.SetStatus(codes.Error, reply.Error)
		logEventError(s, f.Event, reply.Code, err)
	}
	observability.ObserveWSEvent(f.Event, outcome, time.Since(start))

	rt := r.routes[f.Event]
	switch {
	case f.Ack != nil && err != nil:
		c.Reply(*f.Ack, reply)
	case f.Ack != nil:
		c.Reply(*f.Ack, result)
	case err != nil && (rt.errEvent != "" || rt.fn == nil):
		event := rt.errEvent
		if event == "" {
			event = "error"
		}
		c.Emit(event, reply)
	case err == nil && rt.replyEvent != "":
		c.Emit(rt.replyEvent, result)
	}
}

// Connected implements ws.Handler.
func (r *Router) Connected(ctx context.Context, c *ws.Client) {
	if r.presence == nil {
		return
	}
	s := Session{ConnID: c.ID(), UserID: c.UserID(), RequestID: c.Info().RequestID}
	if err := r.presence.Connect(ctx, s); err != nil {
		logging.Component("presence").Error().Err(err).Str("user_id", s.UserID).Msg("connect")
	}
}

// Disconnected implements ws.Handler.
func (r *Router) Disconnected(ctx context.Context, c *ws.Client) {
	if r.presence == nil {
		return
	}
	r.presence.Disconnect(ctx, Session{ConnID: c.ID(), UserID: c.UserID()})
}

func logEventError(s Session, event, code string, err error) {
	ev := logging.Component("router").Debug()
	if code == CodeInternal {
		ev = logging.Component("router").Error()
	}
	ev.Err(err).Str("event", event).Str("code", code).Str("user_id", s.UserID).Str("conn_id", s.ConnID).Msg("event failed")
}

// errorCode maps domain errors onto wire codes. Unknown errors are internal and their text is not exposed.
func errorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, repositories.ErrMuted):
		return CodeMuted, true
	case errors.Is(err, repositories.ErrPermissionDenied):
		return CodePermissionDenied, true
	case errors.Is(err, repositories.ErrNotMember):
		return CodeNotMember, true
	case errors.Is(err, repositories.ErrNotOwner):
		return CodeNotOwner, true
	case errors.Is(err, repositories.ErrEditWindowExpired):
		return CodeEditWindowExpired, true
	case errors.Is(err, repositories.ErrMaxPinnedExceeded):
		return CodeMaxPinnedExceeded, true
	case errors.Is(err, repositories.ErrInvalidInviteLink):
		return CodeInvalidInviteLink, true
	case errors.Is(err, repositories.ErrAlreadyMember):
		return CodeAlreadyMember, true
	case errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrGroupNotFound),
		errors.Is(err, repositories.ErrUserNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, repositories.ErrInvalidTransition),
		errors.Is(err, repositories.ErrInvalidEmoji),
		errors.Is(err, repositories.ErrInvalidMuteDuration),
		errors.Is(err, repositories.ErrInvalidRole):
		return CodeInvalidPayload, true
	default:
		return CodeInternal, false
	}
}

func errorReply(err error) ws.ErrorReply {
	code, known := errorCode(err)
	msg := "internal error"
	if known {
		msg = err.Error()
	}
	return ws.ErrorReply{Success: false, Error: msg, Code: code}
}

// bind decodes data into dst and validates it.
func bind(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validation.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// ok marks a reply as successful.
func ok(h gin.H) gin.H {
	if h == nil {
		h = gin.H{}
	}
	h["success"] = true
	return h
}
