package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"lan-chat/internal/config"
	"lan-chat/internal/logging"
	"lan-chat/internal/observability"
)

// TokenParser resolves an identity token to a user id.
type TokenParser interface {
	Parse(token string) (string, error)
}

// Server upgrades authenticated HTTP requests into hub clients.
type Server struct {
	hub      *Hub
	handler  Handler
	parser   TokenParser
	cfg      config.SocketConfig
	upgrader websocket.Upgrader
}

// NewServer constructs a Server.
func NewServer(hub *Hub, handler Handler, parser TokenParser, cfg config.SocketConfig) *Server {
	return &Server{
		hub:     hub,
		handler: handler,
		parser:  parser,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// LAN clients are served from arbitrary host addresses.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws.
func (s *Server) Handle(c *gin.Context) {
	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	userID, err := s.parser.Parse(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Component("ws").Debug().Err(err).Msg("upgrade failed")
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		UserAgent:   c.Request.UserAgent(),
		RequestID:   observability.RequestID(c),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info, s.cfg)
	s.serve(ctx, client)
}

func (s *Server) serve(hctx context.Context, client *Client) {
	// the connection outlives the handshake request
	ctx, cancel := context.WithCancel(context.WithoutCancel(hctx))

	s.hub.Add(client)
	observability.IncWSActive()
	publishLifecycle(ctx, "ws_connect", client.info, "")
	client.log.Info().Str("ip", client.info.IP).Msg("socket connected")

	go client.writePump()
	s.handler.Connected(ctx, client)

	go func() {
		reason := client.readPump(ctx, s.handler)
		client.Close()
		s.hub.Remove(client)
		s.handler.Disconnected(ctx, client)
		observability.DecWSActive()
		publishLifecycle(ctx, "ws_disconnect", client.info, reason)
		client.log.Info().Str("reason", reason).Msg("socket disconnected")
		cancel()
	}()
}
