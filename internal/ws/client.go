package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lan-chat/internal/config"
	"lan-chat/internal/logging"
)

// Handler receives connection lifecycle callbacks and inbound frames.
// HandleFrame runs on the connection's read goroutine, so frames from one socket are handled in order.
type Handler interface {
	Connected(ctx context.Context, c *Client)
	Disconnected(ctx context.Context, c *Client)
	HandleFrame(ctx context.Context, c *Client, f Frame)
}

// Client is one live socket. Outbound frames are queued and written by a dedicated goroutine.
type Client struct {
	info    ConnInfo
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	cfg     config.SocketConfig
	log     zerolog.Logger
}

func newClient(conn *websocket.Conn, info ConnInfo, cfg config.SocketConfig) *Client {
	return &Client{
		info:    info,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cfg:     cfg,
		log: logging.Component("ws").With().
			Str("conn_id", info.ConnID).
			Str("user_id", info.UserID).
			Logger(),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.info.ConnID }

// UserID returns the authenticated user behind this connection.
func (c *Client) UserID() string { return c.info.UserID }

// Info returns the handshake metadata.
func (c *Client) Info() ConnInfo { return c.info }

// Emit queues a server event for this connection.
func (c *Client) Emit(event string, data any) {
	b, err := EncodeEvent(event, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	c.enqueue(b)
}

// Reply queues the ack for request n.
func (c *Client) Reply(n int64, data any) {
	b, err := EncodeAck(n, data)
	if err != nil {
		c.log.Error().Err(err).Int64("ack", n).Msg("encode ack")
		return
	}
	c.enqueue(b)
}

// enqueue never blocks. A client whose buffer is full is too slow to keep and gets disconnected.
func (c *Client) enqueue(b []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- b:
	case <-c.done:
	default:
		c.log.Warn().Msg("send buffer full, closing connection")
		c.Close()
	}
}

// Close stops both pumps. The write pump sends a close frame and releases the socket.
// Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readPump(ctx context.Context, h Handler) string {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("unexpected websocket close")
			}
			return err.Error()
		}

		f, err := DecodeFrame(raw)
		if err != nil || f.Event == "" {
			c.Emit("error", ErrorReply{Error: "malformed frame", Code: "InvalidPayload"})
			continue
		}

		if !c.limiter.Allow() {
			reply := ErrorReply{Error: "too many requests", Code: CodeRateLimited}
			if f.Ack != nil {
				c.Reply(*f.Ack, reply)
			} else {
				c.Emit("error", reply)
			}
			continue
		}

		h.HandleFrame(ctx, c, f)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
