package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"lan-chat/internal/logging"
	"lan-chat/internal/ws"
)

// ErrClosed is returned for requests on a closed connection.
var ErrClosed = errors.New("connection closed")

// RequestError is a failure reported by the server in an ack.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Event is a server-initiated frame.
type Event struct {
	Name string
	Data json.RawMessage
}

// Conn is a socket connection with request/ack correlation.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	seq     atomic.Int64

	mu      sync.Mutex
	waiting map[int64]chan json.RawMessage

	onEvent func(Event)
	done    chan struct{}
	once    sync.Once
}

// SocketURL converts an http(s) base URL into the /ws endpoint with the token attached.
func SocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the server. onEvent runs on the read goroutine and must not block on requests.
func Dial(ctx context.Context, baseURL, token string, onEvent func(Event)) (*Conn, error) {
	wsURL, err := SocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	c := &Conn{
		ws:      conn,
		waiting: make(map[int64]chan json.RawMessage),
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Component("client").Debug().Err(err).Msg("socket read ended")
			}
			return
		}
		frame, err := ws.DecodeFrame(data)
		if err != nil {
			continue
		}
		if frame.Event == ws.AckEvent && frame.Ack != nil {
			c.mu.Lock()
			ch, ok := c.waiting[*frame.Ack]
			delete(c.waiting, *frame.Ack)
			c.mu.Unlock()
			if ok {
				ch <- frame.Data
			}
			continue
		}
		c.onEvent(Event{Name: frame.Event, Data: frame.Data})
	}
}

func (c *Conn) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Emit sends an event without waiting for a reply.
func (c *Conn) Emit(event string, data any) error {
	b, err := ws.EncodeRequest(event, 0, data)
	if err != nil {
		return err
	}
	return c.write(b)
}

// Request sends an event and waits for its ack. A {success:false} reply becomes a *RequestError.
func (c *Conn) Request(ctx context.Context, event string, data any) (json.RawMessage, error) {
	n := c.seq.Add(1)
	ch := make(chan json.RawMessage, 1)
	c.mu.Lock()
	c.waiting[n] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiting, n)
		c.mu.Unlock()
	}()

	b, err := ws.EncodeRequest(event, n, data)
	if err != nil {
		return nil, err
	}
	if err := c.write(b); err != nil {
		return nil, fmt.Errorf("send %s: %w", event, err)
	}

	select {
	case raw := <-ch:
		var status ws.ErrorReply
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("decode %s reply: %w", event, err)
		}
		if !status.Success {
			return nil, &RequestError{Code: status.Code, Message: status.Error}
		}
		return raw, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		close(c.done)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
