package ws

import (
	"github.com/goccy/go-json"
)

// Frame is one inbound socket message: {"event": "...", "ack": 3, "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// AckEvent names the frame carrying a reply to a client request.
const AckEvent = "ack"

// ErrorReply is the failure shape of an ack or error event.
type ErrorReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// CodeRateLimited is sent when a connection exceeds its inbound budget.
const CodeRateLimited = "RateLimited"

// DecodeFrame parses an inbound frame.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(b, &f)
	return f, err
}

// EncodeEvent serializes a server-initiated event.
func EncodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: data})
}

// EncodeAck serializes the reply to request n.
func EncodeAck(n int64, data any) ([]byte, error) {
	return json.Marshal(outFrame{Event: AckEvent, Ack: &n, Data: data})
}

// EncodeRequest serializes a client request. n <= 0 sends no ack id.
func EncodeRequest(event string, n int64, data any) ([]byte, error) {
	f := outFrame{Event: event, Data: data}
	if n > 0 {
		f.Ack = &n
	}
	return json.Marshal(f)
}
