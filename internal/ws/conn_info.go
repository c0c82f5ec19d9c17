package ws

import "time"

// ConnInfo is captured at handshake time and tagged onto logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	IP          string
	UserAgent   string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
