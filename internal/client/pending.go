// Package client is a Go chat client that keeps optimistic local state and reconciles it
// with server acknowledgements and events.
package client

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// OpState is the lifecycle of a locally initiated operation.
type OpState string

const (
	OpPending   OpState = "pending"
	OpUploading OpState = "uploading"
	OpConfirmed OpState = "confirmed"
	OpFailed    OpState = "failed"
)

// ErrUnknownOp is returned for correlation ids the table has never seen.
var ErrUnknownOp = errors.New("unknown operation")

// ErrNotRetryable is returned when retrying an operation that has not failed.
var ErrNotRetryable = errors.New("operation is not in failed state")

// Op is one outstanding request keyed by its correlation id.
type Op struct {
	TempID    string
	Event     string
	Conv      string
	State     OpState
	Progress  int
	Err       string
	Payload   any
	CreatedAt time.Time
	Attempts  int
}

// PendingTable tracks operations until the server confirms or rejects them.
type PendingTable struct {
	mu  sync.Mutex
	ops map[string]*Op
	now func() time.Time
}

// NewPendingTable returns an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{ops: make(map[string]*Op), now: time.Now}
}

// Add records a new pending operation. Uploads start in the uploading state at 0%.
func (t *PendingTable) Add(tempID, event, conv string, payload any, uploading bool) Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	op := &Op{TempID: tempID, Event: event, Conv: conv, State: OpPending, Payload: payload, CreatedAt: t.now(), Attempts: 1}
	if uploading {
		op.State = OpUploading
	}
	t.ops[tempID] = op
	return *op
}

// Progress updates the upload percentage, clamped to 0..100.
func (t *PendingTable) Progress(tempID string, pct int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[tempID]
	if !ok {
		return ErrUnknownOp
	}
	op.Progress = min(max(pct, 0), 100)
	return nil
}

// Uploaded moves an upload to pending once its file reference is known.
func (t *PendingTable) Uploaded(tempID string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[tempID]
	if !ok {
		return ErrUnknownOp
	}
	op.State = OpPending
	op.Progress = 100
	op.Payload = payload
	return nil
}

// Confirm marks the operation as acknowledged. Confirming twice is a no-op.
func (t *PendingTable) Confirm(tempID string) error {
	return t.set(tempID, OpConfirmed, "")
}

// Fail marks the operation as failed with a reason.
func (t *PendingTable) Fail(tempID, reason string) error {
	return t.set(tempID, OpFailed, reason)
}

func (t *PendingTable) set(tempID string, state OpState, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[tempID]
	if !ok {
		return ErrUnknownOp
	}
	if op.State == OpConfirmed {
		return nil
	}
	op.State = state
	op.Err = reason
	return nil
}

// Retry moves a failed operation back to pending and returns it for resending.
func (t *PendingTable) Retry(tempID string) (Op, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[tempID]
	if !ok {
		return Op{}, ErrUnknownOp
	}
	if op.State != OpFailed {
		return Op{}, ErrNotRetryable
	}
	op.State = OpPending
	op.Err = ""
	op.Attempts++
	return *op, nil
}

// Get returns a copy of the operation.
func (t *PendingTable) Get(tempID string) (Op, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[tempID]
	if !ok {
		return Op{}, false
	}
	return *op, true
}

// Outstanding lists operations not yet confirmed, oldest first.
func (t *PendingTable) Outstanding() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Op, 0, len(t.ops))
	for _, op := range t.ops {
		if op.State != OpConfirmed {
			out = append(out, *op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Forget drops a confirmed operation.
func (t *PendingTable) Forget(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ops, tempID)
}
