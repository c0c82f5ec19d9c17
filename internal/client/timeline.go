package client

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"lan-chat/internal/models"
)

// Client-only statuses layered over the server's delivery states.
const (
	StatusUploading models.MessageStatus = "uploading"
	StatusFailed    models.MessageStatus = "failed"
)

// ErrUnknownEntry is returned when an entry cannot be found by temp id or server id.
var ErrUnknownEntry = errors.New("unknown timeline entry")

// ErrEditInFlight is returned when an entry already has an unconfirmed edit.
var ErrEditInFlight = errors.New("edit already in flight")

// DirectKey names the conversation with a peer.
func DirectKey(peerID string) string { return "u:" + peerID }

// GroupKey names a group conversation.
func GroupKey(groupID int64) string { return "g:" + strconv.FormatInt(groupID, 10) }

// Entry is one message as the user sees it.
type Entry struct {
	TempID    string
	ID        int64
	SenderID  string
	Content   string
	Type      models.MessageType
	Status    models.MessageStatus
	Progress  int
	Edited    bool
	Deleted   bool
	Pinned    bool
	FileName  string
	CreatedAt time.Time

	rollback *Entry
}

// EntryFromMessage converts a direct message.
func EntryFromMessage(m models.Message) Entry {
	return Entry{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		Status:    m.Status,
		Edited:    m.Edited,
		Deleted:   m.DeletedForAll,
		Pinned:    m.Pinned,
		FileName:  m.FileName,
		CreatedAt: m.CreatedAt,
	}
}

// EntryFromGroupMessage converts a group message. Group messages stay at sent.
func EntryFromGroupMessage(m models.GroupMessage) Entry {
	return Entry{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		Status:    models.StatusSent,
		Edited:    m.Edited,
		Deleted:   m.DeletedForAll,
		Pinned:    m.Pinned,
		FileName:  m.FileName,
		CreatedAt: m.CreatedAt,
	}
}

type conversation struct {
	entries []*Entry
	byTemp  map[string]*Entry
	byID    map[int64]*Entry
}

func (c *conversation) remove(target *Entry) {
	for i, e := range c.entries {
		if e == target {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	if target.TempID != "" {
		delete(c.byTemp, target.TempID)
	}
	if target.ID != 0 {
		delete(c.byID, target.ID)
	}
}

// Timeline holds per-conversation message lists with optimistic entries.
type Timeline struct {
	mu    sync.RWMutex
	convs map[string]*conversation
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{convs: make(map[string]*conversation)}
}

func (t *Timeline) conv(key string) *conversation {
	c, ok := t.convs[key]
	if !ok {
		c = &conversation{byTemp: make(map[string]*Entry), byID: make(map[int64]*Entry)}
		t.convs[key] = c
	}
	return c
}

// InsertOptimistic appends a locally created entry keyed by its temp id.
func (t *Timeline) InsertOptimistic(key string, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conv(key)
	if _, dup := c.byTemp[e.TempID]; dup {
		return
	}
	entry := e
	c.entries = append(c.entries, &entry)
	c.byTemp[e.TempID] = &entry
}

// SetProgress updates an uploading entry.
func (t *Timeline) SetProgress(key, tempID string, pct int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conv(key).byTemp[tempID]
	if !ok {
		return ErrUnknownEntry
	}
	e.Progress = min(max(pct, 0), 100)
	return nil
}

// Ack reconciles a temp entry with the server's copy in place. The entry keeps its position.
func (t *Timeline) Ack(key, tempID string, server Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conv(key)
	e, ok := c.byTemp[tempID]
	if !ok {
		return ErrUnknownEntry
	}
	if other, dup := c.byID[server.ID]; dup && other != e {
		c.remove(other)
	}
	status := models.StatusSent
	if e.ID == server.ID && higher(e.Status, status) {
		status = e.Status
	}
	if higher(server.Status, status) {
		status = server.Status
	}
	e.ID = server.ID
	e.Content = server.Content
	e.Type = server.Type
	e.FileName = server.FileName
	e.CreatedAt = server.CreatedAt
	e.Status = status
	e.Progress = 0
	c.byID[server.ID] = e
	return nil
}

// Fail flips a temp entry to failed.
func (t *Timeline) Fail(key, tempID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conv(key).byTemp[tempID]
	if !ok {
		return ErrUnknownEntry
	}
	if e.ID == 0 {
		e.Status = StatusFailed
	}
	return nil
}

// Retry returns a failed entry to sending.
func (t *Timeline) Retry(key, tempID string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conv(key).byTemp[tempID]
	if !ok {
		return Entry{}, ErrUnknownEntry
	}
	if e.Status != StatusFailed {
		return Entry{}, ErrNotRetryable
	}
	e.Status = models.StatusSending
	return *e, nil
}

// Upsert applies a server-originated message, replacing any entry with the same id.
func (t *Timeline) Upsert(key string, server Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conv(key)
	if e, ok := c.byID[server.ID]; ok {
		status := e.Status
		if higher(server.Status, status) {
			status = server.Status
		}
		tempID, rollback := e.TempID, e.rollback
		*e = server
		e.TempID, e.rollback, e.Status = tempID, rollback, status
		return
	}
	entry := server
	c.entries = append(c.entries, &entry)
	c.byID[server.ID] = &entry
}

// AdvanceStatus moves a message forward. Backward moves are ignored.
func (t *Timeline) AdvanceStatus(key string, id int64, status models.MessageStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conv(key).byID[id]
	if !ok || !higher(status, e.Status) {
		return false
	}
	e.Status = status
	return true
}

// BeginEdit applies an edit optimistically and remembers the previous state.
func (t *Timeline) BeginEdit(key string, id int64, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conv(key).byID[id]
	if !ok {
		return ErrUnknownEntry
	}
	if e.rollback != nil {
		return ErrEditInFlight
	}
	prev := *e
	e.rollback = &prev
	e.Content = content
	e.Edited = true
	return nil
}

// ConfirmEdit adopts the server's copy of an edited entry.
func (t *Timeline) ConfirmEdit(key string, server Entry) {
	t.mu.Lock()
	if e, ok := t.conv(key).byID[server.ID]; ok {
		e.rollback = nil
		// an edit resets delivery state server side
		e.Status = server.Status
	}
	t.mu.Unlock()
	t.Upsert(key, server)
}

// RollbackEdit restores the entry as it was before BeginEdit.
func (t *Timeline) RollbackEdit(key string, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conv(key).byID[id]
	if !ok || e.rollback == nil {
		return ErrUnknownEntry
	}
	prev := *e.rollback
	*e = prev
	e.rollback = nil
	return nil
}

// Delete hides an entry for this user or tombstones it for everyone.
func (t *Timeline) Delete(key string, id int64, forEveryone bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conv(key)
	e, ok := c.byID[id]
	if !ok {
		return
	}
	if !forEveryone {
		c.remove(e)
		return
	}
	e.Deleted = true
	e.Content = models.DeletedContent
	e.Pinned = false
}

// SetPinned toggles the pin flag.
func (t *Timeline) SetPinned(key string, id int64, pinned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.conv(key).byID[id]; ok {
		e.Pinned = pinned
	}
}

// Entries returns a copy of a conversation in display order.
func (t *Timeline) Entries(key string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.convs[key]
	if !ok {
		return nil
	}
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = *e
		out[i].rollback = nil
	}
	return out
}

// ByTemp looks up an entry by correlation id.
func (t *Timeline) ByTemp(key, tempID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.convs[key]
	if !ok {
		return Entry{}, false
	}
	e, ok := c.byTemp[tempID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

var statusRank = map[models.MessageStatus]int{
	StatusFailed:           0,
	StatusUploading:        0,
	models.StatusSending:   1,
	models.StatusSent:      2,
	models.StatusDelivered: 3,
	models.StatusRead:      4,
}

func higher(a, b models.MessageStatus) bool {
	return statusRank[a] > statusRank[b]
}

// Locate finds the conversation holding a server message id.
func (t *Timeline) Locate(id int64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for key, c := range t.convs {
		if _, ok := c.byID[id]; ok {
			return key, true
		}
	}
	return "", false
}
