package client

import (
	"sync"
	"time"
)

// ConversationItem is one row of the chat list.
type ConversationItem struct {
	Key         string
	Preview     string
	LastAt      time.Time
	UnreadCount int
}

// Recency is the chat list ordered by last activity, most recent first.
type Recency struct {
	mu    sync.Mutex
	items []ConversationItem
}

// NewRecency returns an empty list.
func NewRecency() *Recency {
	return &Recency{}
}

// Touch moves a conversation to the top. unread adds to its unread counter.
func (r *Recency) Touch(key, preview string, at time.Time, unread bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := ConversationItem{Key: key}
	for i, it := range r.items {
		if it.Key == key {
			item = it
			r.items = append(r.items[:i], r.items[i+1:]...)
			break
		}
	}
	item.Preview = preview
	item.LastAt = at
	if unread {
		item.UnreadCount++
	}
	r.items = append([]ConversationItem{item}, r.items...)
}

// MarkRead clears the unread counter without reordering.
func (r *Recency) MarkRead(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].Key == key {
			r.items[i].UnreadCount = 0
			return
		}
	}
}

// Remove drops a conversation, e.g. after leaving a group.
func (r *Recency) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, it := range r.items {
		if it.Key == key {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return
		}
	}
}

// List returns the ordered chat list.
func (r *Recency) List() []ConversationItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConversationItem(nil), r.items...)
}
