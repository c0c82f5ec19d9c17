package ws

import (
	"sort"
	"sync"

	"lan-chat/internal/logging"
)

// Hub indexes live clients by connection, by user and by group channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	users   map[string]map[string]*Client
	groups  map[int64]map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]*Client),
		groups:  make(map[int64]map[string]*Client),
	}
}

// Add registers a client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
	conns, ok := h.users[c.UserID()]
	if !ok {
		conns = make(map[string]*Client)
		h.users[c.UserID()] = conns
	}
	conns[c.ID()] = c
}

// Remove drops a client from every index, including group channels.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID())
	if conns, ok := h.users[c.UserID()]; ok {
		delete(conns, c.ID())
		if len(conns) == 0 {
			delete(h.users, c.UserID())
		}
	}
	for groupID, conns := range h.groups {
		delete(conns, c.ID())
		if len(conns) == 0 {
			delete(h.groups, groupID)
		}
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// EmitToConn sends one event to one connection.
func (h *Hub) EmitToConn(connID, event string, data any) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.Emit(event, data)
	}
}

// EmitToUser sends an event to every connection of userID except exceptConn.
func (h *Hub) EmitToUser(userID, event string, data any, exceptConn string) {
	h.mu.RLock()
	targets := collect(h.users[userID], exceptConn)
	h.mu.RUnlock()
	fanOut(targets, event, data)
}

// BroadcastAll sends an event to every connection not owned by exceptUser.
func (h *Hub) BroadcastAll(event string, data any, exceptUser string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.UserID() != exceptUser {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	fanOut(targets, event, data)
}

// JoinConn subscribes one connection to group channels.
func (h *Hub) JoinConn(connID string, groupIDs ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	for _, id := range groupIDs {
		h.channel(id)[connID] = c
	}
}

// JoinGroup subscribes every live connection of the given users to a group channel.
func (h *Hub) JoinGroup(groupID int64, userIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range userIDs {
		for connID, c := range h.users[userID] {
			h.channel(groupID)[connID] = c
		}
	}
}

// LeaveGroup unsubscribes every connection of the given users from a group channel.
func (h *Hub) LeaveGroup(groupID int64, userIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.groups[groupID]
	if !ok {
		return
	}
	for _, userID := range userIDs {
		for connID := range h.users[userID] {
			delete(conns, connID)
		}
	}
	if len(conns) == 0 {
		delete(h.groups, groupID)
	}
}

// CloseGroup drops a group channel entirely.
func (h *Hub) CloseGroup(groupID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups, groupID)
}

// EmitToGroup sends an event to every subscribed connection except exceptConn.
func (h *Hub) EmitToGroup(groupID int64, event string, data any, exceptConn string) {
	h.mu.RLock()
	targets := collect(h.groups[groupID], exceptConn)
	h.mu.RUnlock()
	fanOut(targets, event, data)
}

// GroupConnections lists the connection ids subscribed to a group channel.
func (h *Hub) GroupConnections(groupID int64) []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.groups[groupID]))
	for id := range h.groups[groupID] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// channel must be called with h.mu held for writing.
func (h *Hub) channel(groupID int64) map[string]*Client {
	conns, ok := h.groups[groupID]
	if !ok {
		conns = make(map[string]*Client)
		h.groups[groupID] = conns
	}
	return conns
}

func collect(conns map[string]*Client, except string) []*Client {
	out := make([]*Client, 0, len(conns))
	for id, c := range conns {
		if id != except {
			out = append(out, c)
		}
	}
	return out
}

// fanOut encodes once and queues the bytes on each target.
func fanOut(targets []*Client, event string, data any) {
	if len(targets) == 0 {
		return
	}
	b, err := EncodeEvent(event, data)
	if err != nil {
		logging.Component("hub").Error().Err(err).Str("event", event).Msg("encode broadcast")
		return
	}
	for _, c := range targets {
		c.enqueue(b)
	}
}
