package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"lan-chat/internal/logging"
	"lan-chat/internal/models"
	"lan-chat/internal/observability"
	"lan-chat/internal/repositories"
)

const presenceTimeout = 5 * time.Second

// PresenceHandler reacts to connections coming and going. It is the registry's observer,
// so its UserOnline/UserOffline run under that user's presence lock.
type PresenceHandler struct {
	users    repositories.UserRepository
	messages repositories.MessageRepository
	groups   repositories.GroupRepository
	hub      Broadcaster
	registry Presence
	now      func() time.Time
}

// NewPresenceHandler constructs a PresenceHandler. Call SetRegistry before serving.
func NewPresenceHandler(users repositories.UserRepository, messages repositories.MessageRepository, groups repositories.GroupRepository, hub Broadcaster) *PresenceHandler {
	return &PresenceHandler{users: users, messages: messages, groups: groups, hub: hub, now: time.Now}
}

// SetRegistry breaks the construction cycle between the registry and its observer.
func (h *PresenceHandler) SetRegistry(p Presence) {
	h.registry = p
}

// Connect registers the connection, subscribes it to its groups and sends it the online roster.
func (h *PresenceHandler) Connect(ctx context.Context, s Session) error {
	h.registry.Register(s.UserID, s.ConnID)

	groupIDs, err := h.groups.ListAllGroupIDs(ctx, s.UserID)
	if err != nil {
		return err
	}
	h.hub.JoinConn(s.ConnID, groupIDs...)
	h.hub.EmitToConn(s.ConnID, "users:online", gin.H{"userIds": h.registry.AllOnline()})
	return nil
}

// Disconnect unregisters the connection.
func (h *PresenceHandler) Disconnect(_ context.Context, s Session) {
	h.registry.Unregister(s.UserID, s.ConnID)
}

// UserOnline marks the user online and flushes messages that waited for them.
func (h *PresenceHandler) UserOnline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	log := logging.Component("presence")

	if err := h.users.SetPresence(ctx, userID, models.PresenceOnline, h.now()); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("set online")
	}
	h.hub.BroadcastAll("user:online", gin.H{"userId": userID}, userID)
	observability.SetOnlineUsers(len(h.registry.AllOnline()))

	changes, err := h.messages.MarkAllDelivered(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("deliver pending")
		return
	}
	observability.AddStatusTransitions(string(models.StatusDelivered), len(changes))
	for _, ch := range changes {
		h.hub.EmitToUser(ch.SenderID, "message:delivered", gin.H{"messageId": ch.MessageID, "receiverId": ch.ReceiverID}, "")
	}
	log.Info().Str("user_id", userID).Int("delivered", len(changes)).Msg("user online")
}

// UserOffline records last seen and tells everyone else.
func (h *PresenceHandler) UserOffline(userID string, lastSeen time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := h.users.SetPresence(ctx, userID, models.PresenceOffline, lastSeen); err != nil {
		logging.Component("presence").Error().Err(err).Str("user_id", userID).Msg("set offline")
	}
	h.hub.BroadcastAll("user:offline", gin.H{"userId": userID, "lastSeen": lastSeen}, userID)
	observability.SetOnlineUsers(len(h.registry.AllOnline()))
	logging.Component("presence").Info().Str("user_id", userID).Msg("user offline")
}
