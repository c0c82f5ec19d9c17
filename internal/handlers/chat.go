package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"lan-chat/internal/logging"
	"lan-chat/internal/models"
	"lan-chat/internal/observability"
	"lan-chat/internal/push"
	"lan-chat/internal/repositories"
)

// ChatHandler implements the direct message protocol.
type ChatHandler struct {
	messages      repositories.MessageRepository
	groupMessages repositories.GroupMessageRepository
	groups        repositories.GroupRepository
	reactions     repositories.ReactionRepository
	users         repositories.UserRepository
	hub           Broadcaster
	presence      Presence
	notifier      push.Notifier
	jumpContext   int
}

// NewChatHandler constructs a ChatHandler. notifier may be nil.
func NewChatHandler(
	messages repositories.MessageRepository,
	groupMessages repositories.GroupMessageRepository,
	groups repositories.GroupRepository,
	reactions repositories.ReactionRepository,
	users repositories.UserRepository,
	hub Broadcaster,
	presence Presence,
	notifier push.Notifier,
	jumpContext int,
) *ChatHandler {
	if jumpContext <= 0 {
		jumpContext = 25
	}
	return &ChatHandler{
		messages:      messages,
		groupMessages: groupMessages,
		groups:        groups,
		reactions:     reactions,
		users:         users,
		hub:           hub,
		presence:      presence,
		notifier:      orNoopNotifier(notifier),
		jumpContext:   jumpContext,
	}
}

// Register wires the direct message events.
func (h *ChatHandler) Register(r *Router) {
	r.On("message:send", h.Send, ErrorAs(""))
	r.On("message:forward", h.Forward, ErrorAs(""))
	r.On("message:read", h.Read)
	r.On("message:edit", h.Edit, ErrorAs("message:editError"))
	r.On("message:delete", h.Delete, ErrorAs("message:delete:error"))
	r.On("message:pin", h.Pin, ErrorAs("message:pin:error"))
	r.On("message:unpin", h.Unpin, ErrorAs("message:pin:error"))
	r.On("typing:start", h.typing("typing:start"))
	r.On("typing:stop", h.typing("typing:stop"))
	r.On("reaction:toggle", h.ToggleReaction)

	r.On("messages:fetch", h.History, ReplyAs("messages:history"))
	r.On("messages:loadOlder", h.Older, ReplyAs("messages:olderLoaded"))
	r.On("messages:jump", h.Jump, ReplyAs("messages:jumped"))
	r.On("messages:pinned:fetch", h.PinnedList, ReplyAs("messages:pinned"))
	r.On("messages:search", h.Search, ReplyAs("messages:searchResults"))
	r.On("messages:globalSearch", h.GlobalSearch, ReplyAs("messages:globalSearchResults"))
	r.On("media:fetch", h.Media, ReplyAs("media:list"))
	r.On("conversations:fetch", h.Conversations, ReplyAs("conversations:list"))
	r.On("users:list", h.Users, ReplyAs("users:list"))
	r.On("user:update", h.UpdateProfile, ReplyAs("user:updated"))
}

type sendRequest struct {
	TempID     string `json:"tempId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"max=10000"`
	Type       string `json:"type" validate:"omitempty,oneof=text image video audio file gif sticker"`
	ReplyToID  *int64 `json:"replyTo"`
	Caption    string `json:"caption" validate:"max=2000"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize" validate:"min=0"`
}

// Send persists a direct message and delivers it to the receiver when they are online.
func (h *ChatHandler) Send(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req sendRequest
	err := bind(data, &req)
	if err == nil && req.ReceiverID == s.UserID {
		err = fmt.Errorf("%w: cannot message yourself", ErrInvalidPayload)
	}
	if err == nil && req.Content == "" && req.Type == "" {
		err = fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	if err != nil {
		h.sendFailed(s, req.TempID, err)
		return nil, err
	}
	msgType, _ := models.ParseMessageType(req.Type)

	if _, err := h.users.Get(ctx, req.ReceiverID); err != nil {
		h.sendFailed(s, req.TempID, err)
		return nil, err
	}

	msg, err := h.messages.Save(ctx, models.NewMessage{
		SenderID:   s.UserID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Type:       msgType,
		ReplyToID:  req.ReplyToID,
		Caption:    req.Caption,
		FileName:   req.FileName,
		FileSize:   req.FileSize,
	})
	if err != nil {
		h.sendFailed(s, req.TempID, err)
		return nil, err
	}
	return h.deliver(ctx, s, req.TempID, msg, "message:sent"), nil
}

type forwardRequest struct {
	TempID     string `json:"tempId" validate:"required"`
	MessageID  int64  `json:"messageId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required"`
}

// Forward copies a message the requester can see into a conversation with another user.
func (h *ChatHandler) Forward(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req forwardRequest
	if err := bind(data, &req); err != nil {
		h.sendFailed(s, req.TempID, err)
		return nil, err
	}
	in, err := h.forwardSource(ctx, s.UserID, req.MessageID)
	if err == nil && req.ReceiverID == s.UserID {
		err = fmt.Errorf("%w: cannot forward to yourself", ErrInvalidPayload)
	}
	if err == nil {
		_, err = h.users.Get(ctx, req.ReceiverID)
	}
	if err != nil {
		h.sendFailed(s, req.TempID, err)
		return nil, err
	}
	in.SenderID = s.UserID
	in.ReceiverID = req.ReceiverID
	in.Forwarded = true

	msg, err := h.messages.Save(ctx, in)
	if err != nil {
		h.sendFailed(s, req.TempID, err)
		return nil, err
	}
	return h.deliver(ctx, s, req.TempID, msg, "message:forwarded"), nil
}

// forwardSource resolves a direct or group message visible to userID.
func (h *ChatHandler) forwardSource(ctx context.Context, userID string, id int64) (models.NewMessage, error) {
	msg, err := h.messages.GetForUser(ctx, id, userID)
	if err == nil {
		if msg.DeletedForAll {
			return models.NewMessage{}, repositories.ErrMessageNotFound
		}
		return models.NewMessage{Content: msg.Content, Type: msg.Type, Caption: msg.Caption, FileName: msg.FileName, FileSize: msg.FileSize}, nil
	}
	if !errors.Is(err, repositories.ErrMessageNotFound) {
		return models.NewMessage{}, err
	}
	gm, err := h.groupMessages.Get(ctx, id)
	if err != nil {
		return models.NewMessage{}, err
	}
	if _, err := h.groups.Role(ctx, gm.GroupID, userID); err != nil {
		return models.NewMessage{}, repositories.ErrMessageNotFound
	}
	if gm.DeletedForAll {
		return models.NewMessage{}, repositories.ErrMessageNotFound
	}
	return models.NewMessage{Content: gm.Content, Type: gm.Type, Caption: gm.Caption, FileName: gm.FileName, FileSize: gm.FileSize}, nil
}

// deliver acknowledges a freshly stored message and routes it. ackEvent goes to the originating
// connection only; the sender's other connections see message:new like the receiver does.
func (h *ChatHandler) deliver(ctx context.Context, s Session, tempID string, msg models.Message, ackEvent string) gin.H {
	observability.IncMessageSent("direct", string(msg.Type))

	online := h.presence.IsOnline(msg.ReceiverID)
	if online {
		msg = h.markDelivered(ctx, msg)
	}

	sent := gin.H{"tempId": tempID, "messageId": msg.ID, "message": msg}
	h.hub.EmitToConn(s.ConnID, ackEvent, sent)
	h.hub.EmitToUser(s.UserID, "message:new", gin.H{"senderId": s.UserID, "message": msg}, s.ConnID)

	if online {
		h.hub.EmitToUser(msg.ReceiverID, "message:new", gin.H{"senderId": s.UserID, "message": msg}, "")
		if msg.Status != models.StatusSent {
			h.hub.EmitToUser(s.UserID, "message:delivered", gin.H{"messageId": msg.ID, "receiverId": msg.ReceiverID}, "")
		}
	} else {
		h.notifyOffline(ctx, s.UserID, msg)
	}
	return ok(gin.H{"tempId": tempID, "messageId": msg.ID, "message": msg})
}

// markDelivered flips msg to delivered. A connect that raced the save may already have flipped
// the stored row, in which case the stored status wins.
func (h *ChatHandler) markDelivered(ctx context.Context, msg models.Message) models.Message {
	changed, err := h.messages.UpdateStatus(ctx, msg.ID, models.StatusDelivered)
	switch {
	case err != nil && !errors.Is(err, repositories.ErrInvalidTransition):
		logging.Component("chat").Error().Err(err).Int64("message_id", msg.ID).Msg("mark delivered")
		return msg
	case changed:
		msg.Status = models.StatusDelivered
		observability.AddStatusTransitions(string(models.StatusDelivered), 1)
		return msg
	}
	stored, err := h.messages.Get(ctx, msg.ID)
	if err != nil {
		logging.Component("chat").Error().Err(err).Int64("message_id", msg.ID).Msg("reload message")
		return msg
	}
	return stored
}

func (h *ChatHandler) notifyOffline(ctx context.Context, senderID string, msg models.Message) {
	title := senderID
	if u, err := h.users.Get(ctx, senderID); err == nil {
		title = u.DisplayName
	}
	err := h.notifier.SendNotification(ctx, msg.ReceiverID, push.Payload{
		Title:  title,
		Body:   previewText(msg.Type, msg.Content),
		Kind:   "direct",
		PeerID: senderID,
	})
	if err != nil {
		logging.Component("chat").Warn().Err(err).Str("receiver_id", msg.ReceiverID).Msg("push failed")
	}
}

func (h *ChatHandler) sendFailed(s Session, tempID string, err error) {
	reply := errorReply(err)
	h.hub.EmitToConn(s.ConnID, "message:error", gin.H{"tempId": tempID, "error": reply.Error, "code": reply.Code})
}

type readRequest struct {
	SenderID   string  `json:"senderId" validate:"required"`
	MessageIDs []int64 `json:"messageIds"`
}

// Read marks messages from senderId as read. An empty id list means everything.
func (h *ChatHandler) Read(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req readRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	ids, err := h.messages.MarkRead(ctx, req.SenderID, s.UserID, req.MessageIDs)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		observability.AddStatusTransitions(string(models.StatusRead), len(ids))
		payload := gin.H{"readerId": s.UserID, "receiverId": s.UserID, "messageIds": ids}
		h.hub.EmitToUser(req.SenderID, "message:read", payload, "")
		h.hub.EmitToUser(s.UserID, "message:read", payload, s.ConnID)
	}
	return ok(gin.H{"messageIds": ids}), nil
}

type editRequest struct {
	MessageID  int64  `json:"messageId" validate:"required"`
	Content    string `json:"newContent" validate:"required,max=10000"`
	ReceiverID string `json:"receiverId"`
}

// Edit rewrites a message inside the edit window and re-delivers it to an online receiver.
func (h *ChatHandler) Edit(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req editRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Edit(ctx, req.MessageID, s.UserID, req.Content)
	if err != nil {
		return nil, err
	}
	if h.presence.IsOnline(msg.ReceiverID) {
		if changed, err := h.messages.UpdateStatus(ctx, msg.ID, models.StatusDelivered); err == nil && changed {
			msg.Status = models.StatusDelivered
			h.hub.EmitToUser(s.UserID, "message:delivered", gin.H{"messageId": msg.ID, "receiverId": msg.ReceiverID}, "")
		}
	}
	h.toParties(msg, "message:edited", gin.H{"message": msg})
	return ok(gin.H{"message": msg}), nil
}

type deleteRequest struct {
	MessageID   int64  `json:"messageId" validate:"required"`
	ReceiverID  string `json:"receiverId"`
	ForEveryone bool   `json:"deleteForEveryone"`
}

// Delete hides a message for the requester or tombstones it for both parties.
func (h *ChatHandler) Delete(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req deleteRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Delete(ctx, req.MessageID, s.UserID, req.ForEveryone)
	if err != nil {
		return nil, err
	}
	payload := gin.H{"messageId": msg.ID, "forEveryone": req.ForEveryone}
	if req.ForEveryone {
		payload["message"] = msg
		h.toParties(msg, "message:deleted", payload)
	} else {
		h.hub.EmitToUser(s.UserID, "message:deleted", payload, "")
	}
	return ok(payload), nil
}

type messageRef struct {
	MessageID int64 `json:"messageId" validate:"required"`
}

// Pin pins a message for both parties.
func (h *ChatHandler) Pin(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req messageRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Pin(ctx, req.MessageID, s.UserID)
	if err != nil {
		return nil, err
	}
	h.toParties(msg, "message:pinned", gin.H{"messageId": msg.ID, "message": msg})
	return ok(gin.H{"message": msg}), nil
}

// Unpin unpins a message for both parties.
func (h *ChatHandler) Unpin(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req messageRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Unpin(ctx, req.MessageID, s.UserID)
	if err != nil {
		return nil, err
	}
	h.toParties(msg, "message:unpinned", gin.H{"messageId": msg.ID, "message": msg})
	return ok(gin.H{"message": msg}), nil
}

type typingRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

func (h *ChatHandler) typing(event string) HandlerFunc {
	return func(_ context.Context, s Session, data json.RawMessage) (any, error) {
		var req typingRequest
		if err := bind(data, &req); err != nil {
			return nil, err
		}
		h.hub.EmitToUser(req.ReceiverID, event, gin.H{"senderId": s.UserID, "receiverId": req.ReceiverID}, "")
		return ok(nil), nil
	}
}

type reactionRequest struct {
	MessageID int64  `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

// ToggleReaction adds or removes the requester's emoji on a direct or group message.
func (h *ChatHandler) ToggleReaction(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req reactionRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}

	direct, err := h.messages.GetForUser(ctx, req.MessageID, s.UserID)
	var groupID int64
	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrMessageNotFound):
		gm, gerr := h.groupMessages.Get(ctx, req.MessageID)
		if gerr != nil {
			return nil, gerr
		}
		if _, gerr := h.groups.Role(ctx, gm.GroupID, s.UserID); gerr != nil {
			return nil, gerr
		}
		groupID = gm.GroupID
	default:
		return nil, err
	}

	reactions, added, err := h.reactions.Toggle(ctx, req.MessageID, s.UserID, req.Emoji)
	if err != nil {
		return nil, err
	}
	payload := gin.H{"messageId": req.MessageID, "reactions": reactions}
	if groupID != 0 {
		payload["groupId"] = groupID
		h.hub.EmitToGroup(groupID, "reaction:updated", payload, "")
	} else {
		h.toParties(direct, "reaction:updated", payload)
	}
	return ok(gin.H{"messageId": req.MessageID, "reactions": reactions, "added": added}), nil
}

// toParties emits to every connection of both participants.
func (h *ChatHandler) toParties(msg models.Message, event string, data any) {
	h.hub.EmitToUser(msg.SenderID, event, data, "")
	if msg.ReceiverID != msg.SenderID {
		h.hub.EmitToUser(msg.ReceiverID, event, data, "")
	}
}

func previewText(t models.MessageType, content string) string {
	if t.IsMedia() {
		return "Sent a " + string(t)
	}
	if r := []rune(content); len(r) > 120 {
		return string(r[:120]) + "…"
	}
	return content
}
