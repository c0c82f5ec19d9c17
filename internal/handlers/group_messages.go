package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"lan-chat/internal/logging"
	"lan-chat/internal/models"
	"lan-chat/internal/observability"
	"lan-chat/internal/push"
)

type groupSendRequest struct {
	GroupID   int64  `json:"groupId" validate:"required"`
	TempID    string `json:"tempId" validate:"required"`
	Content   string `json:"content" validate:"max=10000"`
	Type      string `json:"type" validate:"omitempty,oneof=text image video audio file gif sticker"`
	ReplyToID *int64 `json:"replyTo"`
	Caption   string `json:"caption" validate:"max=2000"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize" validate:"min=0"`
}

// SendMessage persists a group message after the permission check and fans it out to the channel.
func (h *GroupHandler) SendMessage(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupSendRequest
	err := bind(data, &req)
	if err == nil && req.Content == "" && req.Type == "" {
		err = fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	if err != nil {
		h.sendFailed(s, req.GroupID, req.TempID, err)
		return nil, err
	}
	msgType, _ := models.ParseMessageType(req.Type)

	if err := h.groups.CheckSend(ctx, req.GroupID, s.UserID, msgType); err != nil {
		h.sendFailed(s, req.GroupID, req.TempID, err)
		return nil, err
	}
	msg, err := h.messages.Save(ctx, models.NewGroupMessage{
		GroupID:   req.GroupID,
		SenderID:  s.UserID,
		Content:   req.Content,
		Type:      msgType,
		ReplyToID: req.ReplyToID,
		Caption:   req.Caption,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
	})
	if err != nil {
		h.sendFailed(s, req.GroupID, req.TempID, err)
		return nil, err
	}
	observability.IncMessageSent("group", string(msg.Type))

	h.hub.EmitToConn(s.ConnID, "group:message:sent", gin.H{"tempId": req.TempID, "messageId": msg.ID, "groupId": msg.GroupID, "message": msg})
	h.hub.EmitToGroup(msg.GroupID, "group:message:new", gin.H{"groupId": msg.GroupID, "message": msg}, s.ConnID)
	h.notifyOfflineMembers(ctx, msg)
	return ok(gin.H{"tempId": req.TempID, "messageId": msg.ID, "message": msg}), nil
}

func (h *GroupHandler) sendFailed(s Session, groupID int64, tempID string, err error) {
	reply := errorReply(err)
	h.hub.EmitToConn(s.ConnID, "group:message:error", gin.H{
		"groupId": groupID,
		"tempId":  tempID,
		"error":   reply.Error,
		"code":    reply.Code,
	})
}

func (h *GroupHandler) notifyOfflineMembers(ctx context.Context, msg models.GroupMessage) {
	members, err := h.groups.MemberIDs(ctx, msg.GroupID)
	if err != nil {
		logging.Component("groups").Warn().Err(err).Int64("group_id", msg.GroupID).Msg("list members for push")
		return
	}
	title := fmt.Sprintf("Group #%d", msg.GroupID)
	if g, err := h.groups.GetGroup(ctx, msg.GroupID); err == nil {
		title = g.Name
	}
	body := msg.SenderName + ": " + previewText(msg.Type, msg.Content)
	for _, id := range members {
		if id == msg.SenderID || h.presence.IsOnline(id) {
			continue
		}
		err := h.notifier.SendNotification(ctx, id, push.Payload{
			Title:   title,
			Body:    body,
			Kind:    "group",
			GroupID: msg.GroupID,
		})
		if err != nil {
			logging.Component("groups").Warn().Err(err).Str("receiver_id", id).Msg("push failed")
		}
	}
}

type groupPageRequest struct {
	GroupID int64 `json:"groupId" validate:"required"`
	Limit   int   `json:"limit" validate:"min=0"`
	Offset  int   `json:"offset" validate:"min=0"`
}

// Messages returns the newest page of a group.
func (h *GroupHandler) Messages(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupPageRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msgs, err := h.messages.List(ctx, req.GroupID, s.UserID, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groupId": req.GroupID, "messages": msgs, "offset": req.Offset}), nil
}

type groupOlderRequest struct {
	GroupID  int64 `json:"groupId" validate:"required"`
	BeforeID int64 `json:"beforeId" validate:"required"`
	Limit    int   `json:"limit" validate:"min=0"`
}

// OlderMessages pages backwards from a message id.
func (h *GroupHandler) OlderMessages(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupOlderRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msgs, more, err := h.messages.ListOlderThan(ctx, req.GroupID, s.UserID, req.BeforeID, req.Limit)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groupId": req.GroupID, "messages": msgs, "hasMore": more}), nil
}

type groupSearchRequest struct {
	GroupID int64  `json:"groupId" validate:"required"`
	Query   string `json:"query" validate:"required,max=200"`
	Limit   int    `json:"limit" validate:"min=0"`
}

// SearchMessages finds messages inside a group.
func (h *GroupHandler) SearchMessages(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupSearchRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	results, err := h.messages.Search(ctx, req.GroupID, s.UserID, strings.TrimSpace(req.Query), req.Limit)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groupId": req.GroupID, "query": req.Query, "results": results}), nil
}

type groupMediaRequest struct {
	GroupID int64  `json:"groupId" validate:"required"`
	Type    string `json:"type" validate:"omitempty,oneof=image video audio file gif"`
	Limit   int    `json:"limit" validate:"min=0"`
	Offset  int    `json:"offset" validate:"min=0"`
}

// MediaMessages lists media shared in a group.
func (h *GroupHandler) MediaMessages(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupMediaRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	var types []models.MessageType
	if req.Type != "" {
		types = []models.MessageType{models.MessageType(req.Type)}
	}
	media, err := h.messages.Media(ctx, req.GroupID, s.UserID, types, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groupId": req.GroupID, "media": media, "append": req.Offset > 0}), nil
}

// PinnedMessages returns a group's pinned messages.
func (h *GroupHandler) PinnedMessages(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msgs, err := h.messages.Pinned(ctx, req.GroupID, s.UserID)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groupId": req.GroupID, "messages": msgs}), nil
}

type groupMessageRef struct {
	MessageID int64 `json:"messageId" validate:"required"`
}

// PinMessage pins a group message for every member.
func (h *GroupHandler) PinMessage(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupMessageRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Pin(ctx, req.MessageID, s.UserID)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(msg.GroupID, "group:message:pinned", gin.H{"groupId": msg.GroupID, "messageId": msg.ID, "message": msg, "pinnedBy": s.UserID}, "")
	return ok(gin.H{"message": msg}), nil
}

// UnpinMessage removes a pin.
func (h *GroupHandler) UnpinMessage(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupMessageRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Unpin(ctx, req.MessageID, s.UserID)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(msg.GroupID, "group:message:unpinned", gin.H{"groupId": msg.GroupID, "messageId": msg.ID, "unpinnedBy": s.UserID}, "")
	return ok(gin.H{"message": msg}), nil
}

type groupDeleteRequest struct {
	MessageID   int64 `json:"messageId" validate:"required"`
	ForEveryone bool  `json:"deleteForEveryone"`
}

// DeleteMessage hides a message for the requester or tombstones it for the whole group.
func (h *GroupHandler) DeleteMessage(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupDeleteRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Delete(ctx, req.MessageID, s.UserID, req.ForEveryone)
	if err != nil {
		return nil, err
	}
	payload := gin.H{"groupId": msg.GroupID, "messageId": msg.ID, "forEveryone": req.ForEveryone, "deletedBy": s.UserID}
	if req.ForEveryone {
		h.hub.EmitToGroup(msg.GroupID, "group:message:deleted", payload, "")
	} else {
		h.hub.EmitToUser(s.UserID, "group:message:deleted", payload, "")
	}
	return ok(payload), nil
}

type groupEditRequest struct {
	MessageID int64  `json:"messageId" validate:"required"`
	Content   string `json:"newContent" validate:"required,max=10000"`
}

// EditMessage rewrites the requester's own message within the edit window.
func (h *GroupHandler) EditMessage(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupEditRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msg, err := h.messages.Edit(ctx, req.MessageID, s.UserID, req.Content)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(msg.GroupID, "group:message:edited", gin.H{"groupId": msg.GroupID, "message": msg}, "")
	return ok(gin.H{"message": msg}), nil
}
