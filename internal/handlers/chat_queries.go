package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"lan-chat/internal/models"
)

type historyRequest struct {
	PeerID string `json:"peerId" validate:"required"`
	Limit  int    `json:"limit" validate:"min=0"`
	Offset int    `json:"offset" validate:"min=0"`
}

// History returns the newest page of a conversation.
func (h *ChatHandler) History(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req historyRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msgs, err := h.messages.GetBetween(ctx, s.UserID, req.PeerID, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"peerId": req.PeerID, "messages": msgs, "offset": req.Offset}), nil
}

type olderRequest struct {
	PeerID   string `json:"peerId" validate:"required"`
	BeforeID int64  `json:"beforeId" validate:"required"`
	Limit    int    `json:"limit" validate:"min=0"`
}

// Older pages backwards from a message id.
func (h *ChatHandler) Older(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req olderRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msgs, more, err := h.messages.GetOlderThan(ctx, s.UserID, req.PeerID, req.BeforeID, req.Limit)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"peerId": req.PeerID, "messages": msgs, "hasMore": more}), nil
}

type jumpRequest struct {
	PeerID    string `json:"peerId" validate:"required"`
	MessageID int64  `json:"messageId" validate:"required"`
}

// Jump loads a window of messages centered on one message.
func (h *ChatHandler) Jump(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req jumpRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	win, err := h.messages.GetAround(ctx, s.UserID, req.PeerID, req.MessageID, h.jumpContext, h.jumpContext)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{
		"peerId":          req.PeerID,
		"messages":        win.Messages,
		"targetMessageId": req.MessageID,
		"targetIndex":     win.TargetIndex,
		"hasOlder":        win.HasOlder,
		"hasNewer":        win.HasNewer,
	}), nil
}

type peerRequest struct {
	PeerID string `json:"peerId" validate:"required"`
}

// PinnedList returns the pinned messages of a conversation.
func (h *ChatHandler) PinnedList(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req peerRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	msgs, err := h.messages.Pinned(ctx, s.UserID, req.PeerID)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"peerId": req.PeerID, "messages": msgs}), nil
}

type searchRequest struct {
	Query  string `json:"query" validate:"required,max=200"`
	PeerID string `json:"peerId"`
	Limit  int    `json:"limit" validate:"min=0"`
}

// Search finds messages in one conversation.
func (h *ChatHandler) Search(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req searchRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	if req.PeerID == "" {
		return nil, fmt.Errorf("%w: peerId is required", ErrInvalidPayload)
	}
	results, err := h.messages.Search(ctx, s.UserID, &req.PeerID, strings.TrimSpace(req.Query), req.Limit)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"query": req.Query, "peerId": req.PeerID, "results": results}), nil
}

// GlobalSearch finds messages across all of the requester's conversations.
func (h *ChatHandler) GlobalSearch(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req searchRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	results, err := h.messages.Search(ctx, s.UserID, nil, strings.TrimSpace(req.Query), req.Limit)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"query": req.Query, "results": results}), nil
}

type mediaRequest struct {
	PeerID string `json:"peerId" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=image video audio file gif"`
	Limit  int    `json:"limit" validate:"min=0"`
	Offset int    `json:"offset" validate:"min=0"`
}

func (r mediaRequest) types() []models.MessageType {
	if r.Type == "" {
		return nil
	}
	return []models.MessageType{models.MessageType(r.Type)}
}

// Media lists shared media, newest first. append tells the client to extend its current list.
func (h *ChatHandler) Media(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req mediaRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	media, err := h.messages.Media(ctx, s.UserID, req.PeerID, req.types(), req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"peerId": req.PeerID, "media": media, "append": req.Offset > 0}), nil
}

// Conversations returns the recency-ordered chat list.
func (h *ChatHandler) Conversations(ctx context.Context, s Session, _ json.RawMessage) (any, error) {
	convs, err := h.messages.Conversations(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"conversations": convs}), nil
}

// Users lists every known user with live presence.
func (h *ChatHandler) Users(ctx context.Context, _ Session, _ json.RawMessage) (any, error) {
	users, err := h.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if h.presence.IsOnline(users[i].ID) {
			users[i].Status = models.PresenceOnline
		} else {
			users[i].Status = models.PresenceOffline
		}
	}
	return ok(gin.H{"users": users}), nil
}

type profileRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=64"`
	Avatar      *string `json:"avatar" validate:"omitempty,max=512"`
	Bio         *string `json:"bio" validate:"omitempty,max=500"`
}

// UpdateProfile edits the requester's profile and tells everyone.
func (h *ChatHandler) UpdateProfile(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req profileRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: displayName cannot be blank", ErrInvalidPayload)
		}
		req.DisplayName = &trimmed
	}
	u, err := h.users.UpdateProfile(ctx, s.UserID, models.ProfileUpdate{
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		Bio:         req.Bio,
	})
	if err != nil {
		return nil, err
	}
	h.hub.BroadcastAll("user:updated", gin.H{"user": u}, s.UserID)
	h.hub.EmitToUser(s.UserID, "user:updated", gin.H{"user": u}, s.ConnID)
	return ok(gin.H{"user": u}), nil
}
