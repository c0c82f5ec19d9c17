package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"lan-chat/internal/models"
	"lan-chat/internal/push"
	"lan-chat/internal/repositories"
	"lan-chat/internal/telemetry"
)

// GroupHandler implements group management and the group delivery protocol.
type GroupHandler struct {
	groups   repositories.GroupRepository
	messages repositories.GroupMessageRepository
	users    repositories.UserRepository
	hub      Broadcaster
	presence Presence
	notifier push.Notifier
	audit    Auditor
}

// NewGroupHandler constructs a GroupHandler. notifier and audit may be nil.
func NewGroupHandler(
	groups repositories.GroupRepository,
	messages repositories.GroupMessageRepository,
	users repositories.UserRepository,
	hub Broadcaster,
	presence Presence,
	notifier push.Notifier,
	audit Auditor,
) *GroupHandler {
	return &GroupHandler{
		groups:   groups,
		messages: messages,
		users:    users,
		hub:      hub,
		presence: presence,
		notifier: orNoopNotifier(notifier),
		audit:    orNoopAuditor(audit),
	}
}

// Register wires the group events.
func (h *GroupHandler) Register(r *Router) {
	r.On("group:create", h.Create)
	r.On("group:getList", h.List)
	r.On("group:getDetails", h.Details)
	r.On("group:update", h.Update)
	r.On("group:delete", h.Delete)
	r.On("group:addMember", h.AddMember)
	r.On("group:removeMember", h.RemoveMember)
	r.On("group:leave", h.Leave)
	r.On("group:updateRole", h.UpdateRole)
	r.On("group:updateSettings", h.UpdateSettings)
	r.On("group:updatePermissions", h.UpdatePermissions)
	r.On("group:muteMember", h.Mute)
	r.On("group:unmuteMember", h.Unmute)
	r.On("group:joinByInvite", h.JoinByInvite)
	r.On("group:regenerateInvite", h.RegenerateInvite)
	r.On("group:getMuteHistory", h.MuteHistory)
	r.On("group:getPermissionLogs", h.PermissionLogs)
	r.On("group:typing", h.Typing)

	r.On("group:message:send", h.SendMessage, ErrorAs(""))
	r.On("group:message:get", h.Messages)
	r.On("group:message:getOlder", h.OlderMessages)
	r.On("group:message:search", h.SearchMessages)
	r.On("group:message:getMedia", h.MediaMessages)
	r.On("group:message:pin", h.PinMessage)
	r.On("group:message:unpin", h.UnpinMessage)
	r.On("group:message:getPinned", h.PinnedMessages)
	r.On("group:message:delete", h.DeleteMessage)
	r.On("group:message:edit", h.EditMessage)
}

func (h *GroupHandler) emitAudit(ctx context.Context, s Session, groupID int64, action, targetID, details string) {
	h.audit.Emit(ctx, s.RequestID, s.UserID, telemetry.AuditPayload{
		GroupID:  groupID,
		Action:   action,
		TargetID: targetID,
		Details:  details,
	})
}

type groupRef struct {
	GroupID int64 `json:"groupId" validate:"required"`
}

type createGroupRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Avatar      string   `json:"avatar" validate:"max=512"`
	MemberIDs   []string `json:"memberIds" validate:"dive,required"`
}

// Create makes a group with the requester as creator and subscribes all members.
func (h *GroupHandler) Create(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req createGroupRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be blank", ErrInvalidPayload)
	}
	group, err := h.groups.CreateGroup(ctx, s.UserID, name, req.Description, req.Avatar, req.MemberIDs)
	if err != nil {
		return nil, err
	}
	members, err := h.groups.MemberIDs(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	h.hub.JoinGroup(group.ID, members...)
	h.hub.EmitToGroup(group.ID, "group:created", gin.H{"group": group}, s.ConnID)
	h.emitAudit(ctx, s, group.ID, repositories.LogGroupCreated, "", name)
	return ok(gin.H{"group": group}), nil
}

// List returns the requester's groups.
func (h *GroupHandler) List(ctx context.Context, s Session, _ json.RawMessage) (any, error) {
	groups, err := h.groups.ListGroupsForUser(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groups": groups}), nil
}

// Details returns a group with members, settings and the requester's own standing.
func (h *GroupHandler) Details(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	role, err := h.groups.Role(ctx, req.GroupID, s.UserID)
	if err != nil {
		return nil, err
	}
	group, err := h.groups.GetGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	members, err := h.groups.Members(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if h.presence.IsOnline(members[i].UserID) {
			members[i].Status = models.PresenceOnline
		} else {
			members[i].Status = models.PresenceOffline
		}
	}
	settings, err := h.groups.Settings(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	perm, err := h.groups.Permission(ctx, req.GroupID, s.UserID)
	if err != nil {
		return nil, err
	}
	if !role.IsAdmin() {
		group.InviteCode = ""
	}
	return ok(gin.H{
		"group":        group,
		"members":      members,
		"settings":     settings,
		"myRole":       role,
		"myPermission": perm,
	}), nil
}

type updateGroupRequest struct {
	GroupID int64 `json:"groupId" validate:"required"`
	models.GroupUpdate
}

// Update edits the group's name, description or avatar.
func (h *GroupHandler) Update(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req updateGroupRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	group, err := h.groups.UpdateGroup(ctx, req.GroupID, s.UserID, req.GroupUpdate)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(group.ID, "group:updated", gin.H{"group": group, "updatedBy": s.UserID}, "")
	h.emitAudit(ctx, s, group.ID, repositories.LogGroupUpdated, "", "")
	return ok(gin.H{"group": group}), nil
}

// Delete removes the group, notifies every member and closes the channel.
func (h *GroupHandler) Delete(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	members, err := h.groups.DeleteGroup(ctx, req.GroupID, s.UserID)
	if err != nil {
		return nil, err
	}
	payload := gin.H{"groupId": req.GroupID, "deletedBy": s.UserID}
	for _, id := range members {
		h.hub.EmitToUser(id, "group:deleted", payload, "")
	}
	h.hub.CloseGroup(req.GroupID)
	h.emitAudit(ctx, s, req.GroupID, repositories.LogGroupDeleted, "", "")
	return ok(gin.H{"groupId": req.GroupID}), nil
}

type addMemberRequest struct {
	GroupID int64    `json:"groupId" validate:"required"`
	UserIDs []string `json:"userIds" validate:"required,min=1,dive,required"`
}

// AddMember adds users and subscribes their live connections.
func (h *GroupHandler) AddMember(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req addMemberRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	for _, id := range req.UserIDs {
		if _, err := h.users.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	added, err := h.groups.AddMembers(ctx, req.GroupID, s.UserID, req.UserIDs)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		group, err := h.groups.GetGroup(ctx, req.GroupID)
		if err != nil {
			return nil, err
		}
		h.hub.JoinGroup(req.GroupID, added...)
		h.hub.EmitToGroup(req.GroupID, "group:memberAdded", gin.H{"groupId": req.GroupID, "userIds": added, "addedBy": s.UserID}, "")
		for _, id := range added {
			h.hub.EmitToUser(id, "group:added", gin.H{"group": group}, "")
			h.emitAudit(ctx, s, req.GroupID, repositories.LogMemberAdded, id, "")
		}
	}
	return ok(gin.H{"groupId": req.GroupID, "added": added}), nil
}

type memberRequest struct {
	GroupID int64  `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

// RemoveMember kicks a member out of the group.
func (h *GroupHandler) RemoveMember(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req memberRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	if err := h.groups.RemoveMember(ctx, req.GroupID, s.UserID, req.UserID); err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(req.GroupID, "group:memberRemoved", gin.H{"groupId": req.GroupID, "userId": req.UserID, "removedBy": s.UserID}, "")
	h.hub.LeaveGroup(req.GroupID, req.UserID)
	h.hub.EmitToUser(req.UserID, "group:removed", gin.H{"groupId": req.GroupID, "removedBy": s.UserID}, "")
	h.emitAudit(ctx, s, req.GroupID, repositories.LogMemberRemoved, req.UserID, "")
	return ok(gin.H{"groupId": req.GroupID, "userId": req.UserID}), nil
}

// Leave removes the requester. The creator has to delete the group instead.
func (h *GroupHandler) Leave(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	if err := h.groups.Leave(ctx, req.GroupID, s.UserID); err != nil {
		return nil, err
	}
	h.hub.LeaveGroup(req.GroupID, s.UserID)
	h.hub.EmitToGroup(req.GroupID, "group:memberLeft", gin.H{"groupId": req.GroupID, "userId": s.UserID}, "")
	h.hub.EmitToUser(s.UserID, "group:left", gin.H{"groupId": req.GroupID}, s.ConnID)
	h.emitAudit(ctx, s, req.GroupID, repositories.LogMemberLeft, s.UserID, "")
	return ok(gin.H{"groupId": req.GroupID}), nil
}

type roleRequest struct {
	GroupID int64  `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
	Role    string `json:"role" validate:"required,oneof=admin member"`
}

// UpdateRole promotes or demotes a member.
func (h *GroupHandler) UpdateRole(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req roleRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	role := models.Role(req.Role)
	if err := h.groups.UpdateRole(ctx, req.GroupID, s.UserID, req.UserID, role); err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(req.GroupID, "group:roleUpdated", gin.H{"groupId": req.GroupID, "userId": req.UserID, "role": role, "updatedBy": s.UserID}, "")
	h.emitAudit(ctx, s, req.GroupID, repositories.LogRoleChanged, req.UserID, req.Role)
	return ok(gin.H{"groupId": req.GroupID, "userId": req.UserID, "role": role}), nil
}

type settingsRequest struct {
	GroupID int64 `json:"groupId" validate:"required"`
	models.SettingsUpdate
}

// UpdateSettings changes group policy.
func (h *GroupHandler) UpdateSettings(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req settingsRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	settings, err := h.groups.UpdateSettings(ctx, req.GroupID, s.UserID, req.SettingsUpdate)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(req.GroupID, "group:settingsUpdated", gin.H{"groupId": req.GroupID, "settings": settings, "updatedBy": s.UserID}, "")
	h.emitAudit(ctx, s, req.GroupID, repositories.LogSettingsChanged, "", "")
	return ok(gin.H{"settings": settings}), nil
}

type permissionsRequest struct {
	GroupID int64  `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
	models.PermissionUpdate
}

// UpdatePermissions sets per-member overrides.
func (h *GroupHandler) UpdatePermissions(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req permissionsRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	perm, err := h.groups.UpdatePermissions(ctx, req.GroupID, s.UserID, req.UserID, req.PermissionUpdate)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(req.GroupID, "group:permissionsUpdated", gin.H{"groupId": req.GroupID, "userId": req.UserID, "permissions": perm}, "")
	h.emitAudit(ctx, s, req.GroupID, repositories.LogPermissionChanged, req.UserID, "")
	return ok(gin.H{"permissions": perm}), nil
}

type muteRequest struct {
	GroupID  int64  `json:"groupId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Duration string `json:"duration" validate:"required"`
	Reason   string `json:"reason" validate:"max=500"`
}

// Mute silences a member for one of the fixed durations.
func (h *GroupHandler) Mute(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req muteRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	perm, err := h.groups.Mute(ctx, req.GroupID, s.UserID, req.UserID, req.Duration, req.Reason)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(req.GroupID, "group:memberMuted", gin.H{
		"groupId":    req.GroupID,
		"userId":     req.UserID,
		"mutedBy":    s.UserID,
		"mutedUntil": perm.MutedUntil,
		"duration":   req.Duration,
		"reason":     req.Reason,
	}, "")
	h.emitAudit(ctx, s, req.GroupID, repositories.LogMemberMuted, req.UserID, req.Duration)
	return ok(gin.H{"permissions": perm}), nil
}

// Unmute lifts a mute.
func (h *GroupHandler) Unmute(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req memberRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	perm, err := h.groups.Unmute(ctx, req.GroupID, s.UserID, req.UserID)
	if err != nil {
		return nil, err
	}
	h.hub.EmitToGroup(req.GroupID, "group:memberUnmuted", gin.H{"groupId": req.GroupID, "userId": req.UserID, "unmutedBy": s.UserID}, "")
	h.emitAudit(ctx, s, req.GroupID, repositories.LogMemberUnmuted, req.UserID, "")
	return ok(gin.H{"permissions": perm}), nil
}

type inviteRequest struct {
	InviteCode string `json:"inviteCode" validate:"required"`
}

// JoinByInvite adds the requester through an invite code.
func (h *GroupHandler) JoinByInvite(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req inviteRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	group, err := h.groups.JoinByInvite(ctx, strings.TrimSpace(req.InviteCode), s.UserID)
	if err != nil {
		return nil, err
	}
	h.hub.JoinGroup(group.ID, s.UserID)
	h.hub.EmitToGroup(group.ID, "group:memberJoined", gin.H{"groupId": group.ID, "userId": s.UserID}, s.ConnID)
	h.emitAudit(ctx, s, group.ID, repositories.LogMemberJoined, s.UserID, "")
	group.InviteCode = ""
	return ok(gin.H{"group": group}), nil
}

// RegenerateInvite invalidates the old invite code.
func (h *GroupHandler) RegenerateInvite(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	code, err := h.groups.RegenerateInvite(ctx, req.GroupID, s.UserID)
	if err != nil {
		return nil, err
	}
	h.emitAudit(ctx, s, req.GroupID, repositories.LogInviteRegenerated, "", "")
	return ok(gin.H{"groupId": req.GroupID, "inviteCode": code}), nil
}

// MuteHistory returns the group's mute history.
func (h *GroupHandler) MuteHistory(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupRef
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	history, err := h.groups.MuteHistory(ctx, req.GroupID, s.UserID)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groupId": req.GroupID, "history": history}), nil
}

type logsRequest struct {
	GroupID int64 `json:"groupId" validate:"required"`
	Limit   int   `json:"limit" validate:"min=0"`
}

// PermissionLogs returns the group's audit trail.
func (h *GroupHandler) PermissionLogs(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req logsRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	logs, err := h.groups.PermissionLogs(ctx, req.GroupID, s.UserID, req.Limit)
	if err != nil {
		return nil, err
	}
	return ok(gin.H{"groupId": req.GroupID, "logs": logs}), nil
}

type groupTypingRequest struct {
	GroupID  int64 `json:"groupId" validate:"required"`
	IsTyping bool  `json:"isTyping"`
}

// Typing relays a typing indicator to the rest of the group.
func (h *GroupHandler) Typing(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req groupTypingRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	if _, err := h.groups.Role(ctx, req.GroupID, s.UserID); err != nil {
		return nil, err
	}
	name := s.UserID
	if u, err := h.users.Get(ctx, s.UserID); err == nil {
		name = u.DisplayName
	}
	h.hub.EmitToGroup(req.GroupID, "group:typing", gin.H{
		"groupId":     req.GroupID,
		"userId":      s.UserID,
		"displayName": name,
		"isTyping":    req.IsTyping,
	}, s.ConnID)
	return ok(nil), nil
}

// MuteSweeper periodically lifts expired timed mutes and announces them.
type MuteSweeper struct {
	groups   repositories.GroupRepository
	hub      Broadcaster
	interval time.Duration
}

// NewMuteSweeper constructs a MuteSweeper.
func NewMuteSweeper(groups repositories.GroupRepository, hub Broadcaster, interval time.Duration) *MuteSweeper {
	return &MuteSweeper{groups: groups, hub: hub, interval: interval}
}

// Sweep runs one pass and returns how many mutes expired.
func (m *MuteSweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := m.groups.ExpireMutes(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range expired {
		m.hub.EmitToGroup(p.GroupID, "group:memberUnmuted", gin.H{
			"groupId":   p.GroupID,
			"userId":    p.UserID,
			"unmutedBy": repositories.SystemActor,
			"expired":   true,
		}, "")
	}
	return len(expired), nil
}

// Serve implements suture.Service.
func (m *MuteSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				return fmt.Errorf("mute sweep: %w", err)
			}
		}
	}
}

func (m *MuteSweeper) String() string { return "mute-sweeper" }
