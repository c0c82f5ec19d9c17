package models

import "time"

// Role is a member's rank inside a group.
type Role string

const (
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
)

// IsAdmin reports whether the role carries admin privileges. The creator counts as an admin.
func (r Role) IsAdmin() bool {
	return r == RoleCreator || r == RoleAdmin
}

// Audience values for group settings.
const (
	AudienceAll    = "all"
	AudienceAdmins = "admins"
)

// Group represents a chat group.
type Group struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Avatar      string    `db:"avatar" json:"avatar,omitempty"`
	CreatorID   string    `db:"creator_id" json:"creatorId"`
	InviteCode  string    `db:"invite_code" json:"inviteCode"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// GroupSummary is a group as listed for one of its members.
type GroupSummary struct {
	Group
	Role        Role `db:"role" json:"role"`
	MemberCount int  `db:"member_count" json:"memberCount"`
}

// GroupMember is one row of group membership.
type GroupMember struct {
	GroupID     int64     `db:"group_id" json:"groupId"`
	UserID      string    `db:"user_id" json:"userId"`
	Role        Role      `db:"role" json:"role"`
	JoinedAt    time.Time `db:"joined_at" json:"joinedAt"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Status      string    `db:"status" json:"status"`
}

// GroupSettings is the per-group policy.
type GroupSettings struct {
	GroupID          int64  `db:"group_id" json:"groupId"`
	SendMessages     string `db:"send_messages" json:"sendMessages"`
	SendMedia        string `db:"send_media" json:"sendMedia"`
	AddMembers       string `db:"add_members" json:"addMembers"`
	EditInfo         string `db:"edit_info" json:"editInfo"`
	Locked           bool   `db:"locked" json:"locked"`
	ApprovalRequired bool   `db:"approval_required" json:"approvalRequired"`
}

// DefaultGroupSettings is applied to every new group.
func DefaultGroupSettings(groupID int64) GroupSettings {
	return GroupSettings{
		GroupID:      groupID,
		SendMessages: AudienceAll,
		SendMedia:    AudienceAll,
		AddMembers:   AudienceAdmins,
		EditInfo:     AudienceAdmins,
	}
}

// SettingsUpdate carries optional settings edits.
type SettingsUpdate struct {
	SendMessages     *string `json:"sendMessages,omitempty" validate:"omitempty,oneof=all admins"`
	SendMedia        *string `json:"sendMedia,omitempty" validate:"omitempty,oneof=all admins"`
	AddMembers       *string `json:"addMembers,omitempty" validate:"omitempty,oneof=all admins"`
	EditInfo         *string `json:"editInfo,omitempty" validate:"omitempty,oneof=all admins"`
	Locked           *bool   `json:"locked,omitempty"`
	ApprovalRequired *bool   `json:"approvalRequired,omitempty"`
}

// GroupUpdate carries optional group info edits.
type GroupUpdate struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Avatar      *string `json:"avatar,omitempty"`
}

// MemberPermission is a per-member override. A missing row means every flag is permissive and
// the member is not muted.
type MemberPermission struct {
	GroupID         int64      `db:"group_id" json:"groupId"`
	UserID          string     `db:"user_id" json:"userId"`
	CanSendMessages bool       `db:"can_send_messages" json:"canSendMessages"`
	CanSendMedia    bool       `db:"can_send_media" json:"canSendMedia"`
	CanAddMembers   bool       `db:"can_add_members" json:"canAddMembers"`
	Muted           bool       `db:"muted" json:"muted"`
	MutedUntil      *time.Time `db:"muted_until" json:"mutedUntil,omitempty"`
	MuteReason      string     `db:"mute_reason" json:"muteReason,omitempty"`
	MutedBy         string     `db:"muted_by" json:"mutedBy,omitempty"`
	MutedAt         *time.Time `db:"muted_at" json:"mutedAt,omitempty"`
}

// DefaultMemberPermission returns the implicit permission row.
func DefaultMemberPermission(groupID int64, userID string) MemberPermission {
	return MemberPermission{
		GroupID:         groupID,
		UserID:          userID,
		CanSendMessages: true,
		CanSendMedia:    true,
		CanAddMembers:   true,
	}
}

// IsMutedAt reports whether the mute is in force at now.
func (p MemberPermission) IsMutedAt(now time.Time) bool {
	if !p.Muted {
		return false
	}
	return p.MutedUntil == nil || now.Before(*p.MutedUntil)
}

// PermissionUpdate carries optional per-member override edits.
type PermissionUpdate struct {
	CanSendMessages *bool `json:"canSendMessages,omitempty"`
	CanSendMedia    *bool `json:"canSendMedia,omitempty"`
	CanAddMembers   *bool `json:"canAddMembers,omitempty"`
}

// Mute actions recorded in mute history.
const (
	MuteActionMute   = "mute"
	MuteActionUnmute = "unmute"
	MuteActionExpire = "expire"
)

// MuteRecord is one row of mute history.
type MuteRecord struct {
	ID        int64      `db:"id" json:"id"`
	GroupID   int64      `db:"group_id" json:"groupId"`
	UserID    string     `db:"user_id" json:"userId"`
	ActorID   string     `db:"actor_id" json:"actorId"`
	Action    string     `db:"action" json:"action"`
	Duration  string     `db:"duration" json:"duration,omitempty"`
	Reason    string     `db:"reason" json:"reason,omitempty"`
	Until     *time.Time `db:"until_at" json:"until,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// PermissionLog is one row of the group audit trail.
type PermissionLog struct {
	ID        int64     `db:"id" json:"id"`
	GroupID   int64     `db:"group_id" json:"groupId"`
	ActorID   string    `db:"actor_id" json:"actorId"`
	TargetID  string    `db:"target_id" json:"targetId,omitempty"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// GroupMessage represents a message sent in a group. Group messages never leave the sent state.
type GroupMessage struct {
	ID            int64       `db:"id" json:"id"`
	GroupID       int64       `db:"group_id" json:"groupId"`
	SenderID      string      `db:"sender_id" json:"senderId"`
	SenderName    string      `db:"sender_name" json:"senderName"`
	Content       string      `db:"content" json:"content"`
	Type          MessageType `db:"type" json:"type"`
	ReplyToID     *int64      `db:"reply_to" json:"replyToId,omitempty"`
	Edited        bool        `db:"edited" json:"edited"`
	EditedAt      *time.Time  `db:"edited_at" json:"editedAt,omitempty"`
	Forwarded     bool        `db:"forwarded" json:"forwarded"`
	DeletedForAll bool        `db:"deleted_for_all" json:"deletedForEveryone"`
	Pinned        bool        `db:"pinned" json:"pinned"`
	PinnedAt      *time.Time  `db:"pinned_at" json:"pinnedAt,omitempty"`
	Caption       string      `db:"caption" json:"caption,omitempty"`
	FileName      string      `db:"file_name" json:"fileName,omitempty"`
	FileSize      int64       `db:"file_size" json:"fileSize,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`

	ReplyTo   *ReplyPreview   `db:"-" json:"replyTo,omitempty"`
	Reactions []ReactionGroup `db:"-" json:"reactions"`
}

// NewGroupMessage is the input to GroupMessageRepository.Save.
type NewGroupMessage struct {
	GroupID   int64
	SenderID  string
	Content   string
	Type      MessageType
	ReplyToID *int64
	Forwarded bool
	Caption   string
	FileName  string
	FileSize  int64
}
