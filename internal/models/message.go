package models

import "time"

// DeletedContent replaces the body of a message deleted for everyone.
const DeletedContent = "This message was deleted"

// Message represents a direct message between two users.
type Message struct {
	ID            int64         `db:"id" json:"id"`
	SenderID      string        `db:"sender_id" json:"senderId"`
	ReceiverID    string        `db:"receiver_id" json:"receiverId"`
	Content       string        `db:"content" json:"content"`
	Type          MessageType   `db:"type" json:"type"`
	ReplyToID     *int64        `db:"reply_to" json:"replyToId,omitempty"`
	Status        MessageStatus `db:"status" json:"status"`
	Edited        bool          `db:"edited" json:"edited"`
	EditedAt      *time.Time    `db:"edited_at" json:"editedAt,omitempty"`
	Forwarded     bool          `db:"forwarded" json:"forwarded"`
	DeletedForAll bool          `db:"deleted_for_all" json:"deletedForEveryone"`
	Pinned        bool          `db:"pinned" json:"pinned"`
	PinnedAt      *time.Time    `db:"pinned_at" json:"pinnedAt,omitempty"`
	Caption       string        `db:"caption" json:"caption,omitempty"`
	FileName      string        `db:"file_name" json:"fileName,omitempty"`
	FileSize      int64         `db:"file_size" json:"fileSize,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`

	ReplyTo   *ReplyPreview   `db:"-" json:"replyTo,omitempty"`
	Reactions []ReactionGroup `db:"-" json:"reactions"`
}

// NewMessage is the input to MessageRepository.Save.
type NewMessage struct {
	SenderID   string
	ReceiverID string
	Content    string
	Type       MessageType
	ReplyToID  *int64
	Forwarded  bool
	Caption    string
	FileName   string
	FileSize   int64
}

// ReplyPreview is the resolved target of a reply, looked up at read time.
type ReplyPreview struct {
	ID            int64       `db:"id" json:"id"`
	SenderID      string      `db:"sender_id" json:"senderId"`
	Content       string      `db:"content" json:"content"`
	Type          MessageType `db:"type" json:"type"`
	DeletedForAll bool        `db:"deleted_for_all" json:"deletedForEveryone"`
}

// MessageWindow is the result of a jump-to-message query.
type MessageWindow struct {
	Messages    []Message `json:"messages"`
	TargetIndex int       `json:"targetIndex"`
	HasOlder    bool      `json:"hasOlder"`
	HasNewer    bool      `json:"hasNewer"`
}

// StatusChange records a message whose status moved, for notifying its sender.
type StatusChange struct {
	MessageID  int64  `db:"id" json:"messageId"`
	SenderID   string `db:"sender_id" json:"senderId"`
	ReceiverID string `db:"receiver_id" json:"receiverId"`
}

// Conversation summarizes a direct chat for the recency-ordered chat list.
type Conversation struct {
	PeerID      string  `json:"peerId"`
	LastMessage Message `json:"lastMessage"`
	UnreadCount int     `json:"unreadCount"`
}

// Reaction is a single (message, user, emoji) triple.
type Reaction struct {
	MessageID int64     `db:"message_id" json:"messageId"`
	UserID    string    `db:"user_id" json:"userId"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ReactionGroup aggregates one emoji on one message.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Attachment is an uploaded file record.
type Attachment struct {
	ID           int64     `db:"id" json:"id"`
	UploaderID   string    `db:"uploader_id" json:"uploaderId"`
	URL          string    `db:"url" json:"url"`
	OriginalName string    `db:"original_name" json:"originalName"`
	MimeType     string    `db:"mime_type" json:"mimetype"`
	Size         int64     `db:"size" json:"size"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
