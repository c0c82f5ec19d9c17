package models

import "fmt"

// MessageStatus is the delivery state of a direct message as seen by its receiver.
type MessageStatus string

const (
	// StatusSending only exists on the client before the server acknowledges.
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether a message may move from s to next.
// Same-state moves are allowed and treated as no-ops by callers. Edits reset to sent
// through their own path and never consult this table.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok || next == StatusSending {
		return false
	}
	return to >= from
}

// MessageType is the content kind of a message.
type MessageType string

const (
	TypeText    MessageType = "text"
	TypeImage   MessageType = "image"
	TypeVideo   MessageType = "video"
	TypeAudio   MessageType = "audio"
	TypeFile    MessageType = "file"
	TypeGIF     MessageType = "gif"
	TypeSticker MessageType = "sticker"
)

// ParseMessageType defaults an empty type to text.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case "":
		return TypeText, nil
	case TypeText, TypeImage, TypeVideo, TypeAudio, TypeFile, TypeGIF, TypeSticker:
		return t, nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// IsMedia reports whether the type carries a media reference rather than text.
func (t MessageType) IsMedia() bool {
	return t != TypeText && t != ""
}

// MediaTypes lists the types returned by media queries.
var MediaTypes = []MessageType{TypeImage, TypeVideo, TypeAudio, TypeFile, TypeGIF}
