package repositories

import (
	"errors"
	"fmt"
)

var (
	ErrMessageNotFound     = errors.New("message not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrNotMember           = errors.New("not a member of this group")
	ErrNotOwner            = errors.New("only the sender can do this")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrMuted               = fmt.Errorf("%w: you are muted in this group", ErrPermissionDenied)
	ErrEditWindowExpired   = errors.New("edit window expired")
	ErrMaxPinnedExceeded   = errors.New("maximum pinned messages reached")
	ErrInvalidInviteLink   = errors.New("invalid invite link")
	ErrAlreadyMember       = errors.New("already a member")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidEmoji        = errors.New("reaction must be a single emoji")
	ErrInvalidMuteDuration = errors.New("invalid mute duration")
	ErrInvalidRole         = errors.New("invalid role")
)
