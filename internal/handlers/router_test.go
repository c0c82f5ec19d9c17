package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/repositories"
)

func TestRouterRecoversPanics(t *testing.T) {
	r := NewRouter(newRecordingHub(), nil)
	r.On("boom", func(context.Context, Session, json.RawMessage) (any, error) {
		panic("kaboom")
	})

	var err error
	assert.NotPanics(t, func() {
		_, err = r.Call(context.Background(), session("alice", "a1"), "boom", nil)
	})
	require.Error(t, err)

	reply := errorReply(err)
	assert.Equal(t, CodeInternal, reply.Code)
	assert.Equal(t, "internal error", reply.Error)
	assert.False(t, reply.Success)
}

func TestRouterUnknownEvent(t *testing.T) {
	r := NewRouter(newRecordingHub(), nil)
	_, err := r.Call(context.Background(), session("alice", "a1"), "nope", nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBindValidates(t *testing.T) {
	var req groupSendRequest
	assert.ErrorIs(t, bind(json.RawMessage(`{"groupId":1}`), &req), ErrInvalidPayload)
	assert.ErrorIs(t, bind(json.RawMessage(`{not json`), &req), ErrInvalidPayload)
	assert.ErrorIs(t, bind(nil, &req), ErrInvalidPayload)

	require.NoError(t, bind(json.RawMessage(`{"groupId":1,"tempId":"x","content":"hi"}`), &req))
	assert.Equal(t, int64(1), req.GroupID)
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{repositories.ErrMuted, CodeMuted},
		{fmt.Errorf("send: %w", repositories.ErrMuted), CodeMuted},
		{repositories.ErrPermissionDenied, CodePermissionDenied},
		{repositories.ErrNotMember, CodeNotMember},
		{repositories.ErrNotOwner, CodeNotOwner},
		{repositories.ErrEditWindowExpired, CodeEditWindowExpired},
		{repositories.ErrMaxPinnedExceeded, CodeMaxPinnedExceeded},
		{repositories.ErrInvalidInviteLink, CodeInvalidInviteLink},
		{repositories.ErrAlreadyMember, CodeAlreadyMember},
		{repositories.ErrGroupNotFound, CodeNotFound},
		{repositories.ErrInvalidMuteDuration, CodeInvalidPayload},
		{errors.New("disk on fire"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			code, _ := errorCode(tc.err)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestRouterRegistersEveryEvent(t *testing.T) {
	env := newTestEnv(t)
	events := env.router.Events()
	for _, name := range []string{
		"message:send", "message:forward", "message:read", "message:edit", "message:delete",
		"message:pin", "message:unpin", "typing:start", "typing:stop", "reaction:toggle",
		"messages:fetch", "messages:loadOlder", "messages:jump", "messages:search",
		"conversations:fetch", "group:create", "group:joinByInvite", "group:muteMember",
		"group:message:send", "group:message:getOlder", "group:typing",
	} {
		assert.Contains(t, events, name)
	}
}

func TestHistoryRoutesReplyWithPagingEvents(t *testing.T) {
	env := newTestEnv(t)
	for event, reply := range map[string]string{
		"messages:fetch":     "messages:history",
		"messages:loadOlder": "messages:olderLoaded",
		"messages:jump":      "messages:jumped",
	} {
		rt, ok := env.router.routes[event]
		require.True(t, ok, event)
		assert.Equal(t, reply, rt.replyEvent, event)
	}
}
