package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/models"
	"lan-chat/internal/push"
	"lan-chat/internal/repositories"
	"lan-chat/internal/telemetry"
)

func createGroup(t *testing.T, env *testEnv, creator string, members ...string) int64 {
	t.Helper()
	res := env.mustCall(t, creator, creator+"-conn", "group:create", gin.H{"name": "Team", "memberIds": members})
	return res["group"].(models.Group).ID
}

func TestCreateGroupSubscribesMembers(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")

	gid := createGroup(t, env, "alice", "bob")

	assert.True(t, env.hub.inGroup(gid, "alice"))
	assert.True(t, env.hub.inGroup(gid, "bob"))
	assert.False(t, env.hub.inGroup(gid, "carol"))
	require.Len(t, env.hub.find("group:created"), 1)

	env.auditor.AssertCalled(t, "Emit", mock.Anything, "req-alice-conn", "alice", mock.MatchedBy(func(p telemetry.AuditPayload) bool {
		return p.GroupID == gid && p.Action == repositories.LogGroupCreated
	}))

	details := env.mustCall(t, "bob", "b1", "group:getDetails", gin.H{"groupId": gid})
	assert.Equal(t, models.RoleMember, details["myRole"])
	assert.Empty(t, details["group"].(models.Group).InviteCode)
	assert.Len(t, details["members"], 2)

	_, err := env.call("carol", "c1", "group:getDetails", gin.H{"groupId": gid})
	assert.ErrorIs(t, err, repositories.ErrNotMember)
}

func TestGroupMessageFanOutAndPush(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	gid := createGroup(t, env, "alice", "bob", "carol")
	env.connect(t, "alice", "a1")
	env.connect(t, "bob", "b1")
	env.hub.reset()

	res := env.mustCall(t, "alice", "a1", "group:message:send", gin.H{"groupId": gid, "tempId": "g1", "content": "hello team"})
	msg := res["message"].(models.GroupMessage)
	assert.Equal(t, gid, msg.GroupID)
	assert.Equal(t, "alice-pc", msg.SenderName)

	require.Len(t, env.hub.sentTo("conn", "a1", "group:message:sent"), 1)
	fan := env.hub.find("group:message:new")
	require.Len(t, fan, 1)
	assert.Equal(t, gid, fan[0].group)
	assert.Equal(t, "a1", fan[0].except)

	env.notifier.AssertCalled(t, "SendNotification", mock.Anything, "carol", mock.MatchedBy(func(p push.Payload) bool {
		return p.Kind == "group" && p.GroupID == gid && p.Title == "Team"
	}))
	env.notifier.AssertNotCalled(t, "SendNotification", mock.Anything, "bob", mock.Anything)
	env.notifier.AssertNotCalled(t, "SendNotification", mock.Anything, "alice", mock.Anything)
}

func TestMuteBlocksSendUntilUnmuted(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	gid := createGroup(t, env, "alice", "bob")

	env.mustCall(t, "alice", "a1", "group:muteMember", gin.H{"groupId": gid, "userId": "bob", "duration": "1h", "reason": "spam"})
	muted := env.hub.find("group:memberMuted")
	require.Len(t, muted, 1)
	assert.Equal(t, "bob", muted[0].data.(gin.H)["userId"])

	_, err := env.call("bob", "b1", "group:message:send", gin.H{"groupId": gid, "tempId": "g1", "content": "let me talk"})
	assert.ErrorIs(t, err, repositories.ErrMuted)
	failures := env.hub.sentTo("conn", "b1", "group:message:error")
	require.Len(t, failures, 1)
	assert.Equal(t, CodeMuted, failures[0].data.(gin.H)["code"])

	_, err = env.call("bob", "b1", "group:muteMember", gin.H{"groupId": gid, "userId": "alice", "duration": "1h"})
	assert.ErrorIs(t, err, repositories.ErrPermissionDenied)

	env.mustCall(t, "alice", "a1", "group:unmuteMember", gin.H{"groupId": gid, "userId": "bob"})
	require.Len(t, env.hub.find("group:memberUnmuted"), 1)

	env.mustCall(t, "bob", "b1", "group:message:send", gin.H{"groupId": gid, "tempId": "g2", "content": "thanks"})

	env.auditor.AssertCalled(t, "Emit", mock.Anything, mock.Anything, "alice", mock.MatchedBy(func(p telemetry.AuditPayload) bool {
		return p.Action == repositories.LogMemberMuted && p.TargetID == "bob" && p.Details == "1h"
	}))
}

func TestMuteSweeperExpiresTimedMutes(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	gid := createGroup(t, env, "alice", "bob")
	env.mustCall(t, "alice", "a1", "group:muteMember", gin.H{"groupId": gid, "userId": "bob", "duration": "1h"})

	n, err := env.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(time.Hour + time.Minute)
	n, err = env.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unmuted := env.hub.find("group:memberUnmuted")
	require.Len(t, unmuted, 1)
	assert.Equal(t, true, unmuted[0].data.(gin.H)["expired"])
	assert.Equal(t, gid, unmuted[0].group)

	env.mustCall(t, "bob", "b1", "group:message:send", gin.H{"groupId": gid, "tempId": "g1", "content": "back"})
}

func TestCreatorCannotLeaveButCanDelete(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	gid := createGroup(t, env, "alice", "bob", "carol")

	_, err := env.call("alice", "a1", "group:leave", gin.H{"groupId": gid})
	assert.ErrorIs(t, err, repositories.ErrPermissionDenied)

	_, err = env.call("bob", "b1", "group:delete", gin.H{"groupId": gid})
	require.Error(t, err)

	env.mustCall(t, "carol", "c1", "group:leave", gin.H{"groupId": gid})
	assert.False(t, env.hub.inGroup(gid, "carol"))
	require.Len(t, env.hub.find("group:memberLeft"), 1)

	env.mustCall(t, "alice", "a1", "group:delete", gin.H{"groupId": gid})
	assert.Len(t, env.hub.sentTo("user", "alice", "group:deleted"), 1)
	assert.Len(t, env.hub.sentTo("user", "bob", "group:deleted"), 1)
	assert.Empty(t, env.hub.sentTo("user", "carol", "group:deleted"))
	assert.Contains(t, env.hub.closed, gid)
	assert.False(t, env.hub.inGroup(gid, "bob"))

	_, err = env.call("bob", "b1", "group:message:send", gin.H{"groupId": gid, "tempId": "g1", "content": "hello?"})
	require.Error(t, err)
}

func TestLockedGroupAdminVersusMember(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	gid := createGroup(t, env, "alice", "bob", "carol")

	env.mustCall(t, "alice", "a1", "group:updateRole", gin.H{"groupId": gid, "userId": "bob", "role": "admin"})
	require.Len(t, env.hub.find("group:roleUpdated"), 1)

	_, err := env.call("carol", "c1", "group:updateSettings", gin.H{"groupId": gid, "locked": true})
	assert.ErrorIs(t, err, repositories.ErrPermissionDenied)

	res := env.mustCall(t, "bob", "b1", "group:updateSettings", gin.H{"groupId": gid, "locked": true})
	assert.True(t, res["settings"].(models.GroupSettings).Locked)

	env.mustCall(t, "bob", "b1", "group:message:send", gin.H{"groupId": gid, "tempId": "g1", "content": "announcement"})
	_, err = env.call("carol", "c1", "group:message:send", gin.H{"groupId": gid, "tempId": "g2", "content": "reply"})
	assert.ErrorIs(t, err, repositories.ErrPermissionDenied)
	code, _ := errorCode(err)
	assert.Equal(t, CodePermissionDenied, code)
}

func TestInviteJoinAndMemberManagement(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol", "dave")
	gid := createGroup(t, env, "alice", "bob")

	res := env.mustCall(t, "alice", "a1", "group:regenerateInvite", gin.H{"groupId": gid})
	code := res["inviteCode"].(string)
	require.NotEmpty(t, code)

	_, err := env.call("carol", "c1", "group:joinByInvite", gin.H{"inviteCode": "wrong"})
	assert.ErrorIs(t, err, repositories.ErrInvalidInviteLink)

	joined := env.mustCall(t, "carol", "c1", "group:joinByInvite", gin.H{"inviteCode": code})
	assert.Equal(t, gid, joined["group"].(models.Group).ID)
	assert.True(t, env.hub.inGroup(gid, "carol"))

	_, err = env.call("carol", "c1", "group:joinByInvite", gin.H{"inviteCode": code})
	assert.ErrorIs(t, err, repositories.ErrAlreadyMember)

	added := env.mustCall(t, "alice", "a1", "group:addMember", gin.H{"groupId": gid, "userIds": []string{"dave", "bob"}})
	assert.Equal(t, []string{"dave"}, added["added"])
	assert.Len(t, env.hub.sentTo("user", "dave", "group:added"), 1)

	env.mustCall(t, "alice", "a1", "group:removeMember", gin.H{"groupId": gid, "userId": "dave"})
	assert.False(t, env.hub.inGroup(gid, "dave"))
	assert.Len(t, env.hub.sentTo("user", "dave", "group:removed"), 1)

	logs := env.mustCall(t, "alice", "a1", "group:getPermissionLogs", gin.H{"groupId": gid})
	assert.NotEmpty(t, logs["logs"])
}

func TestGroupMessageEditPinAndDelete(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	gid := createGroup(t, env, "alice", "bob")

	res := env.mustCall(t, "bob", "b1", "group:message:send", gin.H{"groupId": gid, "tempId": "g1", "content": "draft"})
	msg := res["message"].(models.GroupMessage)

	res = env.mustCall(t, "bob", "b1", "group:message:edit", gin.H{"messageId": msg.ID, "newContent": "final"})
	assert.True(t, res["message"].(models.GroupMessage).Edited)
	require.Len(t, env.hub.find("group:message:edited"), 1)

	_, err := env.call("alice", "a1", "group:message:edit", gin.H{"messageId": msg.ID, "newContent": "not yours"})
	require.Error(t, err)

	env.mustCall(t, "alice", "a1", "group:message:pin", gin.H{"messageId": msg.ID})
	pinned := env.mustCall(t, "bob", "b1", "group:message:getPinned", gin.H{"groupId": gid})
	assert.Len(t, pinned["messages"], 1)

	env.mustCall(t, "alice", "a1", "group:message:delete", gin.H{"messageId": msg.ID, "deleteForEveryone": true})
	deleted := env.hub.find("group:message:deleted")
	require.Len(t, deleted, 1)
	assert.Equal(t, "group", deleted[0].scope)

	page := env.mustCall(t, "bob", "b1", "group:message:get", gin.H{"groupId": gid})
	msgs := page["messages"].([]models.GroupMessage)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].DeletedForAll)
	assert.Equal(t, models.DeletedContent, msgs[0].Content)
}

func TestGroupTypingSkipsOrigin(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	gid := createGroup(t, env, "alice", "bob")

	env.mustCall(t, "bob", "b1", "group:typing", gin.H{"groupId": gid, "isTyping": true})
	typing := env.hub.find("group:typing")
	require.Len(t, typing, 1)
	assert.Equal(t, "b1", typing[0].except)
	assert.Equal(t, "bob-pc", typing[0].data.(gin.H)["displayName"])

	_, err := env.call("carol", "c1", "group:typing", gin.H{"groupId": gid, "isTyping": true})
	assert.ErrorIs(t, err, repositories.ErrNotMember)
}

func TestGroupSendKeepsReplyLink(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	gid := createGroup(t, env, "alice", "bob")

	res := env.mustCall(t, "alice", "a1", "group:message:send", gin.H{"groupId": gid, "tempId": "g1", "content": "who's in?"})
	first := res["message"].(models.GroupMessage)

	res = env.mustCall(t, "bob", "b1", "group:message:send", gin.H{"groupId": gid, "tempId": "g2", "content": "me", "replyTo": first.ID})
	reply := res["message"].(models.GroupMessage)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, first.ID, *reply.ReplyToID)
}
