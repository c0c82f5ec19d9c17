package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/models"
)

func newText(from, to, content string) models.NewMessage {
	return models.NewMessage{SenderID: from, ReceiverID: to, Content: content}
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestSaveAndGetBetween(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	f.send(t, "alice", "bob", "one")
	f.send(t, "bob", "alice", "two")
	f.send(t, "alice", "carol", "elsewhere")
	f.send(t, "alice", "bob", "three")

	msgs, err := f.messages.GetBetween(ctx, "alice", "bob", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, contents(msgs))
	assert.Equal(t, models.StatusSent, msgs[0].Status)
	assert.Equal(t, models.TypeText, msgs[0].Type)
	assert.NotNil(t, msgs[0].Reactions)

	// newest page first, oldest-first within the page
	page, err := f.messages.GetBetween(ctx, "bob", "alice", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, contents(page))
}

func TestUpdateStatusIsMonotonic(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	id := f.send(t, "alice", "bob", "hi")

	changed, err := f.messages.UpdateStatus(ctx, id, models.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.messages.UpdateStatus(ctx, id, models.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.messages.UpdateStatus(ctx, id, models.StatusSent)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.messages.UpdateStatus(ctx, id, models.StatusRead)
	require.NoError(t, err)
	_, err = f.messages.UpdateStatus(ctx, id, models.StatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// an edit is the one sanctioned reset
	edited, err := f.messages.Edit(ctx, id, "alice", "hi there")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, edited.Status)
	assert.True(t, edited.Edited)
	assert.NotNil(t, edited.EditedAt)
}

func TestEditWindow(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	id := f.send(t, "alice", "bob", "draft")

	_, err := f.messages.Edit(ctx, id, "bob", "hijack")
	assert.ErrorIs(t, err, ErrNotOwner)

	f.clock.Advance(14 * time.Minute)
	msg, err := f.messages.Edit(ctx, id, "alice", "final")
	require.NoError(t, err)
	assert.Equal(t, "final", msg.Content)

	f.clock.Advance(2 * time.Minute)
	_, err = f.messages.Edit(ctx, id, "alice", "too late")
	assert.ErrorIs(t, err, ErrEditWindowExpired)

	_, err = f.messages.Delete(ctx, id, "alice", true)
	assert.ErrorIs(t, err, ErrEditWindowExpired)
}

func TestEditWindowIsConfigurable(t *testing.T) {
	conn := newTestDB(t)
	clock := newFakeClock()
	repo := NewMessageRepo(conn, WithClock(clock.Now), WithEditWindow(time.Minute))
	msg, err := repo.Save(context.Background(), newText("alice", "bob", "x"))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = repo.Edit(context.Background(), msg.ID, "alice", "y")
	assert.ErrorIs(t, err, ErrEditWindowExpired)
}

func TestPinCap(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, f.send(t, "alice", "bob", "m"))
	}
	for _, id := range ids[:3] {
		_, err := f.messages.Pin(ctx, id, "bob")
		require.NoError(t, err)
	}

	_, err := f.messages.Pin(ctx, ids[3], "alice")
	assert.ErrorIs(t, err, ErrMaxPinnedExceeded)
	fourth, err := f.messages.Get(ctx, ids[3])
	require.NoError(t, err)
	assert.False(t, fourth.Pinned)

	pinned, err := f.messages.Pinned(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Len(t, pinned, 3)

	// re-pinning an already pinned message is a no-op, not a cap violation
	_, err = f.messages.Pin(ctx, ids[0], "alice")
	assert.NoError(t, err)

	// the cap is per conversation
	other := f.send(t, "alice", "carol", "x")
	_, err = f.messages.Pin(ctx, other, "carol")
	assert.NoError(t, err)

	_, err = f.messages.Unpin(ctx, ids[0], "alice")
	require.NoError(t, err)
	_, err = f.messages.Pin(ctx, ids[3], "alice")
	assert.NoError(t, err)

	_, err = f.messages.Pin(ctx, ids[1], "carol")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestDeleteForSelfIsAsymmetric(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	keep := f.send(t, "alice", "bob", "keep")
	hide := f.send(t, "alice", "bob", "hide")

	_, err := f.messages.Delete(ctx, hide, "bob", false)
	require.NoError(t, err)

	bobView, err := f.messages.GetBetween(ctx, "bob", "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, contents(bobView))

	aliceView, err := f.messages.GetBetween(ctx, "alice", "bob", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep", "hide"}, contents(aliceView))

	_, err = f.messages.GetForUser(ctx, hide, "bob")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = f.messages.GetForUser(ctx, keep, "bob")
	assert.NoError(t, err)

	// hiding twice is harmless
	_, err = f.messages.Delete(ctx, hide, "bob", false)
	assert.NoError(t, err)
}

func TestDeleteForEveryone(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	id := f.send(t, "alice", "bob", "oops")
	_, err := f.messages.Pin(ctx, id, "alice")
	require.NoError(t, err)
	_, _, err = f.reacts.Toggle(ctx, id, "bob", "😂")
	require.NoError(t, err)

	_, err = f.messages.Delete(ctx, id, "bob", true)
	assert.ErrorIs(t, err, ErrNotOwner)

	msg, err := f.messages.Delete(ctx, id, "alice", true)
	require.NoError(t, err)
	assert.True(t, msg.DeletedForAll)
	assert.Equal(t, models.DeletedContent, msg.Content)
	assert.False(t, msg.Pinned)
	assert.Empty(t, msg.Reactions)

	// tombstone stays in history for both
	bobView, err := f.messages.GetBetween(ctx, "bob", "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, bobView, 1)
	assert.True(t, bobView[0].DeletedForAll)

	_, err = f.messages.Edit(ctx, id, "alice", "resurrect")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMarkDeliveredAndRead(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()
	a1 := f.send(t, "alice", "bob", "a1")
	a2 := f.send(t, "alice", "bob", "a2")
	c1 := f.send(t, "carol", "bob", "c1")
	f.send(t, "bob", "alice", "reply")

	changes, err := f.messages.MarkAllDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []models.StatusChange{
		{MessageID: a1, SenderID: "alice", ReceiverID: "bob"},
		{MessageID: a2, SenderID: "alice", ReceiverID: "bob"},
		{MessageID: c1, SenderID: "carol", ReceiverID: "bob"},
	}, changes)

	again, err := f.messages.MarkAllDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, again)

	read, err := f.messages.MarkRead(ctx, "alice", "bob", []int64{a1})
	require.NoError(t, err)
	assert.Equal(t, []int64{a1}, read)

	read, err = f.messages.MarkRead(ctx, "alice", "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{a2}, read)

	m, err := f.messages.Get(ctx, c1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, m.Status)

	// reading straight from sent is allowed
	fresh := f.send(t, "carol", "bob", "c2")
	read, err = f.messages.MarkRead(ctx, "carol", "bob", []int64{fresh})
	require.NoError(t, err)
	assert.Equal(t, []int64{fresh}, read)

	ids, err := f.messages.MarkDelivered(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestGetOlderThanAndAround(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 10; i++ {
		ids = append(ids, f.send(t, "alice", "bob", string(rune('a'+i))))
	}

	older, hasMore, err := f.messages.GetOlderThan(ctx, "bob", "alice", ids[5], 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "e"}, contents(older))
	assert.True(t, hasMore)

	older, hasMore, err = f.messages.GetOlderThan(ctx, "bob", "alice", ids[2], 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, contents(older))
	assert.False(t, hasMore)

	win, err := f.messages.GetAround(ctx, "bob", "alice", ids[4], 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "e", "f", "g"}, contents(win.Messages))
	assert.Equal(t, 2, win.TargetIndex)
	assert.True(t, win.HasOlder)
	assert.True(t, win.HasNewer)

	win, err = f.messages.GetAround(ctx, "bob", "alice", ids[9], 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "i", "j"}, contents(win.Messages))
	assert.False(t, win.HasNewer)

	_, err = f.messages.GetAround(ctx, "carol", "alice", ids[4], 2, 2)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestReplyPreviewResolvedOutsidePage(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	orig := f.send(t, "alice", "bob", "original")
	for i := 0; i < 3; i++ {
		f.send(t, "bob", "alice", "filler")
	}
	reply, err := f.messages.Save(ctx, models.NewMessage{SenderID: "bob", ReceiverID: "alice", Content: "answer", ReplyToID: &orig})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "original", reply.ReplyTo.Content)

	page, err := f.messages.GetBetween(ctx, "alice", "bob", 1, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.NotNil(t, page[0].ReplyTo)
	assert.Equal(t, orig, page[0].ReplyTo.ID)

	// edits to the target show through
	_, err = f.messages.Edit(ctx, orig, "alice", "original (edited)")
	require.NoError(t, err)
	page, err = f.messages.GetBetween(ctx, "alice", "bob", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "original (edited)", page[0].ReplyTo.Content)

	_, err = f.messages.Save(ctx, models.NewMessage{SenderID: "bob", ReceiverID: "carol", Content: "x", ReplyToID: &orig})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestSearchAndMedia(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()
	f.send(t, "alice", "bob", "Lunch at noon?")
	f.send(t, "bob", "alice", "sure, LUNCH works")
	f.send(t, "alice", "carol", "lunch tomorrow")
	gone := f.send(t, "alice", "bob", "lunch secret")
	_, err := f.messages.Delete(ctx, gone, "alice", true)
	require.NoError(t, err)
	f.send(t, "alice", "bob", "100% sure")

	_, err = f.messages.Save(ctx, models.NewMessage{SenderID: "alice", ReceiverID: "bob", Content: "/uploads/images/a.png", Type: models.TypeImage, Caption: "lunch pic"})
	require.NoError(t, err)
	_, err = f.messages.Save(ctx, models.NewMessage{SenderID: "bob", ReceiverID: "alice", Content: "/uploads/files/r.pdf", Type: models.TypeFile, FileName: "r.pdf", FileSize: 42})
	require.NoError(t, err)

	peer := "bob"
	found, err := f.messages.Search(ctx, "alice", &peer, "lunch", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/images/a.png", "sure, LUNCH works", "Lunch at noon?"}, contents(found))

	global, err := f.messages.Search(ctx, "alice", nil, "lunch", 10)
	require.NoError(t, err)
	assert.Len(t, global, 4)

	literal, err := f.messages.Search(ctx, "alice", &peer, "100%", 10)
	require.NoError(t, err)
	assert.Len(t, literal, 1)

	media, err := f.messages.Media(ctx, "alice", "bob", nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, media, 2)

	images, err := f.messages.Media(ctx, "alice", "bob", []models.MessageType{models.TypeImage}, 10, 0)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "lunch pic", images[0].Caption)
}

func TestConversations(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()
	f.send(t, "bob", "alice", "hey")
	f.send(t, "carol", "alice", "yo")
	f.send(t, "bob", "alice", "again")
	last := f.send(t, "alice", "carol", "latest")

	convs, err := f.messages.Conversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "carol", convs[0].PeerID)
	assert.Equal(t, last, convs[0].LastMessage.ID)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Equal(t, "bob", convs[1].PeerID)
	assert.Equal(t, 2, convs[1].UnreadCount)

	none, err := f.messages.Conversations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConversationsUnreadSkipsHiddenMessages(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	f.send(t, "bob", "alice", "visible")
	hidden := f.send(t, "bob", "alice", "hidden")

	_, err := f.messages.Delete(ctx, hidden, "alice", false)
	require.NoError(t, err)

	convs, err := f.messages.Conversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)

	// bob never hid anything, and his own sends are not unread for him
	convs, err = f.messages.Conversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].UnreadCount)
}
