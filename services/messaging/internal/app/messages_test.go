package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"snapstreak/pkg/cache"
	"snapstreak/pkg/domain"
	"snapstreak/pkg/store"
)

func newTestApp(t *testing.T) (*Messages, *Friends, *store.MemoryStore) {
	t.Helper()
	srv := miniredis.RunT(t)
	c := cache.NewRedisCache(srv.Addr(), "")
	t.Cleanup(func() { _ = c.Close() })

	st := store.NewMemoryStore()
	friends := NewFriends(st)
	return NewMessages(st, c, friends, nil), friends, st
}

func befriend(t *testing.T, friends *Friends, a, b string) {
	t.Helper()
	if _, err := friends.Create(a, CreateFriendRequest{FriendID: b}); err != nil {
		t.Fatalf("create friend request: %v", err)
	}
	if _, err := friends.Accept(b, a); err != nil {
		t.Fatalf("accept friend request: %v", err)
	}
}

func mustSend(t *testing.T, m *Messages, sender, receiver, content string) domain.Message {
	t.Helper()
	msg, err := m.Send(context.Background(), sender, SendMessageRequest{
		ReceiverID: receiver,
		Content:    content,
	})
	if err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
	// Creation times order threads; keep them strictly increasing.
	time.Sleep(time.Millisecond)
	return msg
}

func TestSendRequiresAcceptedFriendship(t *testing.T) {
	msgs, friends, st := newTestApp(t)
	ctx := context.Background()

	_, err := msgs.Send(ctx, "u1", SendMessageRequest{ReceiverID: "u2", Content: "hi"})
	if !errors.Is(err, ErrNotFriends) {
		t.Fatalf("expected ErrNotFriends, got: %v", err)
	}

	if _, err := friends.Create("u1", CreateFriendRequest{FriendID: "u2"}); err != nil {
		t.Fatalf("create request: %v", err)
	}
	_, err = msgs.Send(ctx, "u1", SendMessageRequest{ReceiverID: "u2", Content: "hi"})
	if !errors.Is(err, ErrRequestPending) {
		t.Fatalf("expected ErrRequestPending, got: %v", err)
	}

	if _, err := friends.Accept("u2", "u1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := msgs.Send(ctx, "u1", SendMessageRequest{ReceiverID: "u2", Content: "hi"}); err != nil {
		t.Fatalf("send between friends: %v", err)
	}

	edge, _, _ := st.GetFriendship("u1", "u2")
	edge.IsBlocked = true
	if err := st.SaveFriendship(edge); err != nil {
		t.Fatalf("block edge: %v", err)
	}
	_, err = msgs.Send(ctx, "u1", SendMessageRequest{ReceiverID: "u2", Content: "hi"})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got: %v", err)
	}
}

func TestSendValidatesInput(t *testing.T) {
	msgs, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := msgs.Send(ctx, "u1", SendMessageRequest{Content: "hi"}); !errors.Is(err, ErrReceiverMissing) {
		t.Fatalf("expected ErrReceiverMissing, got: %v", err)
	}
	if _, err := msgs.Send(ctx, "u1", SendMessageRequest{ReceiverID: "u1", Content: "hi"}); !errors.Is(err, ErrSelfMessage) {
		t.Fatalf("expected ErrSelfMessage, got: %v", err)
	}
	if _, err := msgs.Send(ctx, "u1", SendMessageRequest{ReceiverID: "u2"}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got: %v", err)
	}
}

func TestListThreadSeesWritesThroughCache(t *testing.T) {
	msgs, friends, _ := newTestApp(t)
	ctx := context.Background()
	befriend(t, friends, "u1", "u2")

	mustSend(t, msgs, "u1", "u2", "first")
	if got := msgs.ListThread(ctx, "u1", "u2", 1, 20); got.Total != 1 {
		t.Fatalf("expected 1 message, got %d", got.Total)
	}

	// The page is cached now; the next send has to invalidate it.
	mustSend(t, msgs, "u2", "u1", "second")
	got := msgs.ListThread(ctx, "u1", "u2", 1, 20)
	if got.Total != 2 || len(got.Data) != 2 {
		t.Fatalf("expected 2 messages after invalidation, got total=%d len=%d", got.Total, len(got.Data))
	}
	if got.Data[0].Content != "second" {
		t.Fatalf("expected newest first, got %q", got.Data[0].Content)
	}

	// Both participants read the same canonical page.
	mirror := msgs.ListThread(ctx, "u2", "u1", 1, 20)
	if mirror.Total != 2 || mirror.Data[0].ID != got.Data[0].ID {
		t.Fatalf("participants disagree on the thread page")
	}
}

func TestListThreadPagination(t *testing.T) {
	msgs, friends, _ := newTestApp(t)
	ctx := context.Background()
	befriend(t, friends, "u1", "u2")

	for _, content := range []string{"a", "b", "c", "d", "e"} {
		mustSend(t, msgs, "u1", "u2", content)
	}

	page := msgs.ListThread(ctx, "u1", "u2", 2, 2)
	if page.Total != 5 || len(page.Data) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", page.Total, len(page.Data))
	}
	if page.Data[0].Content != "c" || page.Data[1].Content != "b" {
		t.Fatalf("unexpected page content: %q, %q", page.Data[0].Content, page.Data[1].Content)
	}
}

type failingThreadStore struct {
	*store.MemoryStore
}

func (failingThreadStore) ListThread(store.ThreadFilter, store.Page) ([]domain.Message, int, error) {
	return nil, 0, errors.New("storage down")
}

func TestThreadReadsDegradeToEmpty(t *testing.T) {
	srv := miniredis.RunT(t)
	c := cache.NewRedisCache(srv.Addr(), "")
	t.Cleanup(func() { _ = c.Close() })

	st := failingThreadStore{store.NewMemoryStore()}
	msgs := NewMessages(st, c, NewFriends(st), nil)
	ctx := context.Background()

	page := msgs.ListThread(ctx, "u1", "u2", 1, 20)
	if page.Total != 0 || page.Data == nil || len(page.Data) != 0 {
		t.Fatalf("expected empty page, got %+v", page)
	}
	conv := msgs.Conversations(ctx, "u1", 1, 10)
	if conv.Total != 0 || conv.Data == nil || len(conv.Data) != 0 {
		t.Fatalf("expected empty conversation page, got %+v", conv)
	}
}

func TestConversationsIncludeQuietFriends(t *testing.T) {
	msgs, friends, _ := newTestApp(t)
	ctx := context.Background()
	befriend(t, friends, "u1", "u2")
	befriend(t, friends, "u1", "u3")

	mustSend(t, msgs, "u2", "u1", "hello")

	conv := msgs.Conversations(ctx, "u1", 1, 10)
	if conv.Total != 2 {
		t.Fatalf("expected 2 entries, got %d", conv.Total)
	}

	byUser := map[string]domain.ConversationEntry{}
	for _, e := range conv.Data {
		byUser[e.UserID] = e
	}
	if e := byUser["u2"]; e.LastMessage.Content != "hello" || e.UnreadCount != 1 {
		t.Fatalf("unexpected u2 entry: %+v", e)
	}
	if e := byUser["u3"]; e.LastMessage.Content != "Start the conversation" || e.LastMessage.ID != "" || e.UnreadCount != 0 {
		t.Fatalf("unexpected placeholder entry: %+v", e)
	}
}

func TestMarkAsReadClearsUnread(t *testing.T) {
	msgs, friends, _ := newTestApp(t)
	ctx := context.Background()
	befriend(t, friends, "u1", "u2")

	mustSend(t, msgs, "u2", "u1", "one")
	mustSend(t, msgs, "u2", "u1", "two")
	mustSend(t, msgs, "u2", "u1", "three")

	// Unread is a 0/1 indicator on the latest message, never a tally.
	conv := msgs.Conversations(ctx, "u1", 1, 10)
	if conv.Data[0].UnreadCount != 1 {
		t.Fatalf("expected unread indicator 1, got %d", conv.Data[0].UnreadCount)
	}

	if err := msgs.MarkAsRead(ctx, "u1", "u2"); err != nil {
		t.Fatalf("mark as read: %v", err)
	}
	conv = msgs.Conversations(ctx, "u1", 1, 10)
	if conv.Data[0].UnreadCount != 0 || !conv.Data[0].LastMessage.IsRead {
		t.Fatalf("expected unread cleared, got %+v", conv.Data[0])
	}

	// Marking an already-read thread again is a no-op.
	if err := msgs.MarkAsRead(ctx, "u1", "u2"); err != nil {
		t.Fatalf("repeat mark as read: %v", err)
	}
	again := msgs.Conversations(ctx, "u1", 1, 10)
	if again.Data[0].UnreadCount != 0 || !again.Data[0].LastMessage.IsRead {
		t.Fatalf("repeat mark as read changed state: %+v", again.Data[0])
	}
}

func TestGetEnforcesParticipants(t *testing.T) {
	msgs, friends, _ := newTestApp(t)
	ctx := context.Background()
	befriend(t, friends, "u1", "u2")

	sent := mustSend(t, msgs, "u1", "u2", "secret")

	if _, err := msgs.Get(ctx, "u2", sent.ID); err != nil {
		t.Fatalf("receiver read failed: %v", err)
	}
	if _, err := msgs.Get(ctx, "u3", sent.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got: %v", err)
	}
	if _, err := msgs.Get(ctx, "u1", "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got: %v", err)
	}
}

func TestUpdateReadReservedForReceiver(t *testing.T) {
	msgs, friends, _ := newTestApp(t)
	ctx := context.Background()
	befriend(t, friends, "u1", "u2")

	sent := mustSend(t, msgs, "u1", "u2", "hi")
	read := true

	if _, err := msgs.Update(ctx, "u1", sent.ID, UpdateMessageRequest{IsRead: &read}); !errors.Is(err, ErrNotReceiver) {
		t.Fatalf("expected ErrNotReceiver for sender, got: %v", err)
	}
	updated, err := msgs.Update(ctx, "u2", sent.ID, UpdateMessageRequest{IsRead: &read})
	if err != nil {
		t.Fatalf("receiver update: %v", err)
	}
	if !updated.IsRead {
		t.Fatalf("expected message marked read")
	}
}

func TestRemoveHidesMessage(t *testing.T) {
	msgs, friends, st := newTestApp(t)
	ctx := context.Background()
	befriend(t, friends, "u1", "u2")

	sent := mustSend(t, msgs, "u1", "u2", "oops")
	mustSend(t, msgs, "u1", "u2", "kept")

	if err := msgs.Remove(ctx, "u1", sent.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	page := msgs.ListThread(ctx, "u1", "u2", 1, 20)
	if page.Total != 1 || page.Data[0].Content != "kept" {
		t.Fatalf("expected deleted message hidden, got %+v", page)
	}
	if _, err := msgs.Get(ctx, "u1", sent.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound after delete, got: %v", err)
	}

	// Soft delete: the row survives in storage, flagged.
	stored, ok, err := st.GetMessage(sent.ID)
	if err != nil || !ok {
		t.Fatalf("deleted row gone from storage: ok=%v err=%v", ok, err)
	}
	if !stored.IsDeleted || stored.Content != "oops" {
		t.Fatalf("unexpected stored row after delete: %+v", stored)
	}
}
