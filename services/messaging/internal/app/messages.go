package app

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"snapstreak/pkg/cache"
	"snapstreak/pkg/domain"
	"snapstreak/pkg/events"
	"snapstreak/pkg/store"
)

const (
	defaultThreadLimit       = 20
	defaultConversationLimit = 10
)

// Messages implements direct messaging with a cache-aside read path. Every
// mutation invalidates the affected cache prefixes immediately before and
// immediately after the write, so a reader racing the write can repopulate
// stale data for at most the window between the two passes.
type Messages struct {
	store   store.Store
	cache   cache.Cache
	friends *Friends
	events  *events.Publisher
}

func NewMessages(st store.Store, c cache.Cache, friends *Friends, pub *events.Publisher) *Messages {
	return &Messages{store: st, cache: c, friends: friends, events: pub}
}

// SendMessageRequest carries the body of one outgoing message. At least one
// of Content and ImageID must be set.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	ImageID    string `json:"imageId"`
}

// ThreadPage is one page of a message thread, newest first.
type ThreadPage struct {
	Data  []domain.Message `json:"data"`
	Total int              `json:"total"`
}

// ConversationPage is one page of the conversation list, newest first.
type ConversationPage struct {
	Data  []domain.ConversationEntry `json:"data"`
	Total int                        `json:"total"`
}

// Send persists a message from senderID after checking the friendship gate:
// the pair must share an accepted, unblocked edge.
func (m *Messages) Send(ctx context.Context, senderID string, req SendMessageRequest) (domain.Message, error) {
	if req.ReceiverID == "" {
		return domain.Message{}, ErrReceiverMissing
	}
	if req.ReceiverID == senderID {
		return domain.Message{}, ErrSelfMessage
	}
	if req.Content == "" && req.ImageID == "" {
		return domain.Message{}, ErrEmptyMessage
	}

	edge, ok, err := m.friends.Between(senderID, req.ReceiverID)
	if err != nil {
		return domain.Message{}, err
	}
	switch {
	case !ok:
		return domain.Message{}, ErrNotFriends
	case edge.IsBlocked:
		return domain.Message{}, ErrBlocked
	case !edge.IsAccepted:
		return domain.Message{}, ErrRequestPending
	}

	m.invalidatePair(ctx, senderID, req.ReceiverID)

	now := time.Now().UTC()
	msg := domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		ImageID:    req.ImageID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.SaveMessage(msg); err != nil {
		return domain.Message{}, err
	}

	m.invalidatePair(ctx, senderID, req.ReceiverID)
	m.events.Publish(ctx, events.MessageSent, msg)
	return msg, nil
}

// ListThread returns one page of the thread between userID and otherID, or of
// all of userID's messages when otherID is empty. Read failures degrade to an
// empty page; messaging reads never hard-fail.
func (m *Messages) ListThread(ctx context.Context, userID, otherID string, page, limit int) ThreadPage {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultThreadLimit
	}
	key := cache.UserMessagesKey(userID, page, limit)
	if otherID != "" {
		key = cache.ThreadKey(userID, otherID, page, limit)
	}

	var cached ThreadPage
	if m.cache.Get(ctx, key, &cached) {
		return cached
	}

	msgs, total, err := m.store.ListThread(store.ThreadFilter{
		UserID:         userID,
		OtherID:        otherID,
		ExcludeDeleted: true,
	}, store.Page{Offset: (page - 1) * limit, Limit: limit})
	if err != nil {
		slog.Warn("thread read failed, serving empty page", "user", userID, "err", err)
		return ThreadPage{Data: []domain.Message{}}
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	result := ThreadPage{Data: msgs, Total: total}
	m.cache.Set(ctx, key, result, cache.DefaultTTL)
	return result
}

// Conversations returns one page of userID's conversation list: the latest
// message per counterpart, newest first, with unread indicators. Accepted
// friends without message history appear as synthetic entries so new
// friendships are visible before the first message.
func (m *Messages) Conversations(ctx context.Context, userID string, page, limit int) ConversationPage {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultConversationLimit
	}
	key := cache.ConversationsKey(userID, page, limit)

	var cached ConversationPage
	if m.cache.Get(ctx, key, &cached) {
		return cached
	}

	msgs, _, err := m.store.ListThread(store.ThreadFilter{
		UserID:         userID,
		ExcludeDeleted: true,
	}, store.Page{})
	if err != nil {
		slog.Warn("conversation read failed, serving empty page", "user", userID, "err", err)
		return ConversationPage{Data: []domain.ConversationEntry{}}
	}

	entries := make([]domain.ConversationEntry, 0)
	seen := make(map[string]bool)
	for _, msg := range msgs { // newest first, so the first hit per pair wins
		other := msg.SenderID
		if other == userID {
			other = msg.ReceiverID
		}
		if seen[other] {
			continue
		}
		entry := domain.ConversationEntry{
			UserID: other,
			LastMessage: domain.LastMessage{
				ID:        msg.ID,
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
				IsRead:    msg.IsRead,
			},
		}
		// Unread is an indicator on the latest message, not a tally.
		if msg.ReceiverID == userID && !msg.IsRead {
			entry.UnreadCount = 1
		}
		seen[other] = true
		entries = append(entries, entry)
	}

	edges, err := m.friends.FriendsForConversations(userID)
	if err != nil {
		slog.Warn("friend list read failed, conversations show history only", "user", userID, "err", err)
	}
	for _, edge := range edges {
		other := edge.FriendID
		if other == userID {
			other = edge.UserID
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		entries = append(entries, domain.ConversationEntry{
			UserID: other,
			LastMessage: domain.LastMessage{
				Content:   "Start the conversation",
				CreatedAt: edge.UpdatedAt,
				IsRead:    true,
			},
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastMessage.CreatedAt.After(entries[j].LastMessage.CreatedAt)
	})

	total := len(entries)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	result := ConversationPage{Data: entries[start:end], Total: total}
	m.cache.Set(ctx, key, result, cache.DefaultTTL)
	return result
}

// MarkAsRead marks every unread message senderID -> readerID as read.
func (m *Messages) MarkAsRead(ctx context.Context, readerID, senderID string) error {
	m.invalidatePair(ctx, readerID, senderID)
	if err := m.store.MarkMessagesRead(readerID, senderID); err != nil {
		return err
	}
	m.invalidatePair(ctx, readerID, senderID)
	m.events.Publish(ctx, events.MessagesRead, map[string]string{
		"readerId": readerID,
		"senderId": senderID,
	})
	return nil
}

// Get returns one message. Only its participants may read it.
func (m *Messages) Get(ctx context.Context, userID, id string) (domain.Message, error) {
	key := cache.MessageKey(id)

	var msg domain.Message
	if !m.cache.Get(ctx, key, &msg) {
		stored, ok, err := m.store.GetMessage(id)
		if err != nil {
			return domain.Message{}, err
		}
		if !ok || stored.IsDeleted {
			return domain.Message{}, ErrMessageNotFound
		}
		msg = stored
		m.cache.Set(ctx, key, msg, cache.DefaultTTL)
	}

	if msg.SenderID != userID && msg.ReceiverID != userID {
		return domain.Message{}, ErrNotParticipant
	}
	return msg, nil
}

// UpdateMessageRequest is a partial message update. Nil fields stay as-is.
type UpdateMessageRequest struct {
	IsRead    *bool `json:"isRead"`
	IsDeleted *bool `json:"isDeleted"`
}

// Update applies a partial update. Marking as read is reserved for the
// receiver; either participant may soft-delete.
func (m *Messages) Update(ctx context.Context, userID, id string, req UpdateMessageRequest) (domain.Message, error) {
	msg, err := m.Get(ctx, userID, id)
	if err != nil {
		return domain.Message{}, err
	}
	if req.IsRead != nil && msg.ReceiverID != userID {
		return domain.Message{}, ErrNotReceiver
	}

	m.invalidateMessage(ctx, msg)
	if err := m.store.UpdateMessage(id, store.MessagePatch{
		IsRead:    req.IsRead,
		IsDeleted: req.IsDeleted,
	}); err != nil {
		return domain.Message{}, err
	}
	m.invalidateMessage(ctx, msg)

	updated, ok, err := m.store.GetMessage(id)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		return domain.Message{}, ErrMessageNotFound
	}
	return updated, nil
}

// Remove soft-deletes a message on behalf of userID.
func (m *Messages) Remove(ctx context.Context, userID, id string) error {
	deleted := true
	_, err := m.Update(ctx, userID, id, UpdateMessageRequest{IsDeleted: &deleted})
	return err
}

// invalidatePair drops every cached view a new message or read-state change
// between a and b could have gone stale: both conversation lists, the shared
// thread, and both all-messages views. The first default-size pages are
// deleted exactly before the scans so the hottest keys never outlive a slow
// pattern pass.
func (m *Messages) invalidatePair(ctx context.Context, a, b string) {
	m.cache.DeleteExact(ctx,
		cache.ConversationsKey(a, 1, defaultConversationLimit),
		cache.ConversationsKey(b, 1, defaultConversationLimit),
		cache.ThreadKey(a, b, 1, defaultThreadLimit),
	)
	m.cache.DeletePattern(ctx, cache.ConversationsPrefix(a))
	m.cache.DeletePattern(ctx, cache.ConversationsPrefix(b))
	m.cache.DeletePattern(ctx, cache.ThreadPrefix(a, b))
	m.cache.DeletePattern(ctx, cache.UserMessagesPrefix(a))
	m.cache.DeletePattern(ctx, cache.UserMessagesPrefix(b))
}

func (m *Messages) invalidateMessage(ctx context.Context, msg domain.Message) {
	m.cache.Delete(ctx, cache.MessageKey(msg.ID))
	m.invalidatePair(ctx, msg.SenderID, msg.ReceiverID)
}
