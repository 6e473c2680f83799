package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"snapstreak/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local
// development; the semantics mirror GormStore.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	email        map[string]string // email -> user ID
	messages     map[string]domain.Message
	msgOrder     []string
	friendships  map[string]domain.Friendship // key: userID|friendID
	challenges   map[string]domain.Challenge
	chOrder      []string
	streaks      map[string]domain.UserStreak
	achievements map[string]domain.Achievement // key: userID|code
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]domain.User),
		email:        make(map[string]string),
		messages:     make(map[string]domain.Message),
		friendships:  make(map[string]domain.Friendship),
		challenges:   make(map[string]domain.Challenge),
		streaks:      make(map[string]domain.UserStreak),
		achievements: make(map[string]domain.Achievement),
	}
}

func edgeKey(userID, friendID string) string {
	return userID + "|" + friendID
}

// SaveUser registers or updates the user projection.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[strings.ToLower(u.Email)] = u.ID
	return nil
}

// GetUserIDByEmail resolves an email to a user ID.
func (m *MemoryStore) GetUserIDByEmail(email string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[strings.ToLower(email)]
	return id, ok, nil
}

// SaveMessage records a message.
func (m *MemoryStore) SaveMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messages[msg.ID]; !exists {
		m.msgOrder = append(m.msgOrder, msg.ID)
	}
	m.messages[msg.ID] = msg
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MemoryStore) GetMessage(id string) (domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	return msg, ok, nil
}

func (f ThreadFilter) matches(msg domain.Message) bool {
	if f.ExcludeDeleted && msg.IsDeleted {
		return false
	}
	if f.OtherID != "" {
		return (msg.SenderID == f.UserID && msg.ReceiverID == f.OtherID) ||
			(msg.SenderID == f.OtherID && msg.ReceiverID == f.UserID)
	}
	return msg.SenderID == f.UserID || msg.ReceiverID == f.UserID
}

// ListThread returns matching messages newest-first plus the total count.
func (m *MemoryStore) ListThread(f ThreadFilter, p Page) ([]domain.Message, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]domain.Message, 0)
	for _, id := range m.msgOrder {
		msg := m.messages[id]
		if f.matches(msg) {
			matched = append(matched, msg)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if p.Offset > 0 {
		if p.Offset >= total {
			return []domain.Message{}, total, nil
		}
		matched = matched[p.Offset:]
	}
	if p.Limit > 0 && len(matched) > p.Limit {
		matched = matched[:p.Limit]
	}
	return matched, total, nil
}

// MarkMessagesRead flips IsRead on every unread message senderID -> receiverID.
func (m *MemoryStore) MarkMessagesRead(receiverID, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, msg := range m.messages {
		if msg.SenderID == senderID && msg.ReceiverID == receiverID && !msg.IsRead {
			msg.IsRead = true
			msg.UpdatedAt = time.Now().UTC()
			m.messages[id] = msg
		}
	}
	return nil
}

// UpdateMessage applies a partial update.
func (m *MemoryStore) UpdateMessage(id string, patch MessagePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return ErrNotFound
	}
	if patch.IsRead != nil {
		msg.IsRead = *patch.IsRead
	}
	if patch.IsDeleted != nil {
		msg.IsDeleted = *patch.IsDeleted
	}
	msg.UpdatedAt = time.Now().UTC()
	m.messages[id] = msg
	return nil
}

// SaveFriendship stores or updates a directed edge.
func (m *MemoryStore) SaveFriendship(f domain.Friendship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := edgeKey(f.UserID, f.FriendID)
	if existing, ok := m.friendships[key]; ok {
		f.ID = existing.ID
		f.CreatedAt = existing.CreatedAt
	}
	m.friendships[key] = f
	return nil
}

// GetFriendship looks up the exact directed edge.
func (m *MemoryStore) GetFriendship(userID, friendID string) (domain.Friendship, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.friendships[edgeKey(userID, friendID)]
	return f, ok, nil
}

// GetFriendshipBetween looks the edge up in either direction.
func (m *MemoryStore) GetFriendshipBetween(a, b string) (domain.Friendship, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.friendships[edgeKey(a, b)]; ok {
		return f, true, nil
	}
	f, ok := m.friendships[edgeKey(b, a)]
	return f, ok, nil
}

func (f FriendshipFilter) matches(edge domain.Friendship) bool {
	if f.EitherDirection && f.UserID != "" {
		if edge.UserID != f.UserID && edge.FriendID != f.UserID {
			return false
		}
	} else {
		if f.UserID != "" && edge.UserID != f.UserID {
			return false
		}
		if f.FriendID != "" && edge.FriendID != f.FriendID {
			return false
		}
	}
	if f.IsAccepted != nil && edge.IsAccepted != *f.IsAccepted {
		return false
	}
	if f.IsBlocked != nil && edge.IsBlocked != *f.IsBlocked {
		return false
	}
	return true
}

// ListFriendships returns matching edges newest-first plus the total count.
func (m *MemoryStore) ListFriendships(f FriendshipFilter, p Page) ([]domain.Friendship, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]domain.Friendship, 0)
	for _, edge := range m.friendships {
		if f.matches(edge) {
			matched = append(matched, edge)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if p.Offset > 0 {
		if p.Offset >= total {
			return []domain.Friendship{}, total, nil
		}
		matched = matched[p.Offset:]
	}
	if p.Limit > 0 && len(matched) > p.Limit {
		matched = matched[:p.Limit]
	}
	return matched, total, nil
}

// AcceptFriendship accepts the inbound edge and materializes the reverse one.
func (m *MemoryStore) AcceptFriendship(accepterID, requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	inbound, ok := m.friendships[edgeKey(requesterID, accepterID)]
	if !ok {
		return ErrNotFound
	}
	inbound.IsAccepted = true
	inbound.UpdatedAt = now
	m.friendships[edgeKey(requesterID, accepterID)] = inbound

	reverseKey := edgeKey(accepterID, requesterID)
	reverse, ok := m.friendships[reverseKey]
	if !ok {
		reverse = domain.Friendship{
			ID:        uuid.NewString(),
			UserID:    accepterID,
			FriendID:  requesterID,
			CreatedAt: now,
		}
	}
	reverse.IsAccepted = true
	reverse.UpdatedAt = now
	m.friendships[reverseKey] = reverse
	return nil
}

// DeleteFriendship removes both directions of the edge between a and b.
func (m *MemoryStore) DeleteFriendship(a, b string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.friendships, edgeKey(a, b))
	delete(m.friendships, edgeKey(b, a))
	return nil
}

// SaveChallenge stores a challenge.
func (m *MemoryStore) SaveChallenge(c domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.challenges[c.ID]; !exists {
		m.chOrder = append(m.chOrder, c.ID)
	}
	m.challenges[c.ID] = c
	return nil
}

// GetChallenge retrieves a challenge by ID.
func (m *MemoryStore) GetChallenge(id string) (domain.Challenge, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.challenges[id]
	return c, ok, nil
}

// GetChallengeForDay returns the user's challenge for the calendar day.
func (m *MemoryStore) GetChallengeForDay(userID, day string) (domain.Challenge, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.chOrder {
		c := m.challenges[id]
		if c.UserID == userID && c.Day == day {
			return c, true, nil
		}
	}
	return domain.Challenge{}, false, nil
}

// GetFirstChallengeOfDay returns the earliest challenge minted on the day.
func (m *MemoryStore) GetFirstChallengeOfDay(day string) (domain.Challenge, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.chOrder {
		c := m.challenges[id]
		if c.Day == day {
			return c, true, nil
		}
	}
	return domain.Challenge{}, false, nil
}

// ListChallenges returns the user's challenges newest-first.
func (m *MemoryStore) ListChallenges(userID string) ([]domain.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Challenge, 0)
	for i := len(m.chOrder) - 1; i >= 0; i-- {
		c := m.challenges[m.chOrder[i]]
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	return res, nil
}

// CompleteChallenge conditionally completes a pending challenge.
func (m *MemoryStore) CompleteChallenge(id string, res SubmissionResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok || c.IsCompleted {
		return false, nil
	}
	completedAt := res.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	c.IsCompleted = true
	c.CompletedAt = completedAt
	c.Score = res.Score
	c.DetectedClass = res.DetectedClass
	c.PhotoID = res.PhotoID
	c.UpdatedAt = time.Now().UTC()
	m.challenges[id] = c
	return true, nil
}

// RecordAttempt persists a failed submission's score without completing.
func (m *MemoryStore) RecordAttempt(id string, res SubmissionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok || c.IsCompleted {
		return nil
	}
	c.Score = res.Score
	c.DetectedClass = res.DetectedClass
	c.PhotoID = res.PhotoID
	c.UpdatedAt = time.Now().UTC()
	m.challenges[id] = c
	return nil
}

// GetUserStreak returns the user's streak record.
func (m *MemoryStore) GetUserStreak(userID string) (domain.UserStreak, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streaks[userID]
	return s, ok, nil
}

// SaveUserStreak stores or updates the user's streak record.
func (m *MemoryStore) SaveUserStreak(s domain.UserStreak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[s.UserID] = s
	return nil
}

// GetAchievement returns the user's achievement by code.
func (m *MemoryStore) GetAchievement(userID, code string) (domain.Achievement, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.achievements[edgeKey(userID, code)]
	return a, ok, nil
}

// SaveAchievement stores or updates an achievement.
func (m *MemoryStore) SaveAchievement(a domain.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := edgeKey(a.UserID, a.Code)
	if existing, ok := m.achievements[key]; ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	}
	m.achievements[key] = a
	return nil
}

// ListAchievements returns the user's unlocked achievements.
func (m *MemoryStore) ListAchievements(userID string) ([]domain.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Achievement, 0)
	for _, a := range m.achievements {
		if a.UserID == userID && a.IsUnlocked {
			res = append(res, a)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].UnlockedAt.Before(res[j].UnlockedAt)
	})
	return res, nil
}
