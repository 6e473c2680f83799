package domain

import "time"

// User is the minimal projection of an account this backend needs. Account
// management and authentication live in another service.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a direct message between two users. Messages are soft-deleted:
// IsDeleted hides them from thread reads but the row stays in storage.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content,omitempty"`
	ImageID    string    `json:"imageId,omitempty"`
	IsRead     bool      `json:"isRead"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Friendship is a directed edge of the friends graph. A mutual friendship is
// two accepted edges, one per direction; acceptance is responsible for
// materializing the reverse edge.
type Friendship struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	FriendID   string    `json:"friendId"`
	IsAccepted bool      `json:"isAccepted"`
	IsBlocked  bool      `json:"isBlocked"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ConversationEntry is a derived view: the latest message exchanged with one
// counterpart plus an unread indicator. It is never persisted.
type ConversationEntry struct {
	UserID      string      `json:"userId"`
	LastMessage LastMessage `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
}

// LastMessage is the representative message of a conversation entry. ID is
// empty for synthetic entries of friends without message history.
type LastMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}

// Challenge is one user's daily photo challenge. Day is the server-local
// calendar day (YYYY-MM-DD); at most one challenge exists per (user, day).
type Challenge struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Class         string    `json:"class"`
	Description   string    `json:"description"`
	Day           string    `json:"day"`
	IsCompleted   bool      `json:"isCompleted"`
	CompletedAt   time.Time `json:"completedAt,omitzero"`
	PhotoID       string    `json:"photoId,omitempty"`
	Score         float64   `json:"score"`
	DetectedClass string    `json:"detectedClass,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UserStreak tracks consecutive-day challenge completion per user.
type UserStreak struct {
	UserID          string    `json:"userId"`
	CurrentStreak   int       `json:"currentStreak"`
	HighestStreak   int       `json:"highestStreak"`
	TotalCompleted  int       `json:"totalCompleted"`
	TotalAttempted  int       `json:"totalAttempted"`
	LastCompletedAt time.Time `json:"lastCompletedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Achievement is an unlockable badge. Code is unique per user and unlocking
// is idempotent.
type Achievement struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsUnlocked  bool      `json:"isUnlocked"`
	UnlockedAt  time.Time `json:"unlockedAt,omitzero"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Prediction is the classifier's top detection for a submitted photo.
// Score is scaled to 0-100.
type Prediction struct {
	Class   string  `json:"class"`
	ClassID int     `json:"classId"`
	Score   float64 `json:"score"`
}
