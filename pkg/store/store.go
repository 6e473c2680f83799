package store

import (
	"time"

	"snapstreak/pkg/domain"
)

// Page bounds a list query. Limit <= 0 means no limit.
type Page struct {
	Offset int
	Limit  int
}

// ThreadFilter selects direct messages. With OtherID set it matches messages
// exchanged between the two users in either direction; without it, every
// message UserID participates in.
type ThreadFilter struct {
	UserID         string
	OtherID        string
	ExcludeDeleted bool
}

// FriendshipFilter selects friendship edges. EitherDirection matches edges
// where UserID appears on either end.
type FriendshipFilter struct {
	UserID          string
	FriendID        string
	EitherDirection bool
	IsAccepted      *bool
	IsBlocked       *bool
}

// MessagePatch is a partial message update. Nil fields are left untouched.
type MessagePatch struct {
	IsRead    *bool
	IsDeleted *bool
}

// SubmissionResult is the scored outcome persisted on a challenge.
type SubmissionResult struct {
	Score         float64
	DetectedClass string
	PhotoID       string
	CompletedAt   time.Time
}

// Store defines persistence operations for messages, the friends graph, and
// the challenge/streak engine. Implementations hold no business logic.
type Store interface {
	// users (read-mostly projection; accounts are owned elsewhere)
	SaveUser(domain.User) error
	GetUserIDByEmail(email string) (string, bool, error)

	// messages
	SaveMessage(domain.Message) error
	GetMessage(id string) (domain.Message, bool, error)
	// ListThread returns matching messages newest-first plus the total count.
	ListThread(f ThreadFilter, p Page) ([]domain.Message, int, error)
	// MarkMessagesRead flips IsRead on every unread message senderID ->
	// receiverID. Safe to call repeatedly.
	MarkMessagesRead(receiverID, senderID string) error
	UpdateMessage(id string, patch MessagePatch) error

	// friendships
	SaveFriendship(domain.Friendship) error
	GetFriendship(userID, friendID string) (domain.Friendship, bool, error)
	// GetFriendshipBetween looks the edge up in either direction.
	GetFriendshipBetween(a, b string) (domain.Friendship, bool, error)
	ListFriendships(f FriendshipFilter, p Page) ([]domain.Friendship, int, error)
	// AcceptFriendship accepts the requester -> accepter edge and creates or
	// accepts the reverse edge as one transaction, so that afterwards both
	// directions are accepted.
	AcceptFriendship(accepterID, requesterID string) error
	// DeleteFriendship removes both directions of the edge between a and b.
	DeleteFriendship(a, b string) error

	// challenges
	SaveChallenge(domain.Challenge) error
	GetChallenge(id string) (domain.Challenge, bool, error)
	GetChallengeForDay(userID, day string) (domain.Challenge, bool, error)
	// GetFirstChallengeOfDay returns the earliest-created challenge of the
	// given calendar day across all users.
	GetFirstChallengeOfDay(day string) (domain.Challenge, bool, error)
	ListChallenges(userID string) ([]domain.Challenge, error)
	// CompleteChallenge marks the challenge completed only if it is not
	// completed yet, reporting whether this call won the update. Concurrent
	// duplicate submissions therefore credit the streak at most once.
	CompleteChallenge(id string, res SubmissionResult) (bool, error)
	// RecordAttempt persists the scored outcome of a failed submission
	// without completing the challenge.
	RecordAttempt(id string, res SubmissionResult) error

	// streaks and achievements
	GetUserStreak(userID string) (domain.UserStreak, bool, error)
	SaveUserStreak(domain.UserStreak) error
	GetAchievement(userID, code string) (domain.Achievement, bool, error)
	SaveAchievement(domain.Achievement) error
	ListAchievements(userID string) ([]domain.Achievement, error)
}
