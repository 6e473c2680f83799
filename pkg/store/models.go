package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

type MessageModel struct {
	ID         string `gorm:"primaryKey"`
	SenderID   string `gorm:"not null;index:idx_sender_receiver,priority:1"`
	ReceiverID string `gorm:"not null;index:idx_sender_receiver,priority:2;index"`
	Content    string `gorm:"type:text"`
	ImageID    string
	IsRead     bool      `gorm:"not null;default:false;index"`
	IsDeleted  bool      `gorm:"not null;default:false;index"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time
}

type FriendshipModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;uniqueIndex:idx_friend_edge,priority:1"`
	FriendID   string `gorm:"not null;uniqueIndex:idx_friend_edge,priority:2;index"`
	IsAccepted bool   `gorm:"not null;default:false"`
	IsBlocked  bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ChallengeModel struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"not null;uniqueIndex:idx_user_day,priority:1"`
	Day           string `gorm:"not null;uniqueIndex:idx_user_day,priority:2;index"`
	Class         string `gorm:"not null"`
	Description   string `gorm:"not null"`
	IsCompleted   bool   `gorm:"not null;default:false"`
	CompletedAt   *time.Time
	PhotoID       string
	Score         float64
	DetectedClass string
	ExpiresAt     time.Time `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time
}

type UserStreakModel struct {
	UserID          string `gorm:"primaryKey"`
	CurrentStreak   int    `gorm:"not null;default:0"`
	HighestStreak   int    `gorm:"not null;default:0"`
	TotalCompleted  int    `gorm:"not null;default:0"`
	TotalAttempted  int    `gorm:"not null;default:0"`
	LastCompletedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AchievementModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;uniqueIndex:idx_user_achievement,priority:1"`
	Code        string `gorm:"not null;uniqueIndex:idx_user_achievement,priority:2"`
	Name        string `gorm:"not null"`
	Description string `gorm:"not null"`
	IsUnlocked  bool   `gorm:"not null;default:false"`
	UnlockedAt  *time.Time
	CreatedAt   time.Time
}
