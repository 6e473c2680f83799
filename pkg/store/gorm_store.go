package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"snapstreak/pkg/domain"
)

const migrateLockID int64 = 48124812

// ErrNotFound is returned by mutations whose target row does not exist.
var ErrNotFound = errors.New("not found")

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&MessageModel{},
			&FriendshipModel{},
			&ChallengeModel{},
			&UserStreakModel{},
			&AchievementModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates the user projection.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email"}),
	}).Create(&model).Error
}

// GetUserIDByEmail resolves an email to a user ID.
func (s *GormStore) GetUserIDByEmail(email string) (string, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return model.ID, true, nil
}

// SaveMessage records a message.
func (s *GormStore) SaveMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// GetMessage retrieves a message by ID.
func (s *GormStore) GetMessage(id string) (domain.Message, bool, error) {
	var model MessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

// ListThread returns matching messages newest-first plus the total count.
func (s *GormStore) ListThread(f ThreadFilter, p Page) ([]domain.Message, int, error) {
	tx := s.db.Model(&MessageModel{})
	if f.OtherID != "" {
		tx = tx.Where(
			"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			f.UserID, f.OtherID, f.OtherID, f.UserID,
		)
	} else {
		tx = tx.Where("sender_id = ? OR receiver_id = ?", f.UserID, f.UserID)
	}
	if f.ExcludeDeleted {
		tx = tx.Where("is_deleted = ?", false)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	tx = tx.Order("created_at DESC")
	if p.Offset > 0 {
		tx = tx.Offset(p.Offset)
	}
	if p.Limit > 0 {
		tx = tx.Limit(p.Limit)
	}
	var models []MessageModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, 0, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, int(total), nil
}

// MarkMessagesRead flips IsRead on every unread message senderID -> receiverID.
func (s *GormStore) MarkMessagesRead(receiverID, senderID string) error {
	return s.db.Model(&MessageModel{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, receiverID, false).
		Updates(map[string]any{
			"is_read":    true,
			"updated_at": time.Now().UTC(),
		}).Error
}

// UpdateMessage applies a partial update.
func (s *GormStore) UpdateMessage(id string, patch MessagePatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.IsRead != nil {
		updates["is_read"] = *patch.IsRead
	}
	if patch.IsDeleted != nil {
		updates["is_deleted"] = *patch.IsDeleted
	}
	res := s.db.Model(&MessageModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveFriendship stores or updates a directed friendship edge.
func (s *GormStore) SaveFriendship(f domain.Friendship) error {
	model := friendshipToModel(f)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "friend_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_accepted", "is_blocked", "updated_at"}),
	}).Create(&model).Error
}

// GetFriendship looks up the exact directed edge.
func (s *GormStore) GetFriendship(userID, friendID string) (domain.Friendship, bool, error) {
	var model FriendshipModel
	err := s.db.Where("user_id = ? AND friend_id = ?", userID, friendID).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Friendship{}, false, nil
		}
		return domain.Friendship{}, false, err
	}
	return friendshipFromModel(model), true, nil
}

// GetFriendshipBetween looks the edge up in either direction.
func (s *GormStore) GetFriendshipBetween(a, b string) (domain.Friendship, bool, error) {
	var model FriendshipModel
	err := s.db.Where(
		"(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
		a, b, b, a,
	).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Friendship{}, false, nil
		}
		return domain.Friendship{}, false, err
	}
	return friendshipFromModel(model), true, nil
}

// ListFriendships returns matching edges ordered by creation time plus the
// total count.
func (s *GormStore) ListFriendships(f FriendshipFilter, p Page) ([]domain.Friendship, int, error) {
	tx := s.db.Model(&FriendshipModel{})
	switch {
	case f.EitherDirection && f.UserID != "":
		tx = tx.Where("user_id = ? OR friend_id = ?", f.UserID, f.UserID)
	default:
		if f.UserID != "" {
			tx = tx.Where("user_id = ?", f.UserID)
		}
		if f.FriendID != "" {
			tx = tx.Where("friend_id = ?", f.FriendID)
		}
	}
	if f.IsAccepted != nil {
		tx = tx.Where("is_accepted = ?", *f.IsAccepted)
	}
	if f.IsBlocked != nil {
		tx = tx.Where("is_blocked = ?", *f.IsBlocked)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	tx = tx.Order("created_at DESC")
	if p.Offset > 0 {
		tx = tx.Offset(p.Offset)
	}
	if p.Limit > 0 {
		tx = tx.Limit(p.Limit)
	}
	var models []FriendshipModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, 0, err
	}
	edges := make([]domain.Friendship, 0, len(models))
	for _, m := range models {
		edges = append(edges, friendshipFromModel(m))
	}
	return edges, int(total), nil
}

// AcceptFriendship accepts the requester -> accepter edge and materializes
// the reverse edge in the same transaction.
func (s *GormStore) AcceptFriendship(accepterID, requesterID string) error {
	now := time.Now().UTC()
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&FriendshipModel{}).
			Where("user_id = ? AND friend_id = ?", requesterID, accepterID).
			Updates(map[string]any{"is_accepted": true, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var reverse FriendshipModel
		err := tx.Where("user_id = ? AND friend_id = ?", accepterID, requesterID).First(&reverse).Error
		if err == gorm.ErrRecordNotFound {
			reverse = FriendshipModel{
				ID:         uuid.NewString(),
				UserID:     accepterID,
				FriendID:   requesterID,
				IsAccepted: true,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			return tx.Create(&reverse).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&FriendshipModel{}).
			Where("id = ?", reverse.ID).
			Updates(map[string]any{"is_accepted": true, "updated_at": now}).Error
	})
}

// DeleteFriendship removes both directions of the edge between a and b.
func (s *GormStore) DeleteFriendship(a, b string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Where(
			"(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
			a, b, b, a,
		).Delete(&FriendshipModel{}).Error
	})
}

// SaveChallenge stores a challenge.
func (s *GormStore) SaveChallenge(c domain.Challenge) error {
	model := challengeToModel(c)
	return s.db.Create(&model).Error
}

// GetChallenge retrieves a challenge by ID.
func (s *GormStore) GetChallenge(id string) (domain.Challenge, bool, error) {
	var model ChallengeModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Challenge{}, false, nil
		}
		return domain.Challenge{}, false, err
	}
	return challengeFromModel(model), true, nil
}

// GetChallengeForDay returns the user's challenge for the given calendar day.
func (s *GormStore) GetChallengeForDay(userID, day string) (domain.Challenge, bool, error) {
	var model ChallengeModel
	err := s.db.Where("user_id = ? AND day = ?", userID, day).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Challenge{}, false, nil
		}
		return domain.Challenge{}, false, err
	}
	return challengeFromModel(model), true, nil
}

// GetFirstChallengeOfDay returns the earliest challenge minted on the day.
func (s *GormStore) GetFirstChallengeOfDay(day string) (domain.Challenge, bool, error) {
	var model ChallengeModel
	err := s.db.Where("day = ?", day).Order("created_at ASC").First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Challenge{}, false, nil
		}
		return domain.Challenge{}, false, err
	}
	return challengeFromModel(model), true, nil
}

// ListChallenges returns the user's challenges newest-first.
func (s *GormStore) ListChallenges(userID string) ([]domain.Challenge, error) {
	var models []ChallengeModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Challenge, 0, len(models))
	for _, m := range models {
		res = append(res, challengeFromModel(m))
	}
	return res, nil
}

// CompleteChallenge conditionally completes a pending challenge. The WHERE
// guard on is_completed makes concurrent duplicate submissions race-safe:
// exactly one caller observes applied=true.
func (s *GormStore) CompleteChallenge(id string, res SubmissionResult) (bool, error) {
	completedAt := res.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	out := s.db.Model(&ChallengeModel{}).
		Where("id = ? AND is_completed = ?", id, false).
		Updates(map[string]any{
			"is_completed":   true,
			"completed_at":   completedAt,
			"score":          res.Score,
			"detected_class": res.DetectedClass,
			"photo_id":       res.PhotoID,
			"updated_at":     time.Now().UTC(),
		})
	if out.Error != nil {
		return false, out.Error
	}
	return out.RowsAffected > 0, nil
}

// RecordAttempt persists a failed submission's score without completing.
func (s *GormStore) RecordAttempt(id string, res SubmissionResult) error {
	return s.db.Model(&ChallengeModel{}).
		Where("id = ? AND is_completed = ?", id, false).
		Updates(map[string]any{
			"score":          res.Score,
			"detected_class": res.DetectedClass,
			"photo_id":       res.PhotoID,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// GetUserStreak returns the user's streak record.
func (s *GormStore) GetUserStreak(userID string) (domain.UserStreak, bool, error) {
	var model UserStreakModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserStreak{}, false, nil
		}
		return domain.UserStreak{}, false, err
	}
	return streakFromModel(model), true, nil
}

// SaveUserStreak stores or updates the user's streak record.
func (s *GormStore) SaveUserStreak(streak domain.UserStreak) error {
	model := streakToModel(streak)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_streak", "highest_streak", "total_completed",
			"total_attempted", "last_completed_at", "updated_at",
		}),
	}).Create(&model).Error
}

// GetAchievement returns the user's achievement by code.
func (s *GormStore) GetAchievement(userID, code string) (domain.Achievement, bool, error) {
	var model AchievementModel
	err := s.db.Where("user_id = ? AND code = ?", userID, code).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Achievement{}, false, nil
		}
		return domain.Achievement{}, false, err
	}
	return achievementFromModel(model), true, nil
}

// SaveAchievement stores or updates an achievement.
func (s *GormStore) SaveAchievement(a domain.Achievement) error {
	model := achievementToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_unlocked", "unlocked_at"}),
	}).Create(&model).Error
}

// ListAchievements returns the user's unlocked achievements.
func (s *GormStore) ListAchievements(userID string) ([]domain.Achievement, error) {
	var models []AchievementModel
	err := s.db.Where("user_id = ? AND is_unlocked = ?", userID, true).
		Order("unlocked_at ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Achievement, 0, len(models))
	for _, m := range models {
		res = append(res, achievementFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		ImageID:    msg.ImageID,
		IsRead:     msg.IsRead,
		IsDeleted:  msg.IsDeleted,
		CreatedAt:  msg.CreatedAt,
		UpdatedAt:  msg.UpdatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		ImageID:    m.ImageID,
		IsRead:     m.IsRead,
		IsDeleted:  m.IsDeleted,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func friendshipToModel(f domain.Friendship) FriendshipModel {
	return FriendshipModel{
		ID:         f.ID,
		UserID:     f.UserID,
		FriendID:   f.FriendID,
		IsAccepted: f.IsAccepted,
		IsBlocked:  f.IsBlocked,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

func friendshipFromModel(m FriendshipModel) domain.Friendship {
	return domain.Friendship{
		ID:         m.ID,
		UserID:     m.UserID,
		FriendID:   m.FriendID,
		IsAccepted: m.IsAccepted,
		IsBlocked:  m.IsBlocked,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func challengeToModel(c domain.Challenge) ChallengeModel {
	var completedAt *time.Time
	if !c.CompletedAt.IsZero() {
		value := c.CompletedAt
		completedAt = &value
	}
	return ChallengeModel{
		ID:            c.ID,
		UserID:        c.UserID,
		Day:           c.Day,
		Class:         c.Class,
		Description:   c.Description,
		IsCompleted:   c.IsCompleted,
		CompletedAt:   completedAt,
		PhotoID:       c.PhotoID,
		Score:         c.Score,
		DetectedClass: c.DetectedClass,
		ExpiresAt:     c.ExpiresAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func challengeFromModel(m ChallengeModel) domain.Challenge {
	var completedAt time.Time
	if m.CompletedAt != nil {
		completedAt = *m.CompletedAt
	}
	return domain.Challenge{
		ID:            m.ID,
		UserID:        m.UserID,
		Day:           m.Day,
		Class:         m.Class,
		Description:   m.Description,
		IsCompleted:   m.IsCompleted,
		CompletedAt:   completedAt,
		PhotoID:       m.PhotoID,
		Score:         m.Score,
		DetectedClass: m.DetectedClass,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func streakToModel(s domain.UserStreak) UserStreakModel {
	return UserStreakModel{
		UserID:          s.UserID,
		CurrentStreak:   s.CurrentStreak,
		HighestStreak:   s.HighestStreak,
		TotalCompleted:  s.TotalCompleted,
		TotalAttempted:  s.TotalAttempted,
		LastCompletedAt: s.LastCompletedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func streakFromModel(m UserStreakModel) domain.UserStreak {
	return domain.UserStreak{
		UserID:          m.UserID,
		CurrentStreak:   m.CurrentStreak,
		HighestStreak:   m.HighestStreak,
		TotalCompleted:  m.TotalCompleted,
		TotalAttempted:  m.TotalAttempted,
		LastCompletedAt: m.LastCompletedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func achievementToModel(a domain.Achievement) AchievementModel {
	var unlockedAt *time.Time
	if !a.UnlockedAt.IsZero() {
		value := a.UnlockedAt
		unlockedAt = &value
	}
	return AchievementModel{
		ID:          a.ID,
		UserID:      a.UserID,
		Code:        a.Code,
		Name:        a.Name,
		Description: a.Description,
		IsUnlocked:  a.IsUnlocked,
		UnlockedAt:  unlockedAt,
		CreatedAt:   a.CreatedAt,
	}
}

func achievementFromModel(m AchievementModel) domain.Achievement {
	var unlockedAt time.Time
	if m.UnlockedAt != nil {
		unlockedAt = *m.UnlockedAt
	}
	return domain.Achievement{
		ID:          m.ID,
		UserID:      m.UserID,
		Code:        m.Code,
		Name:        m.Name,
		Description: m.Description,
		IsUnlocked:  m.IsUnlocked,
		UnlockedAt:  unlockedAt,
		CreatedAt:   m.CreatedAt,
	}
}
