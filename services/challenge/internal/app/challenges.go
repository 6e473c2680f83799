package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"snapstreak/pkg/domain"
	"snapstreak/pkg/events"
	"snapstreak/pkg/store"
	"snapstreak/services/challenge/internal/classifier"
)

// PassScore is the minimum detection confidence (0-100) for a submission to
// complete its challenge.
const PassScore = 70.0

// Detector is the slice of the model client the engine needs.
type Detector interface {
	Predict(ctx context.Context, imageURL string) (domain.Prediction, error)
}

// Challenges runs the daily challenge, streak, and achievement rules.
type Challenges struct {
	store    store.Store
	detector Detector
	events   *events.Publisher
	now      func() time.Time
}

func NewChallenges(st store.Store, detector Detector, pub *events.Publisher) *Challenges {
	return &Challenges{store: st, detector: detector, events: pub, now: time.Now}
}

// Today returns the user's challenge for the current day, minting one if
// needed. The first challenge minted each day fixes the class for everyone:
// all users chase the same dish, later mints copy it.
func (c *Challenges) Today(userID string) (domain.Challenge, error) {
	day := dayOf(c.now())
	if existing, ok, err := c.store.GetChallengeForDay(userID, day); err != nil {
		return domain.Challenge{}, err
	} else if ok {
		return existing, nil
	}

	class := ""
	if first, ok, err := c.store.GetFirstChallengeOfDay(day); err != nil {
		return domain.Challenge{}, err
	} else if ok {
		class = first.Class
	} else {
		class = classifier.RandomClass()
	}

	now := c.now()
	challenge := domain.Challenge{
		ID:          uuid.NewString(),
		UserID:      userID,
		Class:       class,
		Description: fmt.Sprintf("Take your best photo of %s", class),
		Day:         day,
		ExpiresAt:   endOfDay(now),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := c.store.SaveChallenge(challenge); err != nil {
		// A concurrent mint may have won the (user, day) slot; serve theirs.
		if existing, ok, getErr := c.store.GetChallengeForDay(userID, day); getErr == nil && ok {
			return existing, nil
		}
		return domain.Challenge{}, err
	}
	return challenge, nil
}

// SubmitResult reports what one submission did.
type SubmitResult struct {
	Challenge        domain.Challenge     `json:"challenge"`
	Prediction       domain.Prediction    `json:"prediction"`
	Passed           bool                 `json:"passed"`
	AlreadyCompleted bool                 `json:"alreadyCompleted"`
	Streak           domain.UserStreak    `json:"streak"`
	Unlocked         []domain.Achievement `json:"unlocked,omitempty"`
}

// SubmitRequest carries one photo submission. ChallengeID is optional; when
// empty the submission targets the user's challenge for the current day.
type SubmitRequest struct {
	ChallengeID string `json:"challengeId"`
	ImageURL    string `json:"imageUrl"`
	PhotoID     string `json:"photoId"`
}

// Submit scores a photo against the user's challenge. Submissions are
// idempotent: once a challenge is completed, replays return the recorded
// outcome without touching the streak again. A failed detection service is a
// typed error, never a synthesized verdict.
func (c *Challenges) Submit(ctx context.Context, userID string, req SubmitRequest) (SubmitResult, error) {
	if req.ImageURL == "" {
		return SubmitResult{}, ErrImageMissing
	}
	challenge, err := c.resolveChallenge(userID, req.ChallengeID)
	if err != nil {
		return SubmitResult{}, err
	}
	if challenge.UserID != userID {
		return SubmitResult{}, ErrNotOwner
	}
	challengeID := challenge.ID
	if challenge.IsCompleted {
		return c.replay(userID, challenge)
	}
	if c.now().After(challenge.ExpiresAt) {
		return SubmitResult{}, ErrChallengeExpired
	}

	prediction, err := c.detector.Predict(ctx, req.ImageURL)
	if err != nil {
		return SubmitResult{}, err
	}

	photoID := req.PhotoID
	if photoID == "" {
		photoID = req.ImageURL
	}
	res := store.SubmissionResult{
		Score:         prediction.Score,
		DetectedClass: prediction.Class,
		PhotoID:       photoID,
		CompletedAt:   c.now().UTC(),
	}

	if !classMatches(challenge.Class, prediction.Class) || prediction.Score < PassScore {
		if err := c.store.RecordAttempt(challengeID, res); err != nil {
			return SubmitResult{}, err
		}
		streak, err := c.recordAttempt(userID)
		if err != nil {
			return SubmitResult{}, err
		}
		challenge, _, _ = c.store.GetChallenge(challengeID)
		return SubmitResult{Challenge: challenge, Prediction: prediction, Streak: streak}, nil
	}

	won, err := c.store.CompleteChallenge(challengeID, res)
	if err != nil {
		return SubmitResult{}, err
	}
	if !won {
		// Lost the race against a concurrent submission of the same challenge.
		challenge, _, _ = c.store.GetChallenge(challengeID)
		return c.replay(userID, challenge)
	}

	streak, unlocked, err := c.creditCompletion(ctx, userID, res.CompletedAt)
	if err != nil {
		return SubmitResult{}, err
	}

	challenge, _, _ = c.store.GetChallenge(challengeID)
	c.events.Publish(ctx, events.ChallengeCompleted, challenge)
	return SubmitResult{
		Challenge:  challenge,
		Prediction: prediction,
		Passed:     true,
		Streak:     streak,
		Unlocked:   unlocked,
	}, nil
}

// resolveChallenge finds the submission target: an explicit challenge id, or
// the user's challenge for the current day when none is given.
func (c *Challenges) resolveChallenge(userID, challengeID string) (domain.Challenge, error) {
	if challengeID != "" {
		challenge, ok, err := c.store.GetChallenge(challengeID)
		if err != nil {
			return domain.Challenge{}, err
		}
		if !ok {
			return domain.Challenge{}, ErrChallengeNotFound
		}
		return challenge, nil
	}
	challenge, ok, err := c.store.GetChallengeForDay(userID, dayOf(c.now()))
	if err != nil {
		return domain.Challenge{}, err
	}
	if !ok {
		return domain.Challenge{}, ErrChallengeNotFound
	}
	return challenge, nil
}

func (c *Challenges) replay(userID string, challenge domain.Challenge) (SubmitResult, error) {
	streak, _, err := c.store.GetUserStreak(userID)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		Challenge: challenge,
		Prediction: domain.Prediction{
			Class: challenge.DetectedClass,
			Score: challenge.Score,
		},
		Passed:           true,
		AlreadyCompleted: true,
		Streak:           streak,
	}, nil
}

func (c *Challenges) recordAttempt(userID string) (domain.UserStreak, error) {
	streak, ok, err := c.store.GetUserStreak(userID)
	if err != nil {
		return domain.UserStreak{}, err
	}
	if !ok {
		streak = domain.UserStreak{UserID: userID, CreatedAt: c.now().UTC()}
	}
	streak.TotalAttempted++
	streak.UpdatedAt = c.now().UTC()
	if err := c.store.SaveUserStreak(streak); err != nil {
		return domain.UserStreak{}, err
	}
	return streak, nil
}

func (c *Challenges) creditCompletion(ctx context.Context, userID string, completedAt time.Time) (domain.UserStreak, []domain.Achievement, error) {
	streak, ok, err := c.store.GetUserStreak(userID)
	if err != nil {
		return domain.UserStreak{}, nil, err
	}
	if !ok {
		streak = domain.UserStreak{UserID: userID, CreatedAt: completedAt}
	}
	// TotalAttempted counts failed tries only; completions land in
	// TotalCompleted.
	streak = advanceStreak(streak, completedAt)
	if err := c.store.SaveUserStreak(streak); err != nil {
		return domain.UserStreak{}, nil, err
	}

	unlocked, err := c.unlockAchievements(ctx, userID, streak)
	if err != nil {
		return domain.UserStreak{}, nil, err
	}
	return streak, unlocked, nil
}

// Achievement codes and their unlock thresholds.
var achievementRules = []struct {
	code        string
	name        string
	description string
	unlocked    func(domain.UserStreak) bool
}{
	{
		code:        "first-challenge",
		name:        "First Bite",
		description: "Complete your first challenge",
		unlocked:    func(s domain.UserStreak) bool { return s.TotalCompleted >= 1 },
	},
	{
		code:        "streak-7",
		name:        "One Week Wonder",
		description: "Keep a 7-day streak",
		unlocked:    func(s domain.UserStreak) bool { return s.CurrentStreak >= 7 },
	},
	{
		code:        "streak-30",
		name:        "Monthly Master",
		description: "Keep a 30-day streak",
		unlocked:    func(s domain.UserStreak) bool { return s.CurrentStreak >= 30 },
	},
}

func (c *Challenges) unlockAchievements(ctx context.Context, userID string, streak domain.UserStreak) ([]domain.Achievement, error) {
	var unlocked []domain.Achievement
	for _, rule := range achievementRules {
		if !rule.unlocked(streak) {
			continue
		}
		if existing, ok, err := c.store.GetAchievement(userID, rule.code); err != nil {
			return nil, err
		} else if ok && existing.IsUnlocked {
			continue
		}
		achievement := domain.Achievement{
			ID:          uuid.NewString(),
			UserID:      userID,
			Code:        rule.code,
			Name:        rule.name,
			Description: rule.description,
			IsUnlocked:  true,
			UnlockedAt:  c.now().UTC(),
			CreatedAt:   c.now().UTC(),
		}
		if err := c.store.SaveAchievement(achievement); err != nil {
			return nil, err
		}
		c.events.Publish(ctx, events.AchievementUnlocked, achievement)
		unlocked = append(unlocked, achievement)
	}
	return unlocked, nil
}

// History lists the user's challenges, newest first.
func (c *Challenges) History(userID string) ([]domain.Challenge, error) {
	return c.store.ListChallenges(userID)
}

// Streak returns the user's streak record, zero-valued if they never played.
func (c *Challenges) Streak(userID string) (domain.UserStreak, error) {
	streak, ok, err := c.store.GetUserStreak(userID)
	if err != nil {
		return domain.UserStreak{}, err
	}
	if !ok {
		streak = domain.UserStreak{UserID: userID}
	}
	return streak, nil
}

// Achievements lists the user's unlocked achievements.
func (c *Challenges) Achievements(userID string) ([]domain.Achievement, error) {
	return c.store.ListAchievements(userID)
}

func classMatches(expected, detected string) bool {
	return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(detected))
}
