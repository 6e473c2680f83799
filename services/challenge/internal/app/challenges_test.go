package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapstreak/pkg/domain"
	"snapstreak/pkg/store"
	"snapstreak/services/challenge/internal/classifier"
)

type fakeDetector struct {
	pred domain.Prediction
	err  error
}

func (f *fakeDetector) Predict(context.Context, string) (domain.Prediction, error) {
	return f.pred, f.err
}

type engineFixture struct {
	engine   *Challenges
	store    *store.MemoryStore
	detector *fakeDetector
	clock    time.Time
}

func newEngine(t *testing.T) *engineFixture {
	t.Helper()
	fx := &engineFixture{
		store:    store.NewMemoryStore(),
		detector: &fakeDetector{},
		clock:    time.Date(2026, 8, 28, 10, 0, 0, 0, time.Local),
	}
	fx.engine = NewChallenges(fx.store, fx.detector, nil)
	fx.engine.now = func() time.Time { return fx.clock }
	return fx
}

func (fx *engineFixture) detect(class string, score float64) {
	fx.detector.pred = domain.Prediction{Class: class, Score: score}
	fx.detector.err = nil
}

func (fx *engineFixture) submitToday(t *testing.T, userID string, score float64) SubmitResult {
	t.Helper()
	challenge, err := fx.engine.Today(userID)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	fx.detect(challenge.Class, score)
	res, err := fx.engine.Submit(context.Background(), userID, SubmitRequest{
		ChallengeID: challenge.ID,
		ImageURL:    "http://photos/p.jpg",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res
}

func TestTodayMintsOnceAndSharesClass(t *testing.T) {
	fx := newEngine(t)

	first, err := fx.engine.Today("u1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if first.Class == "" || first.Day != "2026-08-28" || first.IsCompleted {
		t.Fatalf("unexpected challenge: %+v", first)
	}
	inCatalog := false
	for _, c := range classifier.Classes {
		if c == first.Class {
			inCatalog = true
		}
	}
	if !inCatalog {
		t.Fatalf("minted class %q not in catalog", first.Class)
	}

	again, err := fx.engine.Today("u1")
	if err != nil {
		t.Fatalf("today again: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("second call minted a new challenge")
	}

	other, err := fx.engine.Today("u2")
	if err != nil {
		t.Fatalf("today for u2: %v", err)
	}
	if other.ID == first.ID || other.Class != first.Class {
		t.Fatalf("expected u2 to chase the same class, got %+v", other)
	}
}

func TestSubmitCompletesChallenge(t *testing.T) {
	fx := newEngine(t)

	res := fx.submitToday(t, "u1", 85)
	if !res.Passed || res.AlreadyCompleted {
		t.Fatalf("expected pass, got %+v", res)
	}
	if !res.Challenge.IsCompleted || res.Challenge.Score != 85 {
		t.Fatalf("completion not persisted: %+v", res.Challenge)
	}
	if res.Streak.CurrentStreak != 1 || res.Streak.TotalCompleted != 1 {
		t.Fatalf("unexpected streak: %+v", res.Streak)
	}
	// A clean pass counts no failed attempt.
	if res.Streak.TotalAttempted != 0 {
		t.Fatalf("pass must not count an attempt: %+v", res.Streak)
	}
	if len(res.Unlocked) != 1 || res.Unlocked[0].Code != "first-challenge" {
		t.Fatalf("expected first-challenge unlock, got %+v", res.Unlocked)
	}
}

func TestSubmitBelowThreshold(t *testing.T) {
	fx := newEngine(t)
	challenge, err := fx.engine.Today("u1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}

	fx.detect(challenge.Class, 65)
	res, err := fx.engine.Submit(context.Background(), "u1", SubmitRequest{ChallengeID: challenge.ID, ImageURL: "http://photos/p.jpg"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Passed || res.Challenge.IsCompleted {
		t.Fatalf("expected low score to fail, got %+v", res)
	}
	if res.Challenge.Score != 65 {
		t.Fatalf("attempt score not recorded: %+v", res.Challenge)
	}
	if res.Streak.TotalAttempted != 1 || res.Streak.TotalCompleted != 0 {
		t.Fatalf("unexpected streak after miss: %+v", res.Streak)
	}

	// The challenge stays open for another try.
	fx.detect(challenge.Class, 90)
	res, err = fx.engine.Submit(context.Background(), "u1", SubmitRequest{ChallengeID: challenge.ID, ImageURL: "http://photos/p2.jpg"})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !res.Passed || res.Streak.TotalAttempted != 1 || res.Streak.TotalCompleted != 1 {
		t.Fatalf("unexpected retry outcome: %+v", res)
	}
}

func TestSubmitWrongDish(t *testing.T) {
	fx := newEngine(t)
	challenge, err := fx.engine.Today("u1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}

	fx.detect("definitely-not-"+challenge.Class, 99)
	res, err := fx.engine.Submit(context.Background(), "u1", SubmitRequest{ChallengeID: challenge.ID, ImageURL: "http://photos/p.jpg"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Passed || res.Challenge.IsCompleted {
		t.Fatalf("expected wrong dish to fail, got %+v", res)
	}
}

func TestSubmitReplayIsIdempotent(t *testing.T) {
	fx := newEngine(t)
	first := fx.submitToday(t, "u1", 85)

	fx.detect(first.Challenge.Class, 99)
	replay, err := fx.engine.Submit(context.Background(), "u1", SubmitRequest{ChallengeID: first.Challenge.ID, ImageURL: "http://photos/p2.jpg"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.AlreadyCompleted || !replay.Passed {
		t.Fatalf("expected replay outcome, got %+v", replay)
	}
	if replay.Streak.TotalCompleted != 1 || replay.Streak.CurrentStreak != 1 {
		t.Fatalf("replay changed the streak: %+v", replay.Streak)
	}
	if replay.Challenge.Score != 85 {
		t.Fatalf("replay overwrote the recorded score: %+v", replay.Challenge)
	}
}

func TestSubmitDetectorDown(t *testing.T) {
	fx := newEngine(t)
	challenge, err := fx.engine.Today("u1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}

	fx.detector.err = classifier.ErrUnavailable
	_, err = fx.engine.Submit(context.Background(), "u1", SubmitRequest{ChallengeID: challenge.ID, ImageURL: "http://photos/p.jpg"})
	if !errors.Is(err, classifier.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got: %v", err)
	}

	stored, _, _ := fx.store.GetChallenge(challenge.ID)
	if stored.IsCompleted || stored.Score != 0 {
		t.Fatalf("outage must not score the challenge: %+v", stored)
	}
}

func TestSubmitGuards(t *testing.T) {
	fx := newEngine(t)
	challenge, err := fx.engine.Today("u1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	ctx := context.Background()

	if _, err := fx.engine.Submit(ctx, "u1", SubmitRequest{ChallengeID: challenge.ID}); !errors.Is(err, ErrImageMissing) {
		t.Fatalf("expected ErrImageMissing, got: %v", err)
	}
	if _, err := fx.engine.Submit(ctx, "u1", SubmitRequest{ChallengeID: "missing", ImageURL: "http://photos/p.jpg"}); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got: %v", err)
	}
	if _, err := fx.engine.Submit(ctx, "u2", SubmitRequest{ChallengeID: challenge.ID, ImageURL: "http://photos/p.jpg"}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got: %v", err)
	}

	fx.clock = fx.clock.Add(24 * time.Hour)
	fx.detect(challenge.Class, 99)
	if _, err := fx.engine.Submit(ctx, "u1", SubmitRequest{ChallengeID: challenge.ID, ImageURL: "http://photos/p.jpg"}); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got: %v", err)
	}
}

func TestSubmitDefaultsToTodaysChallenge(t *testing.T) {
	fx := newEngine(t)
	ctx := context.Background()

	// Nothing minted yet for the day.
	if _, err := fx.engine.Submit(ctx, "u1", SubmitRequest{ImageURL: "http://photos/p.jpg"}); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound before mint, got: %v", err)
	}

	challenge, err := fx.engine.Today("u1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	fx.detect(challenge.Class, 90)
	res, err := fx.engine.Submit(ctx, "u1", SubmitRequest{ImageURL: "http://photos/p.jpg", PhotoID: "photo-42"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Passed || res.Challenge.ID != challenge.ID {
		t.Fatalf("expected today's challenge to pass, got %+v", res)
	}
	if res.Challenge.PhotoID != "photo-42" {
		t.Fatalf("photo id not recorded: %+v", res.Challenge)
	}
}

func TestStreakAcrossDays(t *testing.T) {
	fx := newEngine(t)

	var last SubmitResult
	for day := 0; day < 3; day++ {
		last = fx.submitToday(t, "u1", 90)
		fx.clock = fx.clock.Add(24 * time.Hour)
	}
	if last.Streak.CurrentStreak != 3 || last.Streak.HighestStreak != 3 {
		t.Fatalf("expected 3-day run, got %+v", last.Streak)
	}

	// Miss a day: the run resets but the highest mark stays.
	fx.clock = fx.clock.Add(24 * time.Hour)
	last = fx.submitToday(t, "u1", 90)
	if last.Streak.CurrentStreak != 1 || last.Streak.HighestStreak != 3 {
		t.Fatalf("expected reset to 1 with highest 3, got %+v", last.Streak)
	}
	if last.Streak.TotalCompleted != 4 {
		t.Fatalf("expected 4 completions, got %+v", last.Streak)
	}
}

func TestStreakAchievementUnlocksOnce(t *testing.T) {
	fx := newEngine(t)

	var unlockCount int
	for day := 0; day < 8; day++ {
		res := fx.submitToday(t, "u1", 90)
		for _, a := range res.Unlocked {
			if a.Code == "streak-7" {
				unlockCount++
				if res.Streak.CurrentStreak != 7 {
					t.Fatalf("streak-7 unlocked at streak %d", res.Streak.CurrentStreak)
				}
			}
		}
		fx.clock = fx.clock.Add(24 * time.Hour)
	}
	if unlockCount != 1 {
		t.Fatalf("expected exactly one streak-7 unlock, got %d", unlockCount)
	}

	unlocked, err := fx.engine.Achievements("u1")
	if err != nil {
		t.Fatalf("achievements: %v", err)
	}
	codes := make(map[string]int)
	for _, a := range unlocked {
		codes[a.Code]++
	}
	if codes["first-challenge"] != 1 || codes["streak-7"] != 1 {
		t.Fatalf("unexpected achievement set: %+v", codes)
	}
}

func TestHistoryAndStreakLookups(t *testing.T) {
	fx := newEngine(t)
	fx.submitToday(t, "u1", 90)
	fx.clock = fx.clock.Add(24 * time.Hour)
	fx.submitToday(t, "u1", 90)

	history, err := fx.engine.History("u1")
	if err != nil || len(history) != 2 {
		t.Fatalf("unexpected history: %+v err=%v", history, err)
	}
	if history[0].Day != "2026-08-29" {
		t.Fatalf("expected newest first, got %+v", history[0])
	}

	streak, err := fx.engine.Streak("u1")
	if err != nil || streak.CurrentStreak != 2 {
		t.Fatalf("unexpected streak: %+v err=%v", streak, err)
	}

	// A user who never played gets a zero record, not an error.
	empty, err := fx.engine.Streak("ghost")
	if err != nil || empty.CurrentStreak != 0 || empty.UserID != "ghost" {
		t.Fatalf("unexpected empty streak: %+v err=%v", empty, err)
	}
}
