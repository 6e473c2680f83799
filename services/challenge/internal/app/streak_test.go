package app

import (
	"testing"
	"time"

	"snapstreak/pkg/domain"
)

func TestAdvanceStreakSameDayKeepsRun(t *testing.T) {
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local)
	s := advanceStreak(domain.UserStreak{UserID: "u1"}, at)
	if s.CurrentStreak != 1 || s.TotalCompleted != 1 {
		t.Fatalf("unexpected first completion: %+v", s)
	}

	s = advanceStreak(s, at.Add(2*time.Hour))
	if s.CurrentStreak != 1 || s.TotalCompleted != 2 {
		t.Fatalf("same-day completion must not extend the run: %+v", s)
	}
}

func TestAdvanceStreakDayBoundary(t *testing.T) {
	// Late-evening completion followed by an early-morning one still counts
	// as consecutive days.
	evening := time.Date(2026, 8, 28, 23, 50, 0, 0, time.Local)
	morning := time.Date(2026, 8, 29, 0, 10, 0, 0, time.Local)

	s := advanceStreak(domain.UserStreak{UserID: "u1"}, evening)
	s = advanceStreak(s, morning)
	if s.CurrentStreak != 2 {
		t.Fatalf("expected boundary-crossing run of 2, got %+v", s)
	}
}
