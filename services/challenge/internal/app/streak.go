package app

import (
	"time"

	"snapstreak/pkg/domain"
)

const dayLayout = "2006-01-02"

func dayOf(t time.Time) string {
	return t.Local().Format(dayLayout)
}

func endOfDay(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, local.Location())
}

// advanceStreak applies one completion to the streak record. Completing on
// the day after the previous completion extends the run; a gap resets it to
// one; a second completion on the same calendar day cannot happen through the
// one-challenge-per-day rule, but is counted without extending the run as a
// guard.
func advanceStreak(s domain.UserStreak, completedAt time.Time) domain.UserStreak {
	today := dayOf(completedAt)
	switch {
	case !s.LastCompletedAt.IsZero() && dayOf(s.LastCompletedAt) == today:
		// Same day, keep the run.
	case !s.LastCompletedAt.IsZero() && dayOf(s.LastCompletedAt) == dayOf(completedAt.AddDate(0, 0, -1)):
		s.CurrentStreak++
	default:
		s.CurrentStreak = 1
	}
	if s.CurrentStreak > s.HighestStreak {
		s.HighestStreak = s.CurrentStreak
	}
	s.TotalCompleted++
	s.LastCompletedAt = completedAt
	s.UpdatedAt = completedAt
	return s
}
