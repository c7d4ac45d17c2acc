package scanner

import (
	"math"
	"time"
)

// activityHalfLifeDays halves the activity score every 30 idle days.
const activityHalfLifeDays = 30.0

// maxScore is the top of the 0..100 metric scale.
const maxScore = 100.0

// ActivityScore maps recency of activity into 0..100 with exponential
// decay: activity today scores 100, halving every 30 idle days.
func ActivityScore(now, lastActivity time.Time) float64 {
	if lastActivity.IsZero() || lastActivity.After(now) {
		if lastActivity.After(now) {
			return maxScore
		}
		return 0
	}
	idleDays := now.Sub(lastActivity).Hours() / 24
	return maxScore * math.Pow(0.5, idleDays/activityHalfLifeDays)
}

// ReputationScore folds positive signals (stars, positive ratings,
// followers) into 0..100. With no positive signal the score is zero:
// merely existing, or not failing, earns nothing.
func ReputationScore(stars, positiveRatings, followers int) float64 {
	if stars <= 0 && positiveRatings <= 0 && followers <= 0 {
		return 0
	}
	// Saturating log scale; ~100 combined signals approach the cap.
	signal := float64(stars) + float64(positiveRatings) + float64(followers)/10
	score := maxScore * math.Log10(1+signal) / 2
	if score > maxScore {
		return maxScore
	}
	return score
}

// LongevityDays measures account age in days; unknown creation time is 0.
func LongevityDays(now, createdAt time.Time) float64 {
	if createdAt.IsZero() || createdAt.After(now) {
		return 0
	}
	return now.Sub(createdAt).Hours() / 24
}
