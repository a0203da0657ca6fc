package grading

import (
	"math"
	"strings"
)

// MCQResult is the outcome of auto-scoring one multiple-choice answer.
// Unanswered means the raw value was absent or blank; no answer record
// should be created for it.
type MCQResult struct {
	Answered  bool
	Selected  string
	IsCorrect bool
	Earned    int
}

// ScoreMCQ normalizes the raw selection to uppercase and awards full
// points on an exact match with the correct option, zero otherwise.
func ScoreMCQ(raw, correctAnswer string, points int) MCQResult {
	selected := strings.ToUpper(strings.TrimSpace(raw))
	if selected == "" {
		return MCQResult{}
	}
	correct := strings.ToUpper(strings.TrimSpace(correctAnswer))
	if selected == correct {
		return MCQResult{Answered: true, Selected: selected, IsCorrect: true, Earned: points}
	}
	return MCQResult{Answered: true, Selected: selected}
}

// StatusOnSubmit picks the submission status for a freshly submitted
// set of questions. An exam made of MCQs only is fully auto-scored, so
// it lands in graded right away; any written question leaves it pending
// for manual review.
func StatusOnSubmit(questionTypes []string) string {
	for _, t := range questionTypes {
		if t != "mcq" {
			return StatusPending
		}
	}
	return StatusGraded
}

// ClampPoints caps a manually awarded score into [0, max]. Out-of-range
// values are silently adjusted rather than rejected.
func ClampPoints(points, max int) int {
	if points < 0 {
		return 0
	}
	if points > max {
		return max
	}
	return points
}

// Percentage returns total/max as a percentage rounded to two decimals,
// or 0.0 when max is zero.
func Percentage(totalScore, maxScore int) float64 {
	if maxScore <= 0 {
		return 0.0
	}
	pct := float64(totalScore) / float64(maxScore) * 100
	return math.Round(pct*100) / 100
}
