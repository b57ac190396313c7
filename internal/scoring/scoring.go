// Package scoring computes running disposal scores and reminder lists.
//
// Scores are the mean of per-disposal outcomes (100 for correct, 0 for
// incorrect) rounded to three decimals, half away from zero.
package scoring

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"sortbin/internal/classify"
	"sortbin/internal/ledger"
)

// Status codes reported by the bin's proximity sensor.
const (
	StatusRecyclableBin    = 1
	StatusNonRecyclableBin = 2
)

// Result is the new ledger state for one scored disposal.
type Result struct {
	Score         float64
	CompleteTimes int
	ReminderItems []string
}

// Round3 rounds to three decimals, half away from zero.
func Round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}

// IsScoringStatus reports whether code closes a disposal.
func IsScoringStatus(code int) bool {
	return code == StatusRecyclableBin || code == StatusNonRecyclableBin
}

// IsCorrect decides whether the receptacle matched the classified category.
// Without a classification every disposal is incorrect.
func IsCorrect(category classify.Category, classified bool, code int) bool {
	if !classified {
		return false
	}
	switch code {
	case StatusRecyclableBin:
		return category == classify.Recyclable
	case StatusNonRecyclableBin:
		return category == classify.NonRecyclable
	default:
		return false
	}
}

// ScoreOutcome folds one disposal into user's running score. item is added to
// the reminder list on an incorrect disposal unless already present; reminders
// are never removed.
func ScoreOutcome(user *ledger.User, correct bool, item string) Result {
	outcome := 0.0
	if correct {
		outcome = 100.0
	}

	var reminders []string
	result := Result{Score: outcome, CompleteTimes: 1}
	if user != nil {
		reminders = slices.Clone(user.ReminderItems)
		if user.Score != nil {
			oldTimes := float64(user.CompleteTimes)
			result.Score = Round3((*user.Score*oldTimes + outcome) / (oldTimes + 1))
			result.CompleteTimes = user.CompleteTimes + 1
		}
	}
	if reminders == nil {
		reminders = []string{}
	}

	if !correct {
		name := strings.ToLower(strings.TrimSpace(item))
		if name != "" && !slices.Contains(reminders, name) {
			reminders = append(reminders, name)
		}
	}
	result.ReminderItems = reminders
	return result
}

// FormatScore renders a score for the device: at most three decimals and
// always at least one, so 100 becomes "100.0" and 66.6667 becomes "66.667".
func FormatScore(score float64) string {
	s := strconv.FormatFloat(Round3(score), 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
