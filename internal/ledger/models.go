package ledger

import (
	"slices"
	"strings"
	"time"
)

// User is a ledger row. Score is nil until the first disposal is scored.
type User struct {
	Name          string
	ID            int64
	Score         *float64
	CompleteTimes int
	ReminderItems []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasScore reports whether the user has at least one scored disposal.
func (u *User) HasScore() bool {
	return u != nil && u.Score != nil
}

// HasReminder reports whether item was previously disposed of incorrectly.
func (u *User) HasReminder(item string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.ReminderItems, strings.ToLower(strings.TrimSpace(item)))
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Score != nil {
		score := *u.Score
		cp.Score = &score
	}
	cp.ReminderItems = slices.Clone(u.ReminderItems)
	return &cp
}

// Disposal records one scored disposal cycle.
type Disposal struct {
	ID            string
	UserName      string
	Item          string
	Category      string
	StatusCode    int
	Correct       bool
	Score         float64
	CompleteTimes int
	CreatedAt     time.Time
}

// Outcome bundles the writes produced by scoring a disposal so they commit
// atomically.
type Outcome struct {
	Name          string
	Score         float64
	CompleteTimes int
	ReminderItems []string
	Disposal      Disposal
}
