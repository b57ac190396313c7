package api

import (
	"time"

	"sortbin/internal/device"
	"sortbin/internal/ledger"
	"sortbin/internal/scoring"
	"sortbin/internal/session"
)

// FromUser converts a ledger user to its API representation.
func FromUser(user *ledger.User) User {
	if user == nil {
		return User{}
	}
	dto := User{
		Name:          user.Name,
		ID:            user.ID,
		CompleteTimes: user.CompleteTimes,
		ReminderItems: append([]string{}, user.ReminderItems...),
		ScoreDisplay:  scoreDisplay(user.Score),
		CreatedAt:     formatTime(user.CreatedAt),
		UpdatedAt:     formatTime(user.UpdatedAt),
	}
	if user.Score != nil {
		score := *user.Score
		dto.Score = &score
	}
	return dto
}

// FromUsers converts a slice of ledger users.
func FromUsers(users []*ledger.User) []User {
	out := make([]User, 0, len(users))
	for _, user := range users {
		out = append(out, FromUser(user))
	}
	return out
}

// FromDisposal converts a ledger disposal to its API representation.
func FromDisposal(d ledger.Disposal) Disposal {
	return Disposal{
		ID:            d.ID,
		Item:          d.Item,
		Category:      d.Category,
		StatusCode:    d.StatusCode,
		Correct:       d.Correct,
		Score:         d.Score,
		CompleteTimes: d.CompleteTimes,
		CreatedAt:     formatTime(d.CreatedAt),
	}
}

// FromSnapshot converts a session snapshot to its API representation.
func FromSnapshot(snap session.Snapshot) Session {
	dto := Session{
		SessionID:            snap.SessionID,
		State:                string(snap.State),
		Identity:             snap.Identity,
		Transcript:           snap.Transcript,
		Processing:           snap.Processing,
		HasReceivedImage:     snap.HasReceivedImage,
		LastDetectedItem:     snap.LastDetectedItem,
		LastDetectedCategory: string(snap.LastDetectedCategory),
		Warning:              snap.Warning,
		DetectionFailure:     snap.DetectionFailure,
		AwaitingCloseEvent:   snap.AwaitingCloseEvent,
		LastOutcome:          snap.LastOutcome,
	}
	if snap.StartedAt != nil {
		dto.StartedAt = formatTime(*snap.StartedAt)
	}
	if u := snap.User; u != nil {
		dto.User = &User{
			Name:          u.Name,
			ID:            u.ID,
			Score:         u.Score,
			ScoreDisplay:  scoreDisplay(u.Score),
			CompleteTimes: u.CompleteTimes,
			ReminderItems: append([]string{}, u.ReminderItems...),
		}
	}
	for _, item := range snap.Items {
		dto.Items = append(dto.Items, ItemCategory{Item: item.Item, Category: string(item.Category)})
	}
	for _, d := range snap.Detections {
		dto.Detections = append(dto.Detections, Detection{Label: d.Label, Percent: d.Percent()})
	}
	if snap.LastProximityStatus != nil {
		code := *snap.LastProximityStatus
		dto.LastProximityStatus = &code
		dto.ProximityText = ProximityText(code)
	}
	if snap.Device != nil {
		dto.Device = FromDeviceStats(*snap.Device)
	}
	return dto
}

// FromDeviceStats converts device channel counters.
func FromDeviceStats(stats device.Stats) *DeviceStatus {
	return &DeviceStatus{
		Connected: stats.Connected,
		Queued:    stats.Queued,
		Sent:      stats.Sent,
		Failed:    stats.Failed,
		Dropped:   stats.Dropped,
		LastError: stats.LastError,
	}
}

// ProximityText describes a proximity sensor code for display.
func ProximityText(code int) string {
	if scoring.IsScoringStatus(code) {
		return "Object detected close"
	}
	return "No close object detected"
}

func scoreDisplay(score *float64) string {
	if score == nil {
		return "-"
	}
	return scoring.FormatScore(*score)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
