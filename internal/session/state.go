package session

import (
	"slices"
	"time"

	"sortbin/internal/classify"
	"sortbin/internal/device"
	"sortbin/internal/ledger"
)

// State is the position of the live session in the disposal cycle.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingIdentity State = "awaiting_identity"
	StateAwaitingImage    State = "awaiting_image"
	StateAwaitingClose    State = "awaiting_close"
)

// IdentityUnknown is shown when the speaker could not be identified.
const IdentityUnknown = "unknown"

type session struct {
	id        string
	startedAt time.Time
	state     State

	transcript      string
	identityUnknown bool
	user            *ledger.User

	processing       bool
	hasReceivedImage bool
	hasResult        bool
	item             string
	category         classify.Category
	items            []classify.ItemCategory
	detections       []classify.Detection
	warning          *classify.Warning
	failure          string

	awaitingClose bool
	lastProximity *int
	lastOutcome   string
}

func newSession(id string, now time.Time) session {
	return session{id: id, startedAt: now, state: StateAwaitingIdentity}
}

// UserView is the display form of the resolved user.
type UserView struct {
	Name          string
	ID            int64
	Score         *float64
	CompleteTimes int
	ReminderItems []string
}

// Snapshot is a read-only copy of the display-relevant session fields.
type Snapshot struct {
	SessionID            string
	State                State
	StartedAt            *time.Time
	Identity             string
	User                 *UserView
	Transcript           string
	Processing           bool
	HasReceivedImage     bool
	LastDetectedItem     string
	LastDetectedCategory classify.Category
	Items                []classify.ItemCategory
	Detections           []classify.Detection
	Warning              string
	DetectionFailure     string
	AwaitingCloseEvent   bool
	LastProximityStatus  *int
	LastOutcome          string
	Device               *device.Stats
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:            s.id,
		State:                s.state,
		Transcript:           s.transcript,
		Processing:           s.processing,
		HasReceivedImage:     s.hasReceivedImage,
		LastDetectedItem:     s.item,
		LastDetectedCategory: s.category,
		Items:                slices.Clone(s.items),
		Detections:           slices.Clone(s.detections),
		DetectionFailure:     s.failure,
		AwaitingCloseEvent:   s.awaitingClose,
		LastOutcome:          s.lastOutcome,
	}
	if snap.State == "" {
		snap.State = StateIdle
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	switch {
	case s.user != nil:
		snap.Identity = s.user.Name
		u := s.user.Clone()
		snap.User = &UserView{
			Name:          u.Name,
			ID:            u.ID,
			Score:         u.Score,
			CompleteTimes: u.CompleteTimes,
			ReminderItems: u.ReminderItems,
		}
	case s.identityUnknown:
		snap.Identity = IdentityUnknown
	}
	if s.warning != nil {
		snap.Warning = s.warning.Text()
	}
	if s.lastProximity != nil {
		code := *s.lastProximity
		snap.LastProximityStatus = &code
	}
	return snap
}
