package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// User is a ledger user in transport form. Score is null until the first
// scored disposal.
type User struct {
	Name          string   `json:"name"`
	ID            int64    `json:"id"`
	Score         *float64 `json:"score"`
	ScoreDisplay  string   `json:"scoreDisplay"`
	CompleteTimes int      `json:"completeTimes"`
	ReminderItems []string `json:"reminderItems"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

// Disposal is one scored disposal from a user's history.
type Disposal struct {
	ID            string  `json:"id"`
	Item          string  `json:"item"`
	Category      string  `json:"category"`
	StatusCode    int     `json:"statusCode"`
	Correct       bool    `json:"correct"`
	Score         float64 `json:"score"`
	CompleteTimes int     `json:"completeTimes"`
	CreatedAt     string  `json:"createdAt,omitempty"`
}

// UserListResponse wraps every ledger user.
type UserListResponse struct {
	Users []User `json:"users"`
}

// UserDetailResponse is a user with their most recent disposals.
type UserDetailResponse struct {
	User    User       `json:"user"`
	History []Disposal `json:"history"`
}

// ItemCategory is one classifier verdict.
type ItemCategory struct {
	Item     string `json:"item"`
	Category string `json:"category"`
}

// Detection is one detector label with its confidence as a percentage.
type Detection struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
}

// DeviceStatus reports the device channel's delivery counters.
type DeviceStatus struct {
	Connected bool   `json:"connected"`
	Queued    int    `json:"queued"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Dropped   int    `json:"dropped"`
	LastError string `json:"lastError,omitempty"`
}

// Session is the display view of the live disposal session.
type Session struct {
	SessionID            string         `json:"sessionId,omitempty"`
	State                string         `json:"state"`
	StartedAt            string         `json:"startedAt,omitempty"`
	Identity             string         `json:"identity,omitempty"`
	User                 *User          `json:"user,omitempty"`
	Transcript           string         `json:"transcript,omitempty"`
	Processing           bool           `json:"processing"`
	HasReceivedImage     bool           `json:"hasReceivedImage"`
	LastDetectedItem     string         `json:"lastDetectedItem,omitempty"`
	LastDetectedCategory string         `json:"lastDetectedCategory,omitempty"`
	Items                []ItemCategory `json:"items,omitempty"`
	Detections           []Detection    `json:"detections,omitempty"`
	Warning              string         `json:"warning,omitempty"`
	DetectionFailure     string         `json:"detectionFailure,omitempty"`
	AwaitingCloseEvent   bool           `json:"awaitingCloseEvent"`
	LastProximityStatus  *int           `json:"lastProximityStatus,omitempty"`
	ProximityText        string         `json:"proximityText,omitempty"`
	LastOutcome          string         `json:"lastOutcome,omitempty"`
	Device               *DeviceStatus  `json:"device,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool    `json:"running"`
	PID          int     `json:"pid"`
	LedgerPath   string  `json:"ledgerPath"`
	LockFilePath string  `json:"lockFilePath"`
	Users        int     `json:"users"`
	Disposals    int     `json:"disposals"`
	Session      Session `json:"session"`
}

// IdentityRequest submits either an utterance to resolve or an identity
// resolved elsewhere.
type IdentityRequest struct {
	Text    string `json:"text,omitempty"`
	Name    string `json:"name,omitempty"`
	ID      *int64 `json:"id,omitempty"`
	Unknown bool   `json:"unknown,omitempty"`
}

// IdentityResponse reports the resolved identity and the session after it
// was applied.
type IdentityResponse struct {
	Identity string  `json:"identity"`
	Name     string  `json:"name,omitempty"`
	ID       *int64  `json:"id,omitempty"`
	Unknown  bool    `json:"unknown"`
	Session  Session `json:"session"`
}

// DeviceResponse is the envelope returned to the camera on /distance and on
// /image failures.
type DeviceResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ImageResponse is returned to the camera for an accepted image.
type ImageResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	BestItem string `json:"best_item"`
	Category string `json:"category"`
	Warning  string `json:"warning,omitempty"`
}

// ErrorResponse is the body of every non-2xx /api response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
