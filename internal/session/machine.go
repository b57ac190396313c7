package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sortbin/internal/classify"
	"sortbin/internal/config"
	"sortbin/internal/device"
	"sortbin/internal/identity"
	"sortbin/internal/ledger"
	"sortbin/internal/logging"
	"sortbin/internal/notifications"
	"sortbin/internal/services"
	"sortbin/internal/speech"
)

// Ledger is the user store the machine reads and scores against.
type Ledger interface {
	Lookup(ctx context.Context, name string) (*ledger.User, error)
	Create(ctx context.Context, name string, id int64) (*ledger.User, error)
	RecordOutcome(ctx context.Context, outcome ledger.Outcome) (ledger.Disposal, error)
}

// Sender queues text lines for the capture device.
type Sender interface {
	Send(text string) error
}

// ImageProcessor detects and classifies the item in an image.
type ImageProcessor interface {
	Process(ctx context.Context, image []byte, user *ledger.User) classify.Result
}

type statsReporter interface {
	Stats() device.Stats
}

// Options wires the machine's collaborators. Ledger, Device and Processor
// are required.
type Options struct {
	Ledger      Ledger
	Device      Sender
	Processor   ImageProcessor
	Resolver    identity.Resolver
	Transcriber speech.Transcriber
	Notifier    notifications.Service
	Logger      *slog.Logger

	FallbackUserID  int64
	IdentityTimeout time.Duration
	ClassifyTimeout time.Duration
	// CaptureDir receives accepted images when non-empty.
	CaptureDir string

	Now func() time.Time
}

// OptionsFromConfig fills the tunables from cfg; collaborators are left to the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		FallbackUserID:  cfg.Session.FallbackUserID,
		IdentityTimeout: cfg.IdentityTimeout(),
		ClassifyTimeout: cfg.ClassifyTimeout(),
	}
	if cfg.Session.SaveCaptures {
		opts.CaptureDir = cfg.Paths.CaptureDir
	}
	return opts
}

// Machine is the disposal session state machine.
type Machine struct {
	mu         sync.Mutex
	current    session
	generation uint64

	ledger      Ledger
	device      Sender
	processor   ImageProcessor
	resolver    identity.Resolver
	transcriber speech.Transcriber
	notifier    notifications.Service
	logger      *slog.Logger

	fallbackID      int64
	identityTimeout time.Duration
	classifyTimeout time.Duration
	captureDir      string
	now             func() time.Time
}

// New builds an idle machine.
func New(opts Options) (*Machine, error) {
	if opts.Ledger == nil {
		return nil, errors.New("session: ledger is required")
	}
	if opts.Device == nil {
		return nil, errors.New("session: device sender is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("session: image processor is required")
	}
	m := &Machine{
		current:         session{state: StateIdle},
		ledger:          opts.Ledger,
		device:          opts.Device,
		processor:       opts.Processor,
		resolver:        opts.Resolver,
		transcriber:     opts.Transcriber,
		notifier:        opts.Notifier,
		logger:          logging.NewComponentLogger(opts.Logger, "session"),
		fallbackID:      opts.FallbackUserID,
		identityTimeout: opts.IdentityTimeout,
		classifyTimeout: opts.ClassifyTimeout,
		captureDir:      strings.TrimSpace(opts.CaptureDir),
		now:             opts.Now,
	}
	if m.fallbackID == 0 {
		m.fallbackID = 1000
	}
	if m.identityTimeout <= 0 {
		m.identityTimeout = 30 * time.Second
	}
	if m.classifyTimeout <= 0 {
		m.classifyTimeout = 45 * time.Second
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(nil)
	}
	return m, nil
}

// Start discards any live session and begins a new one awaiting identity.
func (m *Machine) Start(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.current.state
	m.generation++
	m.current = newSession(uuid.NewString(), m.now().UTC())
	m.logger.InfoContext(ctx, "session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String(logging.FieldSessionID, m.current.id),
		logging.String("previous_state", string(previous)),
	)
	return m.snapshotLocked()
}

// Snapshot returns the display fields of the live session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := m.current.snapshot()
	if reporter, ok := m.device.(statsReporter); ok {
		stats := reporter.Stats()
		snap.Device = &stats
	}
	return snap
}

// OnIdentityResolved records the resolver's verdict. A named identity is
// looked up in the ledger and created with the supplied or fallback ID when
// absent; the session then awaits an image. An unknown identity leaves the
// session awaiting identity and images are refused.
func (m *Machine) OnIdentityResolved(ctx context.Context, result identity.Result) (Snapshot, error) {
	const op = "identity"
	m.mu.Lock()
	if err := m.requireState(op, StateAwaitingIdentity); err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	generation := m.generation
	m.mu.Unlock()

	return m.commitIdentity(ctx, generation, result, nil)
}

// ResolveUtterance sends text to the identity resolver and commits its
// verdict. Resolver failures and timeouts degrade to an unknown identity.
func (m *Machine) ResolveUtterance(ctx context.Context, text string) (identity.Result, Snapshot, error) {
	const op = "resolve"
	m.mu.Lock()
	if err := m.requireState(op, StateAwaitingIdentity); err != nil {
		m.mu.Unlock()
		return identity.Result{}, Snapshot{}, err
	}
	generation := m.generation
	ctx = services.WithSessionID(ctx, m.current.id)
	m.mu.Unlock()

	transcript := strings.TrimSpace(text)
	result := m.resolve(ctx, text)
	snap, err := m.commitIdentity(ctx, generation, result, &transcript)
	return result, snap, err
}

// TranscribeUtterance transcribes recorded audio and resolves the transcript.
func (m *Machine) TranscribeUtterance(ctx context.Context, audio []byte, mimeType string) (identity.Result, Snapshot, error) {
	const op = "transcribe"
	if len(audio) == 0 {
		return identity.Result{}, Snapshot{}, newError(KindPreconditionFailed, op, "empty audio", nil)
	}
	if m.transcriber == nil {
		return identity.Result{}, Snapshot{}, newError(KindPreconditionFailed, op, "speech transcription is disabled", nil)
	}
	m.mu.Lock()
	if err := m.requireState(op, StateAwaitingIdentity); err != nil {
		m.mu.Unlock()
		return identity.Result{}, Snapshot{}, err
	}
	m.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.identityTimeout)
	text, err := m.transcriber.Transcribe(callCtx, audio, mimeType)
	cancel()
	if err != nil {
		m.externalFailure(ctx, "transcription", services.WrapCall("speech", "transcribe", err),
			"check speech credentials", "identity reported as unknown")
		text = ""
	}
	return m.ResolveUtterance(ctx, text)
}

func (m *Machine) resolve(ctx context.Context, text string) identity.Result {
	if m.resolver == nil {
		return identity.UnknownResult()
	}
	callCtx, cancel := context.WithTimeout(ctx, m.identityTimeout)
	defer cancel()
	result, err := m.resolver.Resolve(callCtx, text)
	if err != nil {
		m.externalFailure(ctx, "identity resolution", services.WrapCall("identity", "resolve", err),
			"check llm api key and model", "identity reported as unknown")
		return identity.UnknownResult()
	}
	return result
}

// commitIdentity applies result to the session. transcript, when non-nil,
// is stored alongside it; nothing changes if the commit is rejected.
func (m *Machine) commitIdentity(ctx context.Context, generation uint64, result identity.Result, transcript *string) (Snapshot, error) {
	const op = "identity"
	var user *ledger.User
	if result.Known() {
		var err error
		user, err = m.lookupOrCreate(ctx, identity.NormalizeName(result.Name), result.ID)
		if err != nil {
			return Snapshot{}, newError(KindExternalServiceFailure, op, "ledger unavailable", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.generation {
		return Snapshot{}, newError(KindInvalidStateTransition, op, "session restarted while resolving identity", nil)
	}
	if err := m.requireState(op, StateAwaitingIdentity); err != nil {
		return Snapshot{}, err
	}
	if transcript != nil {
		m.current.transcript = *transcript
	}

	if user == nil {
		m.current.identityUnknown = true
		m.current.user = nil
		m.logger.InfoContext(ctx, "identity unknown",
			logging.String(logging.FieldEventType, "identity_unknown"),
			logging.String(logging.FieldSessionID, m.current.id),
		)
		return m.snapshotLocked(), nil
	}

	m.current.identityUnknown = false
	m.current.user = user
	m.current.state = StateAwaitingImage
	m.logger.InfoContext(ctx, "identity resolved",
		logging.String(logging.FieldEventType, "identity_resolved"),
		logging.String(logging.FieldSessionID, m.current.id),
		logging.String("user", user.Name),
		logging.Int64("user_id", user.ID),
	)
	return m.snapshotLocked(), nil
}

func (m *Machine) lookupOrCreate(ctx context.Context, name string, id *int64) (*ledger.User, error) {
	user, err := m.ledger.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	newID := m.fallbackID
	if id != nil {
		newID = *id
	}
	user, err = m.ledger.Create(ctx, name, newID)
	if errors.Is(err, ledger.ErrUserExists) {
		return m.ledger.Lookup(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "user registered",
		logging.String(logging.FieldEventType, "user_created"),
		logging.String("user", user.Name),
		logging.Int64("user_id", user.ID),
	)
	return user, nil
}

func (m *Machine) requireState(op string, want State) error {
	if m.current.state != want {
		return newError(KindInvalidStateTransition, op,
			fmt.Sprintf("session is %s, not %s", m.current.state, want), nil)
	}
	return nil
}

func (m *Machine) send(ctx context.Context, text string) {
	if err := m.device.Send(text); err != nil {
		logging.WarnWithContext(m.logger, "device message not queued", "device_delivery_failed",
			logging.String("message", text),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "device channel is shutting down"),
			logging.String(logging.FieldImpact, "device will not display this result"),
		)
		return
	}
	m.logger.DebugContext(ctx, "device message queued", logging.String("message", text))
}

// externalFailure logs a degraded external call and notifies in the background.
func (m *Machine) externalFailure(ctx context.Context, label string, err error, hint, impact string) {
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), label+" failed", "external_service_failure",
		logging.String("error_kind", services.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, impact),
	)
	m.notifyAsync(ctx, func(ctx context.Context) error {
		return m.notifier.NotifyError(ctx, err, label)
	})
}

func (m *Machine) notifyAsync(ctx context.Context, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := fn(ctx); err != nil {
			m.logger.Debug("notification failed", logging.Error(err))
		}
	}()
}
