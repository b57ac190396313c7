package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"sortbin/internal/api"
	"sortbin/internal/config"
	"sortbin/internal/device"
	"sortbin/internal/ledger"
	"sortbin/internal/logging"
	"sortbin/internal/notifications"
	"sortbin/internal/session"
)

// Daemon owns the ledger, session machine, and device channel for one
// process and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *ledger.Store
	machine  *session.Machine
	channel  *device.Channel
	notifier notifications.Service
	closers  []func() error

	lockPath string
	pidPath  string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) {
		if notifier != nil {
			d.notifier = notifier
		}
	}
}

// WithCloser registers a release hook run by Close after the device channel
// drains, such as a detector or transcriber client.
func WithCloser(fn func() error) Option {
	return func(d *Daemon) {
		if fn != nil {
			d.closers = append(d.closers, fn)
		}
	}
}

// New constructs a daemon around initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, machine *session.Machine, channel *device.Channel, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || machine == nil || channel == nil {
		return nil, errors.New("daemon requires config, ledger, session machine, and device channel")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		machine:  machine,
		channel:  channel,
		notifier: notifications.NewService(cfg),
		lockPath: cfg.LockPath(),
		pidPath:  cfg.PIDPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, writes the PID file, and begins serving
// HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sortbin daemon instance is already running")
	}
	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("sortbin daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

// Stop stops serving HTTP and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("sortbin daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon, drains the device channel, and closes the ledger.
func (d *Daemon) Close() error {
	d.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if err := d.channel.Close(drainCtx); err != nil && !errors.Is(err, device.ErrClosed) {
		errs = append(errs, fmt.Errorf("close device channel: %w", err))
	}
	for _, fn := range d.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ledger: %w", err))
	}
	return errors.Join(errs...)
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound API address, or the configured bind before
// Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Machine exposes the session machine for in-process callers.
func (d *Daemon) Machine() *session.Machine {
	return d.machine
}

// Status returns the current daemon status with ledger totals and the live
// session.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LedgerPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		Session:      api.FromSnapshot(d.machine.Snapshot()),
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("ledger stats unavailable", logging.Error(err))
		return status
	}
	status.Users = stats.Users
	status.Disposals = stats.Disposals
	return status
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
