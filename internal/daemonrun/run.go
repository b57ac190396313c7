package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sortbin/internal/classify"
	"sortbin/internal/config"
	"sortbin/internal/daemon"
	"sortbin/internal/device"
	"sortbin/internal/identity"
	"sortbin/internal/ledger"
	"sortbin/internal/logging"
	"sortbin/internal/notifications"
	"sortbin/internal/preflight"
	"sortbin/internal/services/llm"
	"sortbin/internal/session"
	"sortbin/internal/speech"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight disables the startup network checks.
	SkipPreflight bool
}

// Run starts the sortbin daemon and blocks until a shutdown signal arrives
// or cmdCtx is canceled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("sortbind-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update sortbind.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "sortbind-*.log", Exclude: []string{logPath}},
	)
	logConfigSnapshot(logger, cfg)
	runPreflight(signalCtx, logger, cfg, opts.SkipPreflight)

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}

	channel := device.NewChannel(device.OptionsFromConfig(cfg, logger))
	notifier := notifications.NewService(cfg)

	machine, closers, err := buildMachine(signalCtx, cfg, store, channel, notifier, logger)
	if err != nil {
		_ = channel.Close(context.Background())
		_ = store.Close()
		return err
	}

	daemonOpts := []daemon.Option{daemon.WithNotifier(notifier)}
	for _, fn := range closers {
		daemonOpts = append(daemonOpts, daemon.WithCloser(fn))
	}
	d, err := daemon.New(cfg, store, machine, channel, logger, daemonOpts...)
	if err != nil {
		_ = channel.Close(context.Background())
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon shutdown incomplete", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("sortbin daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// buildMachine wires the LLM, detector, and speech backends into a session
// machine. The returned closers release cloud clients on shutdown.
func buildMachine(ctx context.Context, cfg *config.Config, store *ledger.Store, channel *device.Channel, notifier notifications.Service, logger *slog.Logger) (*session.Machine, []func() error, error) {
	llmCfg := cfg.GetLLM()
	completer, err := llm.NewCompleter(llm.Config{
		Provider:       llmCfg.Provider,
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build llm client: %w", err)
	}

	var closers []func() error
	detector, err := classify.NewDetectorFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build detector: %w", err)
	}
	closers = append(closers, detector.Close)

	opts := session.OptionsFromConfig(cfg)
	opts.Ledger = store
	opts.Device = channel
	opts.Processor = classify.NewAggregator(detector, classify.NewLLMClassifier(completer),
		classify.WithLogger(logger),
	)
	opts.Resolver = identity.NewLLMResolver(completer)
	opts.Notifier = notifier
	opts.Logger = logger

	if cfg.Speech.Enabled {
		transcriber, err := speech.NewGoogleTranscriber(ctx, cfg.Speech.Credentials, cfg.Speech.LanguageCode)
		if err != nil {
			logging.WarnWithContext(logger, "speech transcription unavailable", "speech_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "set speech.credentials or GOOGLE_APPLICATION_CREDENTIALS"),
				logging.String(logging.FieldImpact, "audio identity uploads are rejected; text identity still works"),
			)
		} else {
			opts.Transcriber = transcriber
			closers = append(closers, transcriber.Close)
		}
	}

	machine, err := session.New(opts)
	if err != nil {
		for _, fn := range closers {
			_ = fn()
		}
		return nil, nil, fmt.Errorf("build session machine: %w", err)
	}
	return machine, closers, nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, offline bool) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, offline)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run sortbin status for details"),
			logging.String(logging.FieldImpact, "sessions depending on this service degrade"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "sortbind.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("device_url", cfg.Device.URL),
		logging.String("delivery", cfg.Device.Delivery),
		logging.String("llm_provider", cfg.LLM.Provider),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("detector_backends", strings.Join(cfg.Detector.Backends, ",")),
		logging.Bool("speech_enabled", cfg.Speech.Enabled),
		logging.Bool("save_captures", cfg.Session.SaveCaptures),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
