package testsupport

import (
	"path/filepath"
	"testing"

	"sortbin/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// External services are pointed at unroutable defaults so nothing leaves the
// machine unless a test overrides them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CaptureDir = filepath.Join(base, "captures")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = ""
	cfgVal.Device.URL = "ws://127.0.0.1:1/"
	cfgVal.Device.SendIntervalMillis = 1
	cfgVal.LLM.APIKey = "test"
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Speech.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDeviceURL points the device channel at a test WebSocket server.
func WithDeviceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.URL = url
	}
}

// WithAPIToken enables bearer auth on /api routes.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithSaveCaptures toggles writing accepted images to the capture dir.
func WithSaveCaptures(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Session.SaveCaptures = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
