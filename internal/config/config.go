package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	CaptureDir string `toml:"capture_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Device contains configuration for the outbound connection to the capture device.
type Device struct {
	URL                 string `toml:"url"`
	SendIntervalMillis  int    `toml:"send_interval_ms"`
	DialTimeoutSeconds  int    `toml:"dial_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	// Delivery is either "at_most_once" (failed messages are dropped) or
	// "at_least_once" (failed messages are retried over a fresh connection
	// until MaxAttempts writes have failed).
	Delivery    string `toml:"delivery"`
	MaxAttempts int    `toml:"max_attempts"`
}

// LLM contains the connection settings shared by identity resolution and
// waste classification.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Detector contains configuration for the object detection backends.
type Detector struct {
	// Backends lists detection backends in fallback order ("http", "vision").
	Backends      []string `toml:"backends"`
	Endpoint      string   `toml:"endpoint"`
	MinConfidence float64  `toml:"min_confidence"`
	Credentials   string   `toml:"credentials"`
	MaxLabels     int      `toml:"max_labels"`
}

// Speech contains configuration for utterance transcription.
type Speech struct {
	Enabled      bool   `toml:"enabled"`
	LanguageCode string `toml:"language_code"`
	Credentials  string `toml:"credentials"`
}

// Session contains configuration for the disposal session state machine.
type Session struct {
	FallbackUserID         int64 `toml:"fallback_user_id"`
	IdentityTimeoutSeconds int   `toml:"identity_timeout_seconds"`
	ClassifyTimeoutSeconds int   `toml:"classify_timeout_seconds"`
	SaveCaptures           bool  `toml:"save_captures"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Disposals      bool   `toml:"disposals"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for sortbin.
//
// Configuration sections by subsystem:
//   - Paths: data, log and capture directories plus the API bind address
//   - Device: WebSocket endpoint and delivery semantics for the capture device
//   - LLM: provider settings used for identity resolution and classification
//   - Detector: object detection backends and their fallback order
//   - Speech: optional transcription of recorded utterances
//   - Session: timeouts and defaults for the disposal state machine
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Device        Device        `toml:"device"`
	LLM           LLM           `toml:"llm"`
	Detector      Detector      `toml:"detector"`
	Speech        Speech        `toml:"speech"`
	Session       Session       `toml:"session"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sortbin/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sortbin.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Session.SaveCaptures && strings.TrimSpace(c.Paths.CaptureDir) != "" {
		if err := os.MkdirAll(c.Paths.CaptureDir, 0o755); err != nil {
			return fmt.Errorf("create capture directory %q: %w", c.Paths.CaptureDir, err)
		}
	}
	return nil
}

// LedgerPath returns the location of the user ledger database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// LockPath returns the location of the daemon single-instance lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "sortbind.lock")
}

// PIDPath returns the location of the daemon PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "sortbind.pid")
}

// IdentityTimeout returns the bound applied to identity resolution calls.
func (c *Config) IdentityTimeout() time.Duration {
	return secondsOrDefault(c.Session.IdentityTimeoutSeconds, defaultIdentityTimeoutSeconds)
}

// ClassifyTimeout returns the bound applied to detection and classification calls.
func (c *Config) ClassifyTimeout() time.Duration {
	return secondsOrDefault(c.Session.ClassifyTimeoutSeconds, defaultClassifyTimeoutSeconds)
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the LLM settings handed to client constructors.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
