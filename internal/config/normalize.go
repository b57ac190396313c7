package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDevice()
	c.normalizeLLM()
	if err := c.normalizeDetector(); err != nil {
		return err
	}
	if err := c.normalizeSpeech(); err != nil {
		return err
	}
	c.normalizeSession()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CaptureDir) == "" {
		c.Paths.CaptureDir = defaultCaptureDir
	}
	if c.Paths.CaptureDir, err = expandPath(c.Paths.CaptureDir); err != nil {
		return fmt.Errorf("paths.capture_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SORTBIN_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDevice() {
	c.Device.URL = strings.TrimSpace(c.Device.URL)
	if value, ok := os.LookupEnv("SORTBIN_DEVICE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Device.URL = strings.TrimSpace(value)
	}
	if c.Device.SendIntervalMillis < 0 {
		c.Device.SendIntervalMillis = 0
	}
	if c.Device.DialTimeoutSeconds <= 0 {
		c.Device.DialTimeoutSeconds = defaultDialTimeoutSeconds
	}
	if c.Device.WriteTimeoutSeconds <= 0 {
		c.Device.WriteTimeoutSeconds = defaultWriteTimeoutSeconds
	}
	c.Device.Delivery = strings.ToLower(strings.TrimSpace(c.Device.Delivery))
	c.Device.Delivery = strings.ReplaceAll(c.Device.Delivery, "-", "_")
	if c.Device.Delivery == "" {
		c.Device.Delivery = defaultDelivery
	}
	if c.Device.MaxAttempts <= 0 {
		c.Device.MaxAttempts = defaultDeliveryMaxAttempts
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		envKeys := []string{"SORTBIN_LLM_API_KEY", "OPENROUTER_API_KEY"}
		if c.LLM.Provider == ProviderAnthropic {
			envKeys = []string{"SORTBIN_LLM_API_KEY", "ANTHROPIC_API_KEY"}
		}
		for _, key := range envKeys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" && c.LLM.Provider == ProviderOpenRouter {
		c.LLM.BaseURL = defaultOpenRouterBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case ProviderAnthropic:
			c.LLM.Model = defaultAnthropicModel
		default:
			c.LLM.Model = defaultOpenRouterModel
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeDetector() error {
	backends := make([]string, 0, len(c.Detector.Backends))
	seen := make(map[string]struct{}, len(c.Detector.Backends))
	for _, backend := range c.Detector.Backends {
		normalized := strings.ToLower(strings.TrimSpace(backend))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		backends = append(backends, normalized)
	}
	c.Detector.Backends = backends
	c.Detector.Endpoint = strings.TrimSpace(c.Detector.Endpoint)
	if c.Detector.Endpoint == "" {
		c.Detector.Endpoint = defaultDetectorEndpoint
	}
	if c.Detector.MaxLabels <= 0 {
		c.Detector.MaxLabels = defaultDetectorMaxLabels
	}
	return c.normalizeCredentials(&c.Detector.Credentials, "detector.credentials")
}

func (c *Config) normalizeSpeech() error {
	c.Speech.LanguageCode = strings.TrimSpace(c.Speech.LanguageCode)
	if c.Speech.LanguageCode == "" {
		c.Speech.LanguageCode = defaultSpeechLanguageCode
	}
	return c.normalizeCredentials(&c.Speech.Credentials, "speech.credentials")
}

// normalizeCredentials expands a credentials file path, falling back to
// GOOGLE_APPLICATION_CREDENTIALS. Inline JSON is left untouched.
func (c *Config) normalizeCredentials(value *string, key string) error {
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		if env, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS"); ok {
			trimmed = strings.TrimSpace(env)
		}
	}
	if trimmed == "" || strings.HasPrefix(trimmed, "{") {
		*value = trimmed
		return nil
	}
	expanded, err := expandPath(trimmed)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*value = expanded
	return nil
}

func (c *Config) normalizeSession() {
	if c.Session.FallbackUserID <= 0 {
		c.Session.FallbackUserID = defaultFallbackUserID
	}
	if c.Session.IdentityTimeoutSeconds <= 0 {
		c.Session.IdentityTimeoutSeconds = defaultIdentityTimeoutSeconds
	}
	if c.Session.ClassifyTimeoutSeconds <= 0 {
		c.Session.ClassifyTimeoutSeconds = defaultClassifyTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
