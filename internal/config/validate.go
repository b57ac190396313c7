package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDevice() error {
	if strings.TrimSpace(c.Device.URL) == "" {
		return errors.New("device.url must be set")
	}
	parsed, err := url.Parse(c.Device.URL)
	if err != nil {
		return fmt.Errorf("device.url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("device.url must use ws:// or wss://, got %q", c.Device.URL)
	}
	switch c.Device.Delivery {
	case DeliveryAtMostOnce, DeliveryAtLeastOnce:
	default:
		return fmt.Errorf("device.delivery must be %q or %q, got %q", DeliveryAtMostOnce, DeliveryAtLeastOnce, c.Device.Delivery)
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenRouter, ProviderAnthropic, c.LLM.Provider)
	}
	return nil
}

func (c *Config) validateDetector() error {
	for _, backend := range c.Detector.Backends {
		switch backend {
		case DetectorHTTP, DetectorVision:
		default:
			return fmt.Errorf("detector.backends: unsupported backend %q", backend)
		}
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return errors.New("detector.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateSession() error {
	return ensurePositiveMap(map[string]int{
		"session.identity_timeout_seconds": c.Session.IdentityTimeoutSeconds,
		"session.classify_timeout_seconds": c.Session.ClassifyTimeoutSeconds,
		"notifications.request_timeout":    c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
