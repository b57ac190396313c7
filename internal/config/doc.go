// Package config loads, normalizes, and validates sortbin configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and GOOGLE_APPLICATION_CREDENTIALS. The Config type
// centralizes every knob the daemon and CLI need so the device endpoint, LLM
// credentials, and session timeouts are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical delivery modes, and clear validation errors.
package config
