package config

const (
	defaultDataDir                = "~/.local/share/sortbin"
	defaultLogDir                 = "~/.local/share/sortbin/logs"
	defaultCaptureDir             = "~/.local/share/sortbin/captures"
	defaultAPIBind                = "0.0.0.0:12345"
	defaultDeviceURL              = "ws://10.206.92.156:81/"
	defaultSendIntervalMillis     = 100
	defaultDialTimeoutSeconds     = 5
	defaultWriteTimeoutSeconds    = 5
	defaultDelivery               = DeliveryAtMostOnce
	defaultDeliveryMaxAttempts    = 3
	defaultLLMProvider            = ProviderOpenRouter
	defaultOpenRouterBaseURL      = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModel        = "openai/gpt-4o-mini"
	defaultAnthropicModel         = "claude-sonnet-4-5-20250929"
	defaultLLMReferer             = "https://github.com/sortbin/sortbin"
	defaultLLMTitle               = "sortbin"
	defaultLLMTimeoutSeconds      = 30
	defaultDetectorEndpoint       = "http://127.0.0.1:8088/detect"
	defaultDetectorMinConfidence  = 0.5
	defaultDetectorMaxLabels      = 10
	defaultSpeechLanguageCode     = "en-US"
	defaultFallbackUserID         = 1000
	defaultIdentityTimeoutSeconds = 30
	defaultClassifyTimeoutSeconds = 45
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Delivery modes for the device channel.
const (
	DeliveryAtMostOnce  = "at_most_once"
	DeliveryAtLeastOnce = "at_least_once"
)

// LLM providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Detector backends.
const (
	DetectorHTTP   = "http"
	DetectorVision = "vision"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			CaptureDir: defaultCaptureDir,
			APIBind:    defaultAPIBind,
		},
		Device: Device{
			URL:                 defaultDeviceURL,
			SendIntervalMillis:  defaultSendIntervalMillis,
			DialTimeoutSeconds:  defaultDialTimeoutSeconds,
			WriteTimeoutSeconds: defaultWriteTimeoutSeconds,
			Delivery:            defaultDelivery,
			MaxAttempts:         defaultDeliveryMaxAttempts,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Detector: Detector{
			Backends:      []string{DetectorHTTP, DetectorVision},
			Endpoint:      defaultDetectorEndpoint,
			MinConfidence: defaultDetectorMinConfidence,
			MaxLabels:     defaultDetectorMaxLabels,
		},
		Speech: Speech{
			LanguageCode: defaultSpeechLanguageCode,
		},
		Session: Session{
			FallbackUserID:         defaultFallbackUserID,
			IdentityTimeoutSeconds: defaultIdentityTimeoutSeconds,
			ClassifyTimeoutSeconds: defaultClassifyTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Disposals:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
