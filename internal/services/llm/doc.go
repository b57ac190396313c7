// Package llm provides the chat completion backends used for identity
// resolution and waste classification.
//
// Two providers implement Completer: Client talks to the OpenRouter chat
// completion API over plain HTTP, and AnthropicClient uses the Anthropic SDK.
// NewCompleter picks one from Config.Provider.
//
// # Retry Behaviour
//
// The OpenRouter client retries on HTTP 408/429/5xx errors, empty completions,
// and network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Context cancellation aborts retries immediately. The
// Anthropic SDK applies its own retry policy.
//
// # Decoding
//
// Models often wrap JSON in code fences or prose. DecodeLLMJSON strips those
// before unmarshalling.
package llm
