package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

func chatServer(t *testing.T, handler func(calls int, w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(calls, w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeChoice(t *testing.T, w http.ResponseWriter, choice map[string]any) {
	t.Helper()
	payload := map[string]any{"choices": []any{choice}}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := chatServer(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat["type"] != jsonResponseType || req.Model != "demo-model" {
			t.Errorf("unexpected request: %#v", req)
		}
		writeChoice(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := chatServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	})

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func TestCompleteJSONSkipsBlankChoices(t *testing.T) {
	server := chatServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"finish_reason": "stop", "message": map[string]any{"content": "  "}},
				map[string]any{"finish_reason": "stop", "message": map[string]any{"content": "```json\n{\"name\":\"alice\"}\n```"}},
			},
		})
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	var parsed struct {
		Name string `json:"name"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil || parsed.Name != "alice" {
		t.Fatalf("unexpected content %q err=%v", content, err)
	}
}

func TestCompleteJSONReportsRefusal(t *testing.T) {
	server := chatServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeChoice(t, w, map[string]any{
			"finish_reason": "stop",
			"message":       map[string]any{"content": "", "refusal": "cannot identify people"},
		})
	})
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithRetryMaxAttempts(1),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil || !strings.Contains(err.Error(), "cannot identify people") {
		t.Fatalf("expected refusal in error, got %v", err)
	}
}

func TestCompleteJSONEmptyContentHasSnippet(t *testing.T) {
	server := chatServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeChoice(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": ""}})
	})

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := chatServer(t, func(n int, w http.ResponseWriter, _ *http.Request) {
		calls = n
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		writeChoice(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	})

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := chatServer(t, func(n int, w http.ResponseWriter, _ *http.Request) {
		calls = n
		w.WriteHeader(http.StatusBadRequest)
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestCompleteJSONRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestDecodeLLMJSONStripsFencesAndProse(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	for _, content := range []string{
		"```json\n{\"ok\":true}\n```",
		"Sure! Here you go: {\"ok\":true} Hope that helps.",
	} {
		parsed.OK = false
		if err := DecodeLLMJSON(content, &parsed); err != nil || !parsed.OK {
			t.Fatalf("DecodeLLMJSON(%q) = %v ok=%v", content, err, parsed.OK)
		}
	}
	if err := DecodeLLMJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestNewCompleterSelectsProvider(t *testing.T) {
	c, err := NewCompleter(Config{Provider: "OpenRouter", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewCompleter: %v", err)
	}
	if _, ok := c.(*Client); !ok {
		t.Fatalf("expected *Client, got %T", c)
	}
	c, err = NewCompleter(Config{Provider: ProviderAnthropic, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewCompleter: %v", err)
	}
	if _, ok := c.(*AnthropicClient); !ok {
		t.Fatalf("expected *AnthropicClient, got %T", c)
	}
	if _, err := NewCompleter(Config{Provider: "local"}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

func TestAnthropicClientReturnsFirstTextBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model  string `json:"model"`
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "claude-test" || len(body.System) != 1 || !strings.Contains(body.System[0].Text, jsonOnlyInstruction) {
			t.Errorf("unexpected request body: %#v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"content": []any{
				map[string]any{"type": "text", "text": `{"category":"recyclable waste"}`},
			},
			"usage": map[string]any{"input_tokens": 3, "output_tokens": 5},
		})
	}))
	defer server.Close()

	client := NewAnthropicClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "claude-test"},
		option.WithMaxRetries(0),
	)
	content, err := client.CompleteJSON(context.Background(), "classify", "bottle")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"category":"recyclable waste"}` {
		t.Fatalf("unexpected content %q", content)
	}
}
