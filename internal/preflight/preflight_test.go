package preflight

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sortbin/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "good-key", BaseURL: srv.URL, Model: "demo"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "bad-key", BaseURL: srv.URL, Model: "demo"})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
}

func TestCheckLLM_AnthropicChecksCredentialsOnly(t *testing.T) {
	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{
		Provider: config.ProviderAnthropic,
		APIKey:   "sk-ant",
		Model:    "claude-test",
	})
	if !result.Passed || !strings.Contains(result.Detail, "Anthropic") {
		t.Fatalf("expected credential pass, got %+v", result)
	}
}

func TestCheckReachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()

	if result := CheckReachable(context.Background(), "Capture device", "ws://"+addr+"/"); !result.Passed {
		t.Fatalf("expected reachable, got %s", result.Detail)
	}

	listener.Close()
	if result := CheckReachable(context.Background(), "Capture device", "ws://"+addr+"/"); result.Passed {
		t.Fatal("expected closed port to fail")
	}
	if result := CheckReachable(context.Background(), "Capture device", ""); result.Passed {
		t.Fatal("expected missing url to fail")
	}
}

func TestDialAddressDefaultsPortByScheme(t *testing.T) {
	cases := map[string]string{
		"ws://10.206.92.156:81/":      "10.206.92.156:81",
		"ws://camera.local/":          "camera.local:80",
		"https://vision.example.com/": "vision.example.com:443",
	}
	for raw, want := range cases {
		got, err := dialAddress(raw)
		if err != nil || got != want {
			t.Fatalf("dialAddress(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, true)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_OfflineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Session.SaveCaptures = false
	cfg.LLM.APIKey = "key"

	results := RunAll(context.Background(), &cfg, true)
	// Data + log directories and LLM credentials.
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesCaptureDirWhenSaving(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.CaptureDir = filepath.Join(t.TempDir(), "missing")
	cfg.Session.SaveCaptures = true

	results := RunAll(context.Background(), &cfg, true)
	failed := Failed(results)
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
	}
	if got := strings.Join(names, ","); got != "Capture directory,LLM" {
		t.Fatalf("unexpected failed checks: %q", got)
	}
}
