package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sortbin/internal/api"
	"sortbin/internal/ledger"
	"sortbin/internal/testsupport"
)

func TestUsersListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	requireContains(t, out, "No users yet")

	ctx := context.Background()
	testsupport.MustCreateUser(t, env.store, "alice", 1000)
	if _, err := env.store.RecordOutcome(ctx, ledger.Outcome{
		Name:          "alice",
		Score:         80,
		CompleteTimes: 1,
		ReminderItems: []string{"battery"},
		Disposal:      ledger.Disposal{Item: "bottle", Category: "recyclable waste", StatusCode: 1, Correct: true},
	}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	out, err = env.run(t, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	for _, want := range []string{"alice", "1000", "80.0", "battery"} {
		requireContains(t, out, want)
	}

	out, err = env.run(t, "users", "show", "Alice", "--limit", "5")
	if err != nil {
		t.Fatalf("users show: %v", err)
	}
	for _, want := range []string{"bottle", "recyclable waste", "correct"} {
		requireContains(t, out, want)
	}

	out, err = env.run(t, "users", "--json")
	if err != nil {
		t.Fatalf("users --json: %v", err)
	}
	var users []api.User
	if err := json.Unmarshal([]byte(out), &users); err != nil {
		t.Fatalf("decode users json: %v\n%s", err, out)
	}
	if len(users) != 1 || users[0].Score == nil || *users[0].Score != 80 {
		t.Fatalf("unexpected users json: %+v", users)
	}

	if _, err := env.run(t, "users", "show", "nobody"); err == nil || !strings.Contains(err.Error(), "user not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSessionStartAndIdentify(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "session", "start")
	if err != nil {
		t.Fatalf("session start: %v", err)
	}
	requireContains(t, out, "waiting for identity")

	out, err = env.run(t, "session", "identify", "this", "is", "alice")
	if err != nil {
		t.Fatalf("session identify: %v", err)
	}
	requireContains(t, out, "Identified alice (ID 1000, score -)")

	out, err = env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "awaiting_image")

	if _, err := env.run(t, "session", "identify"); err == nil {
		t.Fatal("expected error without utterance or --name")
	}
}

func TestIdentifyOutsideSessionIsRejected(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "session", "identify", "--name", "bob")
	if err == nil {
		t.Fatal("expected identify without a session to fail")
	}
	requireContains(t, err.Error(), "invalid_state_transition")
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !status.Running || status.PID != os.Getpid() || status.Session.State != "idle" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCommandsReportUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	base := []string{"--config", env.configPath, "--api", "127.0.0.1:1"}

	out, err := runCLI(t, append(base, "status")...)
	if err != nil {
		t.Fatalf("status with daemon down: %v", err)
	}
	requireContains(t, out, "API not reachable")

	_, err = runCLI(t, append(base, "users")...)
	if err == nil {
		t.Fatal("expected users to fail without a daemon")
	}
	requireContains(t, err.Error(), "sortbin daemon")
}

func TestWrongTokenIsExplained(t *testing.T) {
	env := setupCLITestEnv(t)
	cfg := *env.cfg
	cfg.Paths.APIToken = "wrong"
	path := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, path, &cfg)

	_, err := runCLI(t, "--config", path, "--api", env.apiAddress, "users")
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
	requireContains(t, err.Error(), "paths.api_token")
}

func TestNotifyTestWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "notify", "test")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}
