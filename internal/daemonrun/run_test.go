package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sortbin/internal/config"
	"sortbin/internal/device"
	"sortbin/internal/logging"
	"sortbin/internal/notifications"
	"sortbin/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "sortbind-1.log")
	second := filepath.Join(dir, "sortbind-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "sortbind.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "sortbind-2.log" {
		t.Fatalf("expected pointer to newest log, got %q", data)
	}
}

func TestBuildMachineWithHTTPDetector(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Detector.Backends = []string{config.DetectorHTTP}
	store := testsupport.MustOpenLedger(t, cfg)
	channel := device.NewChannel(device.OptionsFromConfig(cfg, logging.NewNop()))
	t.Cleanup(func() { _ = channel.Close(context.Background()) })

	machine, closers, err := buildMachine(context.Background(), cfg, store, channel, notifications.NewService(nil), logging.NewNop())
	if err != nil {
		t.Fatalf("buildMachine: %v", err)
	}
	if len(closers) != 1 {
		t.Fatalf("expected detector closer only, got %d", len(closers))
	}
	if snap := machine.Snapshot(); snap.State != "idle" {
		t.Fatalf("expected idle machine, got %s", snap.State)
	}
}

func TestBuildMachineRejectsUnknownProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.Provider = "local"
	store := testsupport.MustOpenLedger(t, cfg)
	channel := device.NewChannel(device.OptionsFromConfig(cfg, logging.NewNop()))
	t.Cleanup(func() { _ = channel.Close(context.Background()) })

	if _, _, err := buildMachine(context.Background(), cfg, store, channel, notifications.NewService(nil), logging.NewNop()); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}
