package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sortbin/internal/classify"
	"sortbin/internal/config"
	"sortbin/internal/daemon"
	"sortbin/internal/device"
	"sortbin/internal/identity"
	"sortbin/internal/ledger"
	"sortbin/internal/logging"
	"sortbin/internal/session"
	"sortbin/internal/testsupport"
)

type fixedDetector []classify.Detection

func (d fixedDetector) Detect(context.Context, []byte) ([]classify.Detection, error) {
	return d, nil
}

type fixedClassifier map[string]classify.Category

func (c fixedClassifier) Classify(_ context.Context, items []string) ([]classify.ItemCategory, error) {
	out := make([]classify.ItemCategory, 0, len(items))
	for _, item := range items {
		if category, ok := c[item]; ok {
			out = append(out, classify.ItemCategory{Item: item, Category: category})
		}
	}
	return out, nil
}

type fixedResolver identity.Result

func (r fixedResolver) Resolve(context.Context, string) (identity.Result, error) {
	return identity.Result(r), nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *ledger.Store
	daemon     *daemon.Daemon
	configPath string
	apiAddress string
}

// setupCLITestEnv starts a daemon on a loopback port and writes a config
// file the CLI can load.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("SORTBIN_DEVICE_URL", "")
	t.Setenv("SORTBIN_LLM_API_KEY", "")
	t.Setenv("SORTBIN_API_TOKEN", "")

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("cli-token"))
	t.Setenv("HOME", testsupport.BaseDir(cfg))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenLedger(t, cfg)
	channel := device.NewChannel(device.OptionsFromConfig(cfg, logging.NewNop()))

	sessionOpts := session.OptionsFromConfig(cfg)
	sessionOpts.Ledger = store
	sessionOpts.Device = channel
	sessionOpts.Processor = classify.NewAggregator(
		fixedDetector{{Label: "Bottle", Confidence: 0.9}},
		fixedClassifier{"bottle": classify.Recyclable},
	)
	sessionOpts.Resolver = fixedResolver{Name: "alice"}
	sessionOpts.Logger = logging.NewNop()
	machine, err := session.New(sessionOpts)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	d, err := daemon.New(cfg, store, machine, channel, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		configPath: configPath,
		apiAddress: d.APIAddress(),
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	testsupport.WriteFile(t, path, data)
}

// run executes the root command against the test daemon.
func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--config", env.configPath, "--api", env.apiAddress}, args...)
	return runCLI(t, full...)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}
