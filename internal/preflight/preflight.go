package preflight

import (
	"context"
	"slices"

	"sortbin/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Network checks are skipped when offline is set.
func RunAll(ctx context.Context, cfg *config.Config, offline bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Session.SaveCaptures {
		results = append(results, CheckDirectoryAccess("Capture directory", cfg.Paths.CaptureDir))
	}

	llmCfg := cfg.GetLLM()
	if offline {
		results = append(results, CheckLLMCredentials("LLM", llmCfg))
	} else {
		results = append(results, CheckLLM(ctx, "LLM", llmCfg))
		results = append(results, CheckReachable(ctx, "Capture device", cfg.Device.URL))
		if slices.Contains(cfg.Detector.Backends, config.DetectorHTTP) {
			results = append(results, CheckReachable(ctx, "Object detector", cfg.Detector.Endpoint))
		}
	}
	return results
}

// Failed returns only the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
