package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-moshi-deploy - deploy and supervise a moshi-server TTS worker

Usage:
  go-moshi-deploy [flags]

Worker Flags:
`)
		// Print flags by category
		printFlagCategory([]string{"binary", "addr", "port", "worker-config", "omp-threads", "rayon-threads", "malloc-arena-max", "rust-log"})

		fmt.Fprintf(os.Stderr, "\nModel Selection:\n")
		printFlagCategory([]string{"model", "model-repo", "voice", "voices-repo", "n-q", "batch-size", "models-dir"})

		fmt.Fprintf(os.Stderr, "\nReadiness:\n")
		printFlagCategory([]string{"ready-timeout", "poll-interval", "grace"})

		fmt.Fprintf(os.Stderr, "\nRun Control:\n")
		printFlagCategory([]string{"duration", "work-dir"})

		fmt.Fprintf(os.Stderr, "\nSmoke Test / Benchmark:\n")
		printFlagCategory([]string{"skip-smoke", "smoke-text", "smoke-timeout", "bench", "wav", "api-key"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "worker-metrics", "worker-metrics-interval", "tui", "v", "log-format"})

		fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
		printFlagCategory([]string{"print-cmd", "check", "skip-preflight"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Deploy the default 1.6B English/French model
  go-moshi-deploy

  # Smaller model on a custom port, stop after ten minutes
  go-moshi-deploy -model 0.75b -port 9000 -duration 10m

  # Verify the launch command without starting anything
  go-moshi-deploy --print-cmd

  # Launch, smoke test, save the audio, and exit
  go-moshi-deploy -duration 1s -wav smoke.wav

`)
	}

	// Worker flags
	flag.StringVar(&cfg.BinaryPath, "binary", cfg.BinaryPath, "Path to the moshi-server binary")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Address the worker binds")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port the worker binds")
	flag.StringVar(&cfg.ConfigPath, "worker-config", cfg.ConfigPath, "Use this worker config instead of rendering one")
	flag.IntVar(&cfg.OMPThreads, "omp-threads", cfg.OMPThreads, "OMP_NUM_THREADS for the worker (0 = leave unset)")
	flag.IntVar(&cfg.RayonThreads, "rayon-threads", cfg.RayonThreads, "RAYON_NUM_THREADS for the worker (0 = leave unset)")
	flag.IntVar(&cfg.MallocArenaMax, "malloc-arena-max", cfg.MallocArenaMax, "MALLOC_ARENA_MAX for the worker (0 = leave unset)")
	flag.StringVar(&cfg.RustLog, "rust-log", cfg.RustLog, "RUST_LOG level for the worker")

	// Model selection
	flag.StringVar(&cfg.Model, "model", cfg.Model, `Model preset: "0.75b" or "1.6b"`)
	flag.StringVar(&cfg.ModelRepo, "model-repo", cfg.ModelRepo, "Explicit model repo (overrides -model)")
	flag.StringVar(&cfg.Voice, "voice", cfg.Voice, "Voice embedding path within the voices repo")
	flag.StringVar(&cfg.VoicesRepo, "voices-repo", cfg.VoicesRepo, "Voices repo")
	flag.IntVar(&cfg.NQ, "n-q", cfg.NQ, "Audio codebook count (0 = preset default)")
	flag.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Worker batch size (0 = preset default)")
	flag.StringVar(&cfg.ModelsDir, "models-dir", cfg.ModelsDir, "Local cache directory for model assets")

	// Readiness
	flag.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "Max wait for the worker to become ready")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Readiness probe interval")
	flag.DurationVar(&cfg.GracePeriod, "grace", cfg.GracePeriod, "SIGTERM grace period before SIGKILL")

	// Run control
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Run duration after ready (0 = until signalled)")
	flag.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Directory for the rendered config and worker log")

	// Smoke test / benchmark
	flag.BoolVar(&cfg.SkipSmoke, "skip-smoke", cfg.SkipSmoke, "Skip the post-ready smoke test")
	flag.StringVar(&cfg.SmokeText, "smoke-text", cfg.SmokeText, "Text to synthesize in the smoke test")
	flag.DurationVar(&cfg.SmokeTimeout, "smoke-timeout", cfg.SmokeTimeout, "Per-request smoke test timeout")
	flag.IntVar(&cfg.Bench, "bench", cfg.Bench, "Run N benchmark requests after the smoke test")
	flag.StringVar(&cfg.WAVPath, "wav", cfg.WAVPath, "Save the smoke test audio to this WAV file")
	flag.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key for the worker (default: the rendered config's key)")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.StringVar(&cfg.WorkerMetricsURL, "worker-metrics", cfg.WorkerMetricsURL, "Worker metrics endpoint to scrape (empty = disabled)")
	flag.DurationVar(&cfg.WorkerMetricsInterval, "worker-metrics-interval", cfg.WorkerMetricsInterval, "Worker metrics scrape interval")
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Safety & Diagnostics (double-dash convention)
	flag.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the worker command and exit")
	flag.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, run for 10 seconds, and exit")
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Parse
	flag.Parse()

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
