package config

import (
	"flag"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BinaryPath != "moshi-server" {
		t.Errorf("BinaryPath = %q", cfg.BinaryPath)
	}
	if cfg.Addr != "0.0.0.0" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Port != 8089 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.Model != "1.6b" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.ReadyTimeout != 300*time.Second {
		t.Errorf("ReadyTimeout = %v", cfg.ReadyTimeout)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.GracePeriod != 2*time.Second {
		t.Errorf("GracePeriod = %v", cfg.GracePeriod)
	}
	if cfg.Duration != 0 {
		t.Errorf("Duration = %v, want 0 (until signalled)", cfg.Duration)
	}
	if cfg.MallocArenaMax != 2 {
		t.Errorf("MallocArenaMax = %d", cfg.MallocArenaMax)
	}
	if cfg.TUIEnabled {
		t.Error("TUI should default off")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkDir = "/tmp/deploy"

	if cfg.LogPath() != "/tmp/deploy/moshi-server.log" {
		t.Errorf("LogPath = %q", cfg.LogPath())
	}
	if cfg.RenderedConfigPath() != "/tmp/deploy/config.toml" {
		t.Errorf("RenderedConfigPath = %q", cfg.RenderedConfigPath())
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing_binary", func(c *Config) { c.BinaryPath = "" }, "binary"},
		{"port_zero", func(c *Config) { c.Port = 0 }, "port"},
		{"port_too_high", func(c *Config) { c.Port = 70000 }, "port"},
		{"addr_is_url", func(c *Config) { c.Addr = "http://0.0.0.0" }, "addr"},
		{"addr_has_port", func(c *Config) { c.Addr = "0.0.0.0:8089" }, "addr"},
		{"bad_preset", func(c *Config) { c.Model = "13b" }, "model"},
		{"zero_ready_timeout", func(c *Config) { c.ReadyTimeout = 0 }, "ready_timeout"},
		{"zero_poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"poll_exceeds_timeout", func(c *Config) {
			c.PollInterval = 10 * time.Minute
		}, "poll_interval"},
		{"zero_grace", func(c *Config) { c.GracePeriod = 0 }, "grace"},
		{"negative_bench", func(c *Config) { c.Bench = -1 }, "bench"},
		{"bench_without_smoke", func(c *Config) {
			c.Bench = 5
			c.SkipSmoke = true
		}, "bench"},
		{"wav_without_smoke", func(c *Config) {
			c.WAVPath = "out.wav"
			c.SkipSmoke = true
		}, "wav"},
		{"bad_log_format", func(c *Config) { c.LogFormat = "yaml" }, "log_format"},
		{"bad_metrics_addr", func(c *Config) { c.MetricsAddr = "nope" }, "metrics"},
		{"bad_worker_metrics_url", func(c *Config) { c.WorkerMetricsURL = "localhost:8089/metrics" }, "worker_metrics"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q should mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BinaryPath = ""
	cfg.Port = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"binary", "port", "log_format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_ModelRepoSkipsPresetCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "garbage"
	cfg.ModelRepo = "my-org/my-tts-fork"

	if err := Validate(cfg); err != nil {
		t.Errorf("explicit repo should bypass preset validation: %v", err)
	}
}

func TestValidate_ConfigPathSkipsPresetCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "garbage"
	cfg.ConfigPath = "/etc/moshi/config.toml"

	if err := Validate(cfg); err != nil {
		t.Errorf("explicit worker config should bypass preset validation: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "port", Message: "must be positive"}
	if e.Error() != "port: must be positive" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestApplyCheckMode(t *testing.T) {
	cfg := DefaultConfig()
	ApplyCheckMode(cfg)

	if cfg.Duration != 10*time.Second {
		t.Errorf("Duration = %v, want 10s", cfg.Duration)
	}
	if !cfg.Verbose {
		t.Error("check mode should be verbose")
	}
	if cfg.TUIEnabled {
		t.Error("check mode should disable the TUI")
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		defValue string
		want     string
	}{
		{"true", ""},
		{"false", ""},
		{"5m0s", "duration"},
		{"8089", "int"},
		{"moshi-server", "string"},
	}

	for _, tc := range testCases {
		got := flagType(&flag.Flag{DefValue: tc.defValue})
		if got != tc.want {
			t.Errorf("flagType(%q) = %q, want %q", tc.defValue, got, tc.want)
		}
	}
}
