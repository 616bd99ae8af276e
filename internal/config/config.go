// Package config provides configuration management for go-moshi-deploy.
package config

import "time"

// Config holds all configuration options for the deployer.
type Config struct {
	// Worker process
	BinaryPath     string `json:"binary_path"`
	Addr           string `json:"addr"`
	Port           int    `json:"port"`
	ConfigPath     string `json:"config_path"` // pre-rendered config, empty = render one
	OMPThreads     int    `json:"omp_threads"`
	RayonThreads   int    `json:"rayon_threads"`
	MallocArenaMax int    `json:"malloc_arena_max"`
	RustLog        string `json:"rust_log"`

	// Model
	Model      string `json:"model"`      // preset name: "0.75b" or "1.6b"
	ModelRepo  string `json:"model_repo"` // explicit repo, overrides the preset
	Voice      string `json:"voice"`
	VoicesRepo string `json:"voices_repo"`
	NQ         int    `json:"n_q"`
	BatchSize  int    `json:"batch_size"`

	// Paths
	ModelsDir string `json:"models_dir"`
	WorkDir   string `json:"work_dir"` // rendered config and worker log live here

	// Readiness
	ReadyTimeout time.Duration `json:"ready_timeout"`
	PollInterval time.Duration `json:"poll_interval"`
	GracePeriod  time.Duration `json:"grace_period"`

	// Run
	Duration     time.Duration `json:"duration"` // 0 = until signalled
	SkipSmoke    bool          `json:"skip_smoke"`
	SmokeText    string        `json:"smoke_text"`
	SmokeTimeout time.Duration `json:"smoke_timeout"`
	Bench        int           `json:"bench"` // extra smoke requests, 0 = none
	WAVPath      string        `json:"wav_path"`
	APIKey       string        `json:"api_key"`

	// Observability
	MetricsAddr           string        `json:"metrics_addr"`
	WorkerMetricsURL      string        `json:"worker_metrics_url"`
	WorkerMetricsInterval time.Duration `json:"worker_metrics_interval"`
	TUIEnabled            bool          `json:"tui"`
	Verbose               bool          `json:"verbose"`
	LogFormat             string        `json:"log_format"` // json, text

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Worker
		BinaryPath:     "moshi-server",
		Addr:           "0.0.0.0",
		Port:           8089,
		MallocArenaMax: 2,
		RustLog:        "info",

		// Model
		Model: "1.6b",

		// Paths
		ModelsDir: "models",
		WorkDir:   "run",

		// Readiness
		ReadyTimeout: 300 * time.Second,
		PollInterval: 1 * time.Second,
		GracePeriod:  2 * time.Second,

		// Run
		Duration:     0, // Until signalled
		SmokeTimeout: 60 * time.Second,

		// Observability
		MetricsAddr:           "0.0.0.0:17091",
		WorkerMetricsInterval: 5 * time.Second,
		TUIEnabled:            false,
		Verbose:               false,
		LogFormat:             "json",
	}
}

// LogPath returns where the worker's stdout and stderr are captured.
func (c *Config) LogPath() string {
	return c.WorkDir + "/moshi-server.log"
}

// RenderedConfigPath returns where the rendered worker config lands
// when ConfigPath is not set.
func (c *Config) RenderedConfigPath() string {
	return c.WorkDir + "/config.toml"
}
