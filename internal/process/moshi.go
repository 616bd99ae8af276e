package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// MoshiConfig holds configuration for moshi-server worker execution.
type MoshiConfig struct {
	// BinaryPath is the path to the moshi-server binary.
	BinaryPath string

	// ConfigPath is the TOML config file passed via --config.
	ConfigPath string

	// Addr is the listen address passed via --addr.
	Addr string

	// Port is the listen port passed via --port.
	Port int

	// OMPThreads caps OpenMP thread count (OMP_NUM_THREADS).
	// 0 leaves the variable unset.
	OMPThreads int

	// RayonThreads caps the Rayon thread pool (RAYON_NUM_THREADS).
	// 0 leaves the variable unset.
	RayonThreads int

	// MallocArenaMax caps glibc malloc arenas (MALLOC_ARENA_MAX).
	// 0 leaves the variable unset.
	MallocArenaMax int

	// RustLog sets the worker's tracing filter (RUST_LOG).
	// Empty leaves the variable unset.
	RustLog string

	// ExtraEnv holds additional KEY=VALUE pairs passed through unmodified.
	ExtraEnv []string
}

// DefaultMoshiConfig returns a MoshiConfig with sensible defaults.
func DefaultMoshiConfig(configPath string) *MoshiConfig {
	return &MoshiConfig{
		BinaryPath:     "moshi-server",
		ConfigPath:     configPath,
		Addr:           "0.0.0.0",
		Port:           8089,
		MallocArenaMax: 2,
		RustLog:        "info",
	}
}

// MoshiRunner implements Runner for the moshi-server worker.
type MoshiRunner struct {
	config *MoshiConfig
}

// NewMoshiRunner creates a new worker runner with the given configuration.
func NewMoshiRunner(cfg *MoshiConfig) *MoshiRunner {
	return &MoshiRunner{
		config: cfg,
	}
}

// Name returns "moshi-server".
func (r *MoshiRunner) Name() string {
	return "moshi-server"
}

// BuildCommand creates an exec.Cmd for the worker with all configured options.
func (r *MoshiRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	args := r.buildArgs()
	cmd := exec.CommandContext(ctx, r.config.BinaryPath, args...)
	cmd.Env = r.buildEnv()
	return cmd, nil
}

// buildArgs constructs the worker command-line arguments.
func (r *MoshiRunner) buildArgs() []string {
	args := []string{
		"worker",
		"--config", r.config.ConfigPath,
	}

	if r.config.Addr != "" {
		args = append(args, "--addr", r.config.Addr)
	}

	args = append(args, "--port", strconv.Itoa(r.config.Port))

	return args
}

// buildEnv constructs the worker environment: the parent environment
// plus the configured thread and allocator caps. Knob values are passed
// through unmodified; the worker interprets them.
func (r *MoshiRunner) buildEnv() []string {
	env := os.Environ()

	if r.config.OMPThreads > 0 {
		env = append(env, fmt.Sprintf("OMP_NUM_THREADS=%d", r.config.OMPThreads))
	}
	if r.config.RayonThreads > 0 {
		env = append(env, fmt.Sprintf("RAYON_NUM_THREADS=%d", r.config.RayonThreads))
	}
	if r.config.MallocArenaMax > 0 {
		env = append(env, fmt.Sprintf("MALLOC_ARENA_MAX=%d", r.config.MallocArenaMax))
	}
	if r.config.RustLog != "" {
		env = append(env, "RUST_LOG="+r.config.RustLog)
	}

	env = append(env, r.config.ExtraEnv...)

	return env
}

// Config returns the worker configuration.
func (r *MoshiRunner) Config() *MoshiConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
func (r *MoshiRunner) CommandString() string {
	args := r.buildArgs()

	var env []string
	for _, kv := range r.envOverrides() {
		env = append(env, kv)
	}

	cmd := r.config.BinaryPath + " " + strings.Join(args, " ")
	if len(env) > 0 {
		return strings.Join(env, " ") + " " + cmd
	}
	return cmd
}

// envOverrides returns only the variables this runner sets, without the
// inherited environment. Used for display.
func (r *MoshiRunner) envOverrides() []string {
	var env []string

	if r.config.OMPThreads > 0 {
		env = append(env, fmt.Sprintf("OMP_NUM_THREADS=%d", r.config.OMPThreads))
	}
	if r.config.RayonThreads > 0 {
		env = append(env, fmt.Sprintf("RAYON_NUM_THREADS=%d", r.config.RayonThreads))
	}
	if r.config.MallocArenaMax > 0 {
		env = append(env, fmt.Sprintf("MALLOC_ARENA_MAX=%d", r.config.MallocArenaMax))
	}
	if r.config.RustLog != "" {
		env = append(env, "RUST_LOG="+r.config.RustLog)
	}

	env = append(env, r.config.ExtraEnv...)

	return env
}
