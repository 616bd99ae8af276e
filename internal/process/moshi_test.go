package process

import (
	"context"
	"strings"
	"testing"
)

func TestDefaultMoshiConfig(t *testing.T) {
	cfg := DefaultMoshiConfig("/etc/moshi/config.toml")

	if cfg.BinaryPath != "moshi-server" {
		t.Errorf("BinaryPath = %q, want moshi-server", cfg.BinaryPath)
	}
	if cfg.ConfigPath != "/etc/moshi/config.toml" {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
	if cfg.Addr != "0.0.0.0" {
		t.Errorf("Addr = %q, want 0.0.0.0", cfg.Addr)
	}
	if cfg.Port != 8089 {
		t.Errorf("Port = %d, want 8089", cfg.Port)
	}
	if cfg.MallocArenaMax != 2 {
		t.Errorf("MallocArenaMax = %d, want 2", cfg.MallocArenaMax)
	}
	if cfg.RustLog != "info" {
		t.Errorf("RustLog = %q, want info", cfg.RustLog)
	}
}

func TestBuildArgs(t *testing.T) {
	r := NewMoshiRunner(&MoshiConfig{
		BinaryPath: "moshi-server",
		ConfigPath: "/run/moshi/config.toml",
		Addr:       "127.0.0.1",
		Port:       8089,
	})

	args := r.buildArgs()
	want := []string{"worker", "--config", "/run/moshi/config.toml", "--addr", "127.0.0.1", "--port", "8089"}

	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBuildArgs_NoAddr(t *testing.T) {
	r := NewMoshiRunner(&MoshiConfig{
		ConfigPath: "config.toml",
		Port:       8089,
	})

	args := r.buildArgs()
	for _, a := range args {
		if a == "--addr" {
			t.Error("--addr should be omitted when Addr is empty")
		}
	}
}

func TestBuildEnv(t *testing.T) {
	r := NewMoshiRunner(&MoshiConfig{
		ConfigPath:     "config.toml",
		Port:           8089,
		OMPThreads:     4,
		RayonThreads:   8,
		MallocArenaMax: 2,
		RustLog:        "debug",
		ExtraEnv:       []string{"CUDA_VISIBLE_DEVICES=0"},
	})

	env := r.buildEnv()
	joined := strings.Join(env, "\n")

	for _, want := range []string{
		"OMP_NUM_THREADS=4",
		"RAYON_NUM_THREADS=8",
		"MALLOC_ARENA_MAX=2",
		"RUST_LOG=debug",
		"CUDA_VISIBLE_DEVICES=0",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("env missing %q", want)
		}
	}

	// Parent environment must be inherited
	if len(env) < 5 {
		t.Error("env should include the parent environment")
	}
}

func TestBuildEnv_ZeroValuesLeaveUnset(t *testing.T) {
	r := NewMoshiRunner(&MoshiConfig{
		ConfigPath: "config.toml",
		Port:       8089,
	})

	for _, kv := range r.envOverrides() {
		if strings.HasPrefix(kv, "OMP_NUM_THREADS=") ||
			strings.HasPrefix(kv, "RAYON_NUM_THREADS=") ||
			strings.HasPrefix(kv, "MALLOC_ARENA_MAX=") ||
			strings.HasPrefix(kv, "RUST_LOG=") {
			t.Errorf("zero-value knob should leave %q unset", kv)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	r := NewMoshiRunner(&MoshiConfig{
		BinaryPath: "/usr/local/bin/moshi-server",
		ConfigPath: "config.toml",
		Addr:       "0.0.0.0",
		Port:       8089,
		RustLog:    "info",
	})

	cmd, err := r.BuildCommand(context.Background())
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}

	if cmd.Path != "/usr/local/bin/moshi-server" {
		t.Errorf("Path = %q", cmd.Path)
	}
	if cmd.Args[1] != "worker" {
		t.Errorf("first arg = %q, want worker", cmd.Args[1])
	}
	if cmd.Env == nil {
		t.Error("Env should be set")
	}
	if !strings.Contains(strings.Join(cmd.Env, "\n"), "RUST_LOG=info") {
		t.Error("Env missing RUST_LOG=info")
	}
}

func TestCommandString(t *testing.T) {
	r := NewMoshiRunner(&MoshiConfig{
		BinaryPath:     "moshi-server",
		ConfigPath:     "/run/moshi/config.toml",
		Addr:           "0.0.0.0",
		Port:           8089,
		OMPThreads:     4,
		MallocArenaMax: 2,
	})

	s := r.CommandString()

	if !strings.Contains(s, "moshi-server worker --config /run/moshi/config.toml") {
		t.Errorf("command string missing invocation: %q", s)
	}
	if !strings.Contains(s, "--port 8089") {
		t.Errorf("command string missing port: %q", s)
	}
	if !strings.HasPrefix(s, "OMP_NUM_THREADS=4") {
		t.Errorf("env overrides should prefix the command: %q", s)
	}
	// Inherited environment must not leak into the display string
	if strings.Contains(s, "PATH=") {
		t.Errorf("command string should only show overrides: %q", s)
	}
}

func TestName(t *testing.T) {
	r := NewMoshiRunner(DefaultMoshiConfig("config.toml"))
	if r.Name() != "moshi-server" {
		t.Errorf("Name() = %q, want moshi-server", r.Name())
	}
}
