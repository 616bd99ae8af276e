// Package main provides the go-moshi-deploy CLI entry point.
//
// go-moshi-deploy is a deployment harness that launches a moshi-server
// TTS worker, waits for it to become ready, smoke tests the streaming
// endpoint, and keeps the worker supervised until shutdown.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clatterbridge/go-moshi-deploy/internal/config"
	"github.com/clatterbridge/go-moshi-deploy/internal/logging"
	"github.com/clatterbridge/go-moshi-deploy/internal/orchestrator"
	"github.com/clatterbridge/go-moshi-deploy/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-moshi-deploy
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-moshi-deploy %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Apply --check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
		logger.Info("check_mode_enabled", "duration", cfg.Duration)
	}

	orchestrator.SetVersion(version)
	orch := orchestrator.New(cfg, logger)

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		fmt.Println("# Worker command that would be run:")
		fmt.Println()
		fmt.Println(orch.Runner().CommandString())
		return 0
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"binary", cfg.BinaryPath,
		"model", cfg.Model,
		"endpoint", net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)),
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
		return orch.Run(context.Background())
	}

	return runWithTUI(cfg, orch)
}

// runWithTUI drives the deployment under the dashboard. The orchestrator
// runs in a goroutine; the TUI owns the terminal until it finishes or
// the user quits.
func runWithTUI(cfg *config.Config, orch *orchestrator.Orchestrator) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.New(tui.Config{
		Endpoint:    net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)),
		MetricsAddr: cfg.MetricsAddr,
		Source:      orch,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	codeCh := make(chan int, 1)
	go func() {
		code := orch.Run(ctx)
		codeCh <- code
		tui.SendQuit(p)
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}

	// The user quitting the TUI stops the deployment
	cancel()
	code := <-codeCh

	fmt.Print(orch.ExitSummary())
	return code
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        go-moshi-deploy                            ║")
	fmt.Println("║        moshi-server TTS Deployment and Smoke Testing              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Worker:      %s\n", cfg.BinaryPath)
	fmt.Printf("  Model:       %s\n", cfg.Model)
	fmt.Printf("  Endpoint:    %s:%d\n", cfg.Addr, cfg.Port)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.SkipSmoke {
		fmt.Println("  Smoke test:  SKIPPED")
	}
	if cfg.Bench > 0 {
		fmt.Printf("  Benchmark:   %d requests\n", cfg.Bench)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
