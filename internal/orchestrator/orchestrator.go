// Package orchestrator coordinates the deployment: preflight, asset
// fetch, config render, worker launch, readiness, smoke test, and
// shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/clatterbridge/go-moshi-deploy/internal/assets"
	"github.com/clatterbridge/go-moshi-deploy/internal/config"
	"github.com/clatterbridge/go-moshi-deploy/internal/logging"
	"github.com/clatterbridge/go-moshi-deploy/internal/metrics"
	"github.com/clatterbridge/go-moshi-deploy/internal/preflight"
	"github.com/clatterbridge/go-moshi-deploy/internal/process"
	"github.com/clatterbridge/go-moshi-deploy/internal/serverconfig"
	"github.com/clatterbridge/go-moshi-deploy/internal/smoketest"
	"github.com/clatterbridge/go-moshi-deploy/internal/stats"
	"github.com/clatterbridge/go-moshi-deploy/internal/supervisor"
)

// Exit codes returned by Run.
const (
	ExitOK        = 0
	ExitPreflight = 2
	ExitLaunch    = 3
	ExitNotReady  = 4
	ExitSmoke     = 5
)

// Orchestrator coordinates all components for one deployment.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger

	runner        *process.MoshiRunner
	sup           *supervisor.Supervisor
	logHandler    *logging.WorkerLogHandler
	collector     *metrics.Collector
	metricsServer *metrics.Server
	scraper       *metrics.WorkerScraper

	// mu guards the fields below, which Status reads concurrently
	mu           sync.RWMutex
	handle       *supervisor.Handle
	waitResult   *supervisor.Result
	smoke        *stats.SmokeResult
	assetResults []assets.FetchResult

	bench     *stats.BenchAggregate
	startTime time.Time
}

// New creates an Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	moshiCfg := process.DefaultMoshiConfig(cfg.ConfigPath)
	moshiCfg.BinaryPath = cfg.BinaryPath
	moshiCfg.Addr = cfg.Addr
	moshiCfg.Port = cfg.Port
	moshiCfg.OMPThreads = cfg.OMPThreads
	moshiCfg.RayonThreads = cfg.RayonThreads
	moshiCfg.MallocArenaMax = cfg.MallocArenaMax
	moshiCfg.RustLog = cfg.RustLog
	if cfg.ConfigPath == "" {
		moshiCfg.ConfigPath = cfg.RenderedConfigPath()
	}
	runner := process.NewMoshiRunner(moshiCfg)

	collector := metrics.NewCollector()
	metricsServer := metrics.NewServer(cfg.MetricsAddr, collector.Registry(), logger)
	scraper := metrics.NewWorkerScraper(cfg.WorkerMetricsURL, cfg.WorkerMetricsInterval, logger)

	orch := &Orchestrator{
		config:        cfg,
		logger:        logger,
		runner:        runner,
		logHandler:    logging.NewWorkerLogHandler(logger, cfg.Verbose),
		collector:     collector,
		metricsServer: metricsServer,
		scraper:       scraper,
		bench:         stats.NewBenchAggregate(),
	}
	orch.logHandler.SetOnError(collector.RecordLogError)

	orch.sup = supervisor.New(supervisor.Config{
		Builder:      runner,
		Logger:       logger,
		Addr:         cfg.Addr,
		Port:         cfg.Port,
		LogPath:      cfg.LogPath(),
		Probes:       supervisor.DefaultProbes(dialAddr(cfg.Addr), cfg.Port, cfg.LogPath()),
		PollInterval: cfg.PollInterval,
		ReadyTimeout: cfg.ReadyTimeout,
		GracePeriod:  cfg.GracePeriod,
		Callbacks: supervisor.Callbacks{
			OnStateChange: orch.onStateChange,
			OnStart:       orch.onStart,
			OnExit:        orch.onExit,
		},
	})

	return orch
}

// dialAddr maps a wildcard bind address to a dialable one.
func dialAddr(addr string) string {
	switch addr {
	case "", "0.0.0.0", "::":
		return "127.0.0.1"
	}
	return addr
}

// Run executes the deployment. It blocks until the worker stops and
// returns the process exit code.
func (o *Orchestrator) Run(ctx context.Context) int {
	o.startTime = time.Now()

	// Preflight
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Params{
			BinaryPath: o.config.BinaryPath,
			Addr:       o.config.Addr,
			Port:       o.config.Port,
			ModelsDir:  o.config.ModelsDir,
			WorkDir:    o.config.WorkDir,
		})
		preflight.PrintResults(result)
		if !result.Passed {
			o.logger.Error("preflight_failed")
			return ExitPreflight
		}
	} else if err := os.MkdirAll(o.config.WorkDir, 0o755); err != nil {
		o.logger.Error("work_dir_create_failed", "dir", o.config.WorkDir, "error", err)
		return ExitPreflight
	}

	// Model parameters and assets
	params, err := o.resolveModel()
	if err != nil {
		o.logger.Error("model_resolve_failed", "error", err)
		return ExitPreflight
	}
	if code := o.prepare(ctx, params); code != ExitOK {
		return code
	}

	// Metrics
	o.collector.SetInfo(Version, o.config.BinaryPath, o.config.Model)
	if err := o.metricsServer.Start(); err != nil {
		o.logger.Error("metrics_server_start_failed", "error", err)
		return ExitPreflight
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.scraper != nil {
		go o.scraper.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// Launch and wait for readiness
	code := o.launch(ctx)
	if code != ExitOK {
		// A worker that timed out may still be loading; take it down
		if o.handle != nil {
			if err := o.sup.Stop(o.handle); err != nil {
				o.logger.Error("worker_stop_failed", "error", err)
			}
		}
		o.shutdown()
		o.printExitSummary()
		return code
	}

	go o.followWorkerLog(ctx)

	// Smoke test and benchmark
	smokeCode := ExitOK
	if !o.config.SkipSmoke {
		smokeCode = o.runSmoke(ctx, params)
	}

	// Hold until a signal, the duration elapses, or the worker dies
	holdCode := ExitOK
	if smokeCode == ExitOK {
		holdCode = o.hold(ctx, sigCh)
	}

	cancel()

	if err := o.sup.Stop(o.handle); err != nil {
		o.logger.Error("worker_stop_failed", "error", err)
		if smokeCode == ExitOK && holdCode == ExitOK {
			holdCode = ExitLaunch
		}
	}

	o.shutdown()
	o.printExitSummary()

	if smokeCode != ExitOK {
		return smokeCode
	}
	return holdCode
}

// ExitSummary returns the formatted deployment outcome. Used by main
// when the TUI owns the terminal and inline printing is suppressed.
func (o *Orchestrator) ExitSummary() string {
	return stats.FormatExitSummary(o.summaryConfig())
}

// resolveModel applies the preset and fills voice defaults.
func (o *Orchestrator) resolveModel() (serverconfig.Params, error) {
	params := serverconfig.Params{
		Addr:         o.config.Addr,
		Port:         o.config.Port,
		LogDir:       o.config.WorkDir,
		ModelRepo:    o.config.ModelRepo,
		VoiceRepo:    o.config.VoicesRepo,
		DefaultVoice: o.config.Voice,
		NQ:           o.config.NQ,
		BatchSize:    o.config.BatchSize,
	}

	// An explicit repo bypasses the preset table
	if params.ModelRepo != "" {
		return params, nil
	}
	return serverconfig.ApplyPreset(params, serverconfig.Preset(o.config.Model))
}

// prepare fetches assets and renders the worker config.
func (o *Orchestrator) prepare(ctx context.Context, params serverconfig.Params) int {
	voiceRepo := params.VoiceRepo
	if voiceRepo == "" {
		voiceRepo = serverconfig.DefaultVoiceRepo
	}
	voice := params.DefaultVoice
	if voice == "" {
		voice = serverconfig.DefaultVoice
	}

	fetcher := assets.NewFetcher(o.config.ModelsDir, o.logger)
	manifest := assets.DefaultManifest(params.ModelRepo, voiceRepo, voice)

	o.logger.Info("ensuring_assets", "model_repo", params.ModelRepo, "assets", len(manifest.Assets))
	results, err := fetcher.Ensure(ctx, manifest)
	if err != nil {
		o.logger.Error("asset_fetch_failed", "error", err)
		return ExitPreflight
	}
	for _, r := range results {
		o.collector.RecordAssetFetch(r.Bytes, r.Cached)
	}
	o.mu.Lock()
	o.assetResults = results
	o.mu.Unlock()

	if o.config.ConfigPath != "" {
		o.logger.Info("using_worker_config", "path", o.config.ConfigPath)
		return ExitOK
	}

	doc := serverconfig.NewDocument(params)
	path := o.config.RenderedConfigPath()
	if err := doc.WriteFile(path); err != nil {
		o.logger.Error("config_render_failed", "path", path, "error", err)
		return ExitPreflight
	}
	o.logger.Info("worker_config_rendered", "path", path)

	return ExitOK
}

// launch starts the worker and waits for readiness.
func (o *Orchestrator) launch(ctx context.Context) int {
	handle, err := o.sup.Start(ctx)
	if err != nil {
		o.logger.Error("worker_launch_failed", "error", err)
		return ExitLaunch
	}
	o.mu.Lock()
	o.handle = handle
	o.mu.Unlock()

	result, err := o.sup.WaitUntilReady(ctx, handle)
	o.mu.Lock()
	o.waitResult = result
	o.mu.Unlock()
	if err != nil {
		if result != nil {
			for _, line := range result.LogTail {
				fmt.Fprintln(os.Stderr, "  | "+line)
			}
		}
		o.logger.Error("worker_not_ready", "error", err)
		return ExitNotReady
	}

	o.collector.SetReadinessWait(result.Waited)
	o.logger.Info("worker_ready", "waited", result.Waited.Round(time.Millisecond).String())
	return ExitOK
}

// runSmoke performs the smoke request and optional benchmark.
func (o *Orchestrator) runSmoke(ctx context.Context, params serverconfig.Params) int {
	voice := params.DefaultVoice
	if voice == "" {
		voice = serverconfig.DefaultVoice
	}

	client := smoketest.NewClient(smoketest.Config{
		Addr:    dialAddr(o.config.Addr),
		Port:    o.config.Port,
		Voice:   voice,
		APIKey:  o.config.APIKey,
		Text:    o.config.SmokeText,
		Timeout: o.config.SmokeTimeout,
		Logger:  o.logger,
	})

	result, err := client.Run(ctx)
	if err != nil {
		o.collector.RecordSmokeRun(false, 0, 0)
		o.logger.Error("smoke_test_failed", "error", err)
		return ExitSmoke
	}
	o.collector.RecordSmokeRun(true, result.TTFB, result.RTF)

	o.mu.Lock()
	o.smoke = &stats.SmokeResult{
		ConnectTime:  result.ConnectTime,
		TTFB:         result.TTFB,
		Wall:         result.Wall,
		AudioSeconds: result.AudioSeconds,
		RTF:          result.RTF,
	}
	o.mu.Unlock()

	if o.config.WAVPath != "" {
		if err := smoketest.WriteWAV(o.config.WAVPath, result.Samples, smoketest.SampleRate); err != nil {
			o.logger.Error("wav_write_failed", "path", o.config.WAVPath, "error", err)
			return ExitSmoke
		}
		o.mu.Lock()
		o.smoke.WAVPath = o.config.WAVPath
		o.mu.Unlock()
		o.logger.Info("wav_written", "path", o.config.WAVPath, "seconds", fmt.Sprintf("%.2f", result.AudioSeconds))
	}

	for i := 0; i < o.config.Bench; i++ {
		r, err := client.Run(ctx)
		if err != nil {
			o.bench.RecordFailure()
			o.collector.RecordSmokeRun(false, 0, 0)
			o.logger.Warn("bench_request_failed", "request", i+1, "error", err)
			continue
		}
		o.bench.Record(r.ConnectTime, r.TTFB, r.Wall, r.AudioSeconds, r.RTF)
		o.collector.RecordSmokeRun(true, r.TTFB, r.RTF)
	}
	if o.config.Bench > 0 && o.bench.Failures() == o.config.Bench {
		o.logger.Error("bench_all_requests_failed", "requests", o.config.Bench)
		return ExitSmoke
	}

	return ExitOK
}

// hold keeps the worker up until a stop condition.
func (o *Orchestrator) hold(ctx context.Context, sigCh <-chan os.Signal) int {
	var durationTimer <-chan time.Time
	if o.config.Duration > 0 {
		durationTimer = time.After(o.config.Duration)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	o.logger.Info("worker_serving",
		"endpoint", fmt.Sprintf("%s:%d", o.config.Addr, o.config.Port),
		"duration", o.config.Duration.String(),
	)

	for {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			return ExitOK
		case <-durationTimer:
			o.logger.Info("duration_elapsed", "duration", o.config.Duration.String())
			return ExitOK
		case <-ctx.Done():
			o.logger.Info("context_cancelled")
			return ExitOK
		case <-o.handle.Done():
			_, code := o.handle.Exited()
			o.logger.Error("worker_exited_unexpectedly", "exit_code", code)
			for _, line := range o.handle.LogTail(10) {
				fmt.Fprintln(os.Stderr, "  | "+line)
			}
			return ExitNotReady
		case <-ticker.C:
			o.collector.SetWorkerUptime(o.handle.Uptime())
			o.collector.UpdateElapsed()
		}
	}
}

// followWorkerLog streams the worker log through the log handler so
// lines reach structured logging and the TUI.
func (o *Orchestrator) followWorkerLog(ctx context.Context) {
	f, err := os.Open(o.config.LogPath())
	if err != nil {
		o.logger.Debug("worker_log_open_failed", "error", err)
		return
	}
	defer f.Close()

	o.logHandler.FollowReader(ctx, f)
}

// shutdown stops the ambient services.
func (o *Orchestrator) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// printExitSummary prints the deployment outcome unless the TUI owns
// the terminal.
func (o *Orchestrator) printExitSummary() {
	if o.config.TUIEnabled {
		return
	}
	fmt.Print(stats.FormatExitSummary(o.summaryConfig()))
}

// summaryConfig assembles the exit summary from the run's state.
func (o *Orchestrator) summaryConfig() stats.SummaryConfig {
	cfg := stats.SummaryConfig{
		Duration:    time.Since(o.startTime),
		BinaryPath:  o.config.BinaryPath,
		Model:       o.config.Model,
		Endpoint:    fmt.Sprintf("%s:%d", o.config.Addr, o.config.Port),
		FinalState:  "created",
		ExitCode:    -1,
		LogErrors:   sumCounts(o.logHandler.CountErrors()),
		Smoke:       o.smoke,
		Bench:       o.bench,
		MetricsAddr: o.config.MetricsAddr,
	}

	for _, r := range o.assetResults {
		cfg.AssetBytes += r.Bytes
		if r.Cached {
			cfg.AssetsCached++
		}
	}

	if o.handle != nil {
		cfg.PID = o.handle.PID()
		cfg.FinalState = o.handle.State().String()
		cfg.WorkerUptime = o.handle.Uptime()
		if exited, code := o.handle.Exited(); exited {
			cfg.ExitCode = code
		}
	}
	if o.waitResult != nil && o.waitResult.Outcome == supervisor.OutcomeReady {
		cfg.ReadinessWait = o.waitResult.Waited
	}

	return cfg
}

// sumCounts totals the per-pattern error counts from the log handler.
func sumCounts(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// Callback handlers

func (o *Orchestrator) onStateChange(oldState, newState supervisor.State) {
	o.collector.SetWorkerState(newState.String())
	o.collector.SetWorkerUp(newState.IsActive())
}

func (o *Orchestrator) onStart(pid int) {
	o.collector.RecordWorkerStart()
	o.collector.SetWorkerUp(true)
}

func (o *Orchestrator) onExit(exitCode int, uptime time.Duration) {
	o.collector.RecordWorkerExit(exitCode)
	o.collector.SetWorkerUp(false)
}

// Runner returns the worker runner for external access.
func (o *Orchestrator) Runner() *process.MoshiRunner {
	return o.runner
}
