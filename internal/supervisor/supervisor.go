package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Sentinel errors for supervision failures. Callers classify with
// errors.Is and map to exit codes.
var (
	// ErrLaunchFailed indicates the worker process could not be spawned.
	ErrLaunchFailed = errors.New("worker launch failed")

	// ErrReadinessTimeout indicates no probe succeeded within the timeout.
	ErrReadinessTimeout = errors.New("worker readiness timeout")

	// ErrExitedEarly indicates the worker exited before becoming ready.
	ErrExitedEarly = errors.New("worker exited before ready")

	// ErrStopFailed indicates graceful shutdown did not fully succeed.
	ErrStopFailed = errors.New("worker stop incomplete")
)

const (
	// DefaultPollInterval is the sleep between readiness probe ticks.
	DefaultPollInterval = 1 * time.Second

	// DefaultReadyTimeout bounds the readiness wait. Model weight loading
	// dominates startup time and varies with hardware.
	DefaultReadyTimeout = 300 * time.Second

	// DefaultGracePeriod is how long Stop waits after SIGTERM before
	// escalating to SIGKILL.
	DefaultGracePeriod = 2 * time.Second

	// logTailLines is how many log lines are attached to failure results.
	logTailLines = 30
)

// ProcessBuilder creates the executable command for the worker.
// This interface decouples the supervisor from moshi-server specifics.
type ProcessBuilder interface {
	// BuildCommand returns a ready-to-start command.
	// The command must NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the worker state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called when the worker process starts.
	OnStart func(pid int)

	// OnExit is called when the worker process exits.
	OnExit func(exitCode int, uptime time.Duration)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Builder   ProcessBuilder
	Logger    *slog.Logger
	Callbacks Callbacks

	// Addr and Port identify the worker listen endpoint. At most one
	// worker per (addr, port): Start terminates any prior listener.
	Addr string
	Port int

	// LogPath is where worker stdout/stderr is appended.
	LogPath string

	// Probes override DefaultProbes when set.
	Probes Probe

	// PollInterval and ReadyTimeout tune the readiness wait. Zero values
	// use the defaults.
	PollInterval time.Duration
	ReadyTimeout time.Duration

	// GracePeriod is the SIGTERM-to-SIGKILL escalation delay for Stop.
	GracePeriod time.Duration
}

// Handle identifies a running worker process.
type Handle struct {
	pid       int
	cmd       *exec.Cmd
	logPath   string
	startTime time.Time

	state   State
	stateMu sync.RWMutex

	// Closed by the reaper goroutine once the process exits.
	done     chan struct{}
	exitCode int
}

// PID returns the worker process ID.
func (h *Handle) PID() int {
	return h.pid
}

// LogPath returns the worker log file path.
func (h *Handle) LogPath() string {
	return h.logPath
}

// Uptime returns the time since the worker started.
func (h *Handle) Uptime() time.Duration {
	return time.Since(h.startTime)
}

// State returns the current worker state.
func (h *Handle) State() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

// Exited reports whether the worker process has exited, and its exit
// code if so.
func (h *Handle) Exited() (bool, int) {
	select {
	case <-h.done:
		return true, h.exitCode
	default:
		return false, 0
	}
}

// Done returns a channel closed when the worker process exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// LogTail returns the last n lines of the worker log.
func (h *Handle) LogTail(n int) []string {
	return readLogTail(h.logPath, n)
}

// Supervisor starts, readiness-gates, and stops one worker process.
type Supervisor struct {
	builder   ProcessBuilder
	logger    *slog.Logger
	callbacks Callbacks

	addr    string
	port    int
	logPath string
	probes  Probe

	pollInterval time.Duration
	readyTimeout time.Duration
	gracePeriod  time.Duration
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	readyTimeout := cfg.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	gracePeriod := cfg.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	probes := cfg.Probes
	if probes == nil {
		probes = DefaultProbes(cfg.Addr, cfg.Port, cfg.LogPath)
	}

	return &Supervisor{
		builder:      cfg.Builder,
		logger:       cfg.Logger,
		callbacks:    cfg.Callbacks,
		addr:         cfg.Addr,
		port:         cfg.Port,
		logPath:      cfg.LogPath,
		probes:       probes,
		pollInterval: pollInterval,
		readyTimeout: readyTimeout,
		gracePeriod:  gracePeriod,
	}
}

// Start spawns the worker process and returns a handle immediately.
// It does not wait for readiness.
//
// Any prior worker still listening on the configured port is terminated
// first, so at most one worker exists per (addr, port).
func (s *Supervisor) Start(ctx context.Context) (*Handle, error) {
	// Clear out stale listeners from a previous run
	if stale := findPIDsByPort(s.port); len(stale) > 0 {
		s.logger.Warn("stale_worker_on_port", "port", s.port, "pids", fmt.Sprint(stale))
		if err := terminatePIDs(s.logger, stale, s.gracePeriod); err != nil {
			return nil, fmt.Errorf("%w: port %d occupied: %v", ErrLaunchFailed, s.port, err)
		}
	}

	logFile, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open log file: %v", ErrLaunchFailed, err)
	}

	// The worker must outlive any context used for the wait, so the
	// command is built against the background context.
	cmd, err := s.builder.BuildCommand(context.Background())
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("%w: build command: %v", ErrLaunchFailed, err)
	}

	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Set process group for clean shutdown
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	h := &Handle{
		cmd:     cmd,
		logPath: s.logPath,
		state:   StateCreated,
		done:    make(chan struct{}),
	}
	s.setState(h, StateStarting)

	h.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		logFile.Close()
		s.setState(h, StateFailed)
		s.logger.Error("failed_to_start_worker",
			"binary", s.builder.Name(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	// Child holds its own descriptor now
	logFile.Close()

	h.pid = cmd.Process.Pid

	s.logger.Info("worker_started",
		"name", s.builder.Name(),
		"pid", h.pid,
		"port", s.port,
		"log_path", s.logPath,
	)

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(h.pid)
	}

	// Reap the process as soon as it exits so Exited() never races a zombie
	go func() {
		waitErr := cmd.Wait()
		h.exitCode = extractExitCode(waitErr)
		close(h.done)

		s.logger.Info("worker_exited",
			"pid", h.pid,
			"exit_code", h.exitCode,
			"uptime", time.Since(h.startTime).String(),
		)
	}()

	return h, nil
}

// WaitUntilReady polls until the worker is ready, exits, or the timeout
// elapses. Exit detection takes priority over probe success on each tick.
//
// Cancelling ctx abandons the wait without killing the worker.
func (s *Supervisor) WaitUntilReady(ctx context.Context, h *Handle) (*Result, error) {
	start := time.Now()
	deadline := start.Add(s.readyTimeout)

	s.logger.Info("waiting_for_ready",
		"pid", h.pid,
		"probes", s.probes.Name(),
		"timeout", s.readyTimeout.String(),
		"poll_interval", s.pollInterval.String(),
	)

	for {
		// A dead worker can leave a bound socket in TIME_WAIT or a
		// "listening" line in its log, so the exit check comes first.
		if exited, code := h.Exited(); exited {
			s.setState(h, StateFailed)
			result := &Result{
				Outcome:  OutcomeExitedEarly,
				Waited:   time.Since(start),
				ExitCode: code,
				LogTail:  h.LogTail(logTailLines),
			}
			return result, fmt.Errorf("%w: exit code %d after %s",
				ErrExitedEarly, code, result.Waited.Round(time.Millisecond))
		}

		probeCtx, probeCancel := context.WithTimeout(ctx, s.pollInterval)
		ready := s.probes.Ready(probeCtx)
		probeCancel()

		if ready {
			s.setState(h, StateReady)
			waited := time.Since(start)
			s.logger.Info("worker_ready",
				"pid", h.pid,
				"waited", waited.Round(time.Millisecond).String(),
			)
			s.setState(h, StateRunning)
			return &Result{Outcome: OutcomeReady, Waited: waited}, nil
		}

		if time.Now().After(deadline) {
			s.setState(h, StateTimedOut)
			result := &Result{
				Outcome: OutcomeTimedOut,
				Waited:  time.Since(start),
				LogTail: h.LogTail(logTailLines),
			}
			return result, fmt.Errorf("%w: after %s",
				ErrReadinessTimeout, result.Waited.Round(time.Second))
		}

		select {
		case <-ctx.Done():
			// Abandon the wait; the worker keeps running
			s.logger.Warn("readiness_wait_abandoned", "pid", h.pid, "error", ctx.Err())
			return nil, ctx.Err()
		case <-h.done:
			// Re-check at the top of the loop for the exit result
		case <-time.After(s.pollInterval):
		}
	}
}

// Stop gracefully stops the worker: SIGTERM to the process group,
// SIGKILL after the grace period, then a sweep for stray processes
// matching the worker command or port.
//
// Stop is idempotent and never hangs; failures are surfaced as
// ErrStopFailed for the caller to log.
func (s *Supervisor) Stop(h *Handle) error {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return nil
	}

	if h.State() == StateStopped {
		return nil
	}
	s.setState(h, StateStopping)

	var stopErr error

	if exited, _ := h.Exited(); !exited {
		// SIGTERM the process group so worker children go down too
		pgid, err := syscall.Getpgid(h.pid)
		if err == nil {
			syscall.Kill(-pgid, syscall.SIGTERM)
		} else {
			h.cmd.Process.Signal(syscall.SIGTERM)
		}

		select {
		case <-h.done:
		case <-time.After(s.gracePeriod):
			s.logger.Warn("force_killing_worker", "pid", h.pid)
			if pgid, err := syscall.Getpgid(h.pid); err == nil {
				syscall.Kill(-pgid, syscall.SIGKILL)
			} else {
				h.cmd.Process.Kill()
			}

			select {
			case <-h.done:
			case <-time.After(2 * time.Second):
				stopErr = fmt.Errorf("%w: pid %d did not exit after SIGKILL", ErrStopFailed, h.pid)
			}
		}
	}

	// Sweep for strays: forked children, or a worker re-spawned by an
	// external wrapper script
	pattern := fmt.Sprintf("%s.*--port %d", s.builder.Name(), s.port)
	strays := append(findPIDsByPattern(pattern), findPIDsByPort(s.port)...)
	if len(strays) > 0 {
		if err := terminatePIDs(s.logger, strays, s.gracePeriod); err != nil && stopErr == nil {
			stopErr = fmt.Errorf("%w: %v", ErrStopFailed, err)
		}
	}

	s.setState(h, StateStopped)

	if s.callbacks.OnExit != nil {
		_, code := h.Exited()
		s.callbacks.OnExit(code, time.Since(h.startTime))
	}

	s.logger.Info("worker_stopped",
		"pid", h.pid,
		"uptime", time.Since(h.startTime).Round(time.Millisecond).String(),
	)

	return stopErr
}

// setState updates the handle state and calls the callback if registered.
func (s *Supervisor) setState(h *Handle, newState State) {
	h.stateMu.Lock()
	oldState := h.state
	h.state = newState
	h.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(oldState, newState)
	}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
