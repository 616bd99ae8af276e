package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// findPIDsByPattern returns PIDs of processes whose full command line
// matches the pattern. The current process and its parent are excluded.
func findPIDsByPattern(pattern string) []int {
	out, err := exec.Command("pgrep", "-f", pattern).Output()
	if err != nil {
		// pgrep exits 1 when nothing matches
		return nil
	}

	return parsePIDs(string(out))
}

// findPIDsByPort returns PIDs of processes listening on the given TCP port.
func findPIDsByPort(port int) []int {
	out, err := exec.Command("lsof", "-t", "-iTCP:"+strconv.Itoa(port), "-sTCP:LISTEN").Output()
	if err != nil {
		return nil
	}

	return parsePIDs(string(out))
}

// parsePIDs parses newline-separated PIDs, dropping self and parent.
func parsePIDs(out string) []int {
	self := os.Getpid()
	parent := os.Getppid()

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		if pid == self || pid == parent {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// isProcessAlive checks process existence with signal 0.
func isProcessAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// terminatePIDs sends SIGTERM to each PID, waits up to grace for it to
// exit, then escalates to SIGKILL. Returns an error listing PIDs that
// survived SIGKILL.
func terminatePIDs(logger *slog.Logger, pids []int, grace time.Duration) error {
	var survivors []int

	for _, pid := range pids {
		if !isProcessAlive(pid) {
			continue
		}

		logger.Warn("terminating_stray_process", "pid", pid)
		syscall.Kill(pid, syscall.SIGTERM)

		if waitForExit(pid, grace) {
			continue
		}

		logger.Warn("stray_process_sigkill", "pid", pid)
		syscall.Kill(pid, syscall.SIGKILL)

		if !waitForExit(pid, 2*time.Second) {
			survivors = append(survivors, pid)
		}
	}

	if len(survivors) > 0 {
		return fmt.Errorf("processes survived SIGKILL: %v", survivors)
	}
	return nil
}

// waitForExit polls process liveness at 100ms intervals up to the timeout.
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isProcessAlive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !isProcessAlive(pid)
}
