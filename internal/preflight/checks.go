// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// minDiskBytes is the space needed for the largest model plus voices.
const minDiskBytes = 10 << 30 // 10 GiB

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Params carries the configuration preflight needs.
type Params struct {
	BinaryPath string
	Addr       string
	Port       int
	ModelsDir  string
	WorkDir    string
}

// RunAll executes all preflight checks.
func RunAll(p Params) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	for _, check := range []Check{
		checkWorkerBinary(p.BinaryPath),
		checkPortFree(p.Addr, p.Port),
		checkDirWritable("work_dir", p.WorkDir),
		checkDirWritable("models_dir", p.ModelsDir),
		checkDiskSpace(p.ModelsDir),
		checkFileDescriptors(),
	} {
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
		}
	}

	return result
}

// checkWorkerBinary verifies the worker binary exists and runs.
func checkWorkerBinary(path string) Check {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Check{
			Name:    "worker_binary",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	cmd := exec.Command(resolved, "--version")
	output, err := cmd.Output()
	if err != nil {
		return Check{
			Name:    "worker_binary",
			Passed:  false,
			Message: fmt.Sprintf("%s --version failed: %v", resolved, err),
		}
	}

	// "moshi-server 0.6.3"
	version := "unknown"
	fields := strings.Fields(strings.TrimSpace(string(output)))
	if len(fields) >= 2 {
		version = fields[1]
	}

	return Check{
		Name:    "worker_binary",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", resolved, version),
	}
}

// checkPortFree verifies nothing is bound on the worker's port.
func checkPortFree(addr string, port int) Check {
	hostPort := net.JoinHostPort(addr, strconv.Itoa(port))
	l, err := net.Listen("tcp", hostPort)
	if err != nil {
		return Check{
			Name:    "port_free",
			Passed:  false,
			Message: fmt.Sprintf("%s is not bindable: %v", hostPort, err),
		}
	}
	l.Close()

	return Check{
		Name:    "port_free",
		Passed:  true,
		Message: hostPort,
	}
}

// checkDirWritable verifies the directory exists (creating it) and
// accepts writes.
func checkDirWritable(name, dir string) Check {
	if dir == "" {
		return Check{
			Name:    name,
			Passed:  false,
			Message: "directory not configured",
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	os.Remove(probe)

	return Check{
		Name:    name,
		Passed:  true,
		Message: dir,
	}
}

// checkDiskSpace verifies the models directory has room for weights.
func checkDiskSpace(dir string) Check {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return Check{
			Name:    "disk_space",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check %s: %v", dir, err),
		}
	}

	free := int64(st.Bavail) * st.Bsize
	return Check{
		Name:    "disk_space",
		Passed:  true, // Cached weights may already exist, so warn only
		Warning: free < minDiskBytes,
		Message: fmt.Sprintf("%.1f GiB free in %s (recommend %d GiB)", float64(free)/(1<<30), dir, minDiskBytes>>30),
	}
}

// checkFileDescriptors verifies the fd limit covers the worker's
// batch of streaming sessions.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Worker sessions, model files, log file, metrics server
	const required = 1024
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "worker_binary":
		return "install moshi-server (cargo install moshi-server) or pass -binary"
	case "port_free":
		return "stop the process holding the port or pass -port"
	case "work_dir", "models_dir":
		return "pass a writable directory (-work-dir / -models-dir)"
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
