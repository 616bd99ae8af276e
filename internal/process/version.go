package process

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Version runs the worker binary with --version and returns the version
// string from the first line of output.
func (r *MoshiRunner) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, r.config.BinaryPath, "--version")

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("version probe failed: %w", err)
	}

	return parseVersionOutput(string(output)), nil
}

// parseVersionOutput extracts the version token from --version output.
// Expected shape: "moshi-server 0.6.3".
func parseVersionOutput(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return "unknown"
	}

	fields := strings.Fields(lines[0])
	if len(fields) >= 2 {
		return fields[1]
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return "unknown"
}

// BinaryAvailable checks if the worker binary can be found.
func BinaryAvailable(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}
