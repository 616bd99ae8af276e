package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Probe checks whether the worker is ready to serve traffic.
type Probe interface {
	// Ready returns true if the probe succeeded.
	Ready(ctx context.Context) bool

	// Name returns a human-readable name for logging.
	Name() string
}

// TCPProbe succeeds when a TCP connection to the worker port can be
// established. The connection is closed immediately; no bytes are sent.
type TCPProbe struct {
	Addr    string
	Port    int
	Timeout time.Duration
}

// Ready attempts a connect-close cycle against the worker port.
func (p *TCPProbe) Ready(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Addr, fmt.Sprintf("%d", p.Port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Name returns "tcp".
func (p *TCPProbe) Name() string {
	return "tcp"
}

// maxMarkerScanBytes bounds how much of the log file the marker probe reads.
// The marker appears within the first few KB of a normal startup; 256 KB
// leaves room for verbose RUST_LOG settings.
const maxMarkerScanBytes = 256 * 1024

// LogMarkerProbe succeeds when the worker log file contains the marker
// substring. Matching is case-insensitive.
type LogMarkerProbe struct {
	Path   string
	Marker string
}

// Ready scans the log file for the marker.
func (p *LogMarkerProbe) Ready(ctx context.Context) bool {
	marker := p.Marker
	if marker == "" {
		marker = "listening"
	}

	f, err := os.Open(p.Path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, maxMarkerScanBytes)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return false
	}

	return strings.Contains(strings.ToLower(string(buf[:n])), strings.ToLower(marker))
}

// Name returns "log_marker".
func (p *LogMarkerProbe) Name() string {
	return "log_marker"
}

// AnyProbe combines probes with OR semantics: ready as soon as any
// member probe reports ready.
type AnyProbe []Probe

// Ready returns true if any member probe is ready.
func (p AnyProbe) Ready(ctx context.Context) bool {
	for _, probe := range p {
		if probe.Ready(ctx) {
			return true
		}
	}
	return false
}

// Name returns the combined probe names.
func (p AnyProbe) Name() string {
	names := make([]string, len(p))
	for i, probe := range p {
		names[i] = probe.Name()
	}
	return strings.Join(names, "|")
}

// DefaultProbes returns the standard probe set for a worker: TCP connect
// OR the "listening" marker in the worker log.
func DefaultProbes(addr string, port int, logPath string) Probe {
	return AnyProbe{
		&TCPProbe{Addr: addr, Port: port},
		&LogMarkerProbe{Path: logPath},
	}
}
