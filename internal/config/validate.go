package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/clatterbridge/go-moshi-deploy/internal/serverconfig"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.BinaryPath == "" {
		errs = append(errs, ValidationError{
			Field:   "binary",
			Message: "worker binary path is required",
		})
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "port",
			Message: fmt.Sprintf("must be in 1-65535 (got %d)", cfg.Port),
		})
	}

	if cfg.Addr != "" {
		if err := validateAddr(cfg.Addr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "addr",
				Message: err.Error(),
			})
		}
	}

	// Model preset only matters when no explicit repo or config is given
	if cfg.ModelRepo == "" && cfg.ConfigPath == "" && !serverconfig.ValidPreset(cfg.Model) {
		errs = append(errs, ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("must be one of: 0.75b, 1.6b (got %q)", cfg.Model),
		})
	}

	if cfg.ReadyTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "ready_timeout",
			Message: "must be positive",
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}
	if cfg.ReadyTimeout > 0 && cfg.PollInterval >= cfg.ReadyTimeout {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: fmt.Sprintf("must be shorter than ready_timeout (%v)", cfg.ReadyTimeout),
		})
	}
	if cfg.GracePeriod <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grace",
			Message: "must be positive",
		})
	}

	if cfg.Bench < 0 {
		errs = append(errs, ValidationError{
			Field:   "bench",
			Message: "must not be negative",
		})
	}
	if cfg.Bench > 0 && cfg.SkipSmoke {
		errs = append(errs, ValidationError{
			Field:   "bench",
			Message: "-bench requires the smoke test (-skip-smoke=false)",
		})
	}
	if cfg.WAVPath != "" && cfg.SkipSmoke {
		errs = append(errs, ValidationError{
			Field:   "wav",
			Message: "-wav requires the smoke test (-skip-smoke=false)",
		})
	}
	if cfg.SmokeTimeout <= 0 && !cfg.SkipSmoke {
		errs = append(errs, ValidationError{
			Field:   "smoke_timeout",
			Message: "must be positive",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics",
				Message: fmt.Sprintf("must be host:port (got %q)", cfg.MetricsAddr),
			})
		}
	}

	if cfg.WorkerMetricsURL != "" && !strings.HasPrefix(cfg.WorkerMetricsURL, "http://") && !strings.HasPrefix(cfg.WorkerMetricsURL, "https://") {
		errs = append(errs, ValidationError{
			Field:   "worker_metrics",
			Message: "must be an http(s) URL",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateAddr checks the bind address is an IP, not a URL or host:port.
func validateAddr(addr string) error {
	if strings.Contains(addr, "://") {
		return errors.New("must be an IP address, not a URL")
	}
	if strings.Contains(addr, ":") && net.ParseIP(addr) == nil {
		return errors.New("must be a bare IP address without a port")
	}
	return nil
}

// ApplyCheckMode modifies config for --check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.Duration = 10 * time.Second
	cfg.Verbose = true
	cfg.TUIEnabled = false
}
