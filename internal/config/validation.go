package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if c.Application.ProgID == "" {
		errs = append(errs, ValidationError{
			Field:   "application.prog_id",
			Message: "must not be empty",
		})
	}
	if c.Application.AttachRetryMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "application.attach_retry_ms",
			Message: "must be at least 100",
		})
	}

	if c.Worker.PumpIntervalMs < 1 || c.Worker.PumpIntervalMs > 1000 {
		errs = append(errs, ValidationError{
			Field:   "worker.pump_interval_ms",
			Message: "must be between 1 and 1000",
		})
	}
	if c.Worker.RequestQueueSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "worker.request_queue_size",
			Message: "must be positive",
		})
	}
	if c.Worker.AnnounceQueueSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "worker.announce_queue_size",
			Message: "must be positive",
		})
	}
	if c.Worker.ShutdownTimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "worker.shutdown_timeout_sec",
			Message: "must be positive",
		})
	}

	if c.Resolution.Enabled {
		if c.Resolution.RetryAttempts < 1 {
			errs = append(errs, ValidationError{
				Field:   "resolution.retry_attempts",
				Message: "must be positive",
			})
		}
		if c.Resolution.RetryBackoffMs < 1 {
			errs = append(errs, ValidationError{
				Field:   "resolution.retry_backoff_ms",
				Message: "must be positive",
			})
		}
	}

	if c.Mentions.StrongThreshold < c.Mentions.WeakThreshold {
		errs = append(errs, ValidationError{
			Field:   "mentions.strong_threshold",
			Message: "must not be below weak_threshold",
		})
	}
	if c.Mentions.WeakThreshold <= 0 || c.Mentions.StrongThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "mentions",
			Message: "thresholds must be within (0, 1]",
		})
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "journal.path",
			Message: "must be set when journal is enabled",
		})
	}

	if c.IPC.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.IPC.ListenAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "ipc.listen_addr",
				Message: fmt.Sprintf("invalid address: %v", err),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
