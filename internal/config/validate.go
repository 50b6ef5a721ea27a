package config

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = will be ignored
}

// ValidateConfig checks cfg for values no command can run with.
func ValidateConfig(cfg *Config) []ValidationError {
	var errors []ValidationError

	if cfg.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "timeout",
			Message: fmt.Sprintf("must be a positive number of seconds, got %d", cfg.Timeout),
			Fatal:   true,
		})
	}

	if cfg.SnapshotName == "" {
		errors = append(errors, ValidationError{
			Field:   "snapshot_name",
			Message: "must not be empty",
			Fatal:   true,
		})
	} else if strings.IndexFunc(cfg.SnapshotName, unicode.IsSpace) >= 0 {
		// savevm takes the rest of the command line as the name.
		errors = append(errors, ValidationError{
			Field:   "snapshot_name",
			Message: fmt.Sprintf("must not contain whitespace, got %q", cfg.SnapshotName),
			Fatal:   true,
		})
	}

	if cfg.PollInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "poll_interval",
			Message: fmt.Sprintf("must be a positive number of seconds, got %d", cfg.PollInterval),
			Fatal:   true,
		})
	}

	if cfg.MaxWait < 0 {
		errors = append(errors, ValidationError{
			Field:   "max_wait",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.MaxWait),
			Fatal:   true,
		})
	}

	// Endpoints can only be parsed once the timeout is usable.
	if cfg.Timeout > 0 {
		if _, err := cfg.AgentEndpoint(); err != nil {
			errors = append(errors, ValidationError{Field: "qga_socket", Message: err.Error(), Fatal: true})
		}
		if _, err := cfg.MonitorEndpoint(); err != nil {
			errors = append(errors, ValidationError{Field: "qmp_socket", Message: err.Error(), Fatal: true})
		}
	}

	if cfg.SSHInsecureIgnoreHostKey && cfg.SSHKnownHosts != "" {
		errors = append(errors, ValidationError{
			Field:   "ssh_known_hosts",
			Message: "ignored because ssh_insecure_ignore_host_key is set",
			Fatal:   false,
		})
	}

	return errors
}

// HasFatal reports whether any of errors prevents running.
func HasFatal(errors []ValidationError) bool {
	for _, e := range errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration problems:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
