package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.default_timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Lock config
	errors = append(errors, c.validateLock()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateLock validates the LockConfig
func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	if c.Lock.DefaultTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.default_timeout",
			Value:   c.Lock.DefaultTimeout,
			Message: "must be non-negative (0 disables locking)",
		})
	}

	// A day is far beyond any sane wait for a file lock
	const maxTimeoutSeconds = 24 * 60 * 60
	if c.Lock.DefaultTimeout > maxTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "lock.default_timeout",
			Value:   c.Lock.DefaultTimeout,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxTimeoutSeconds),
		})
	}

	if strings.ContainsRune(c.Lock.Directory, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "lock.directory",
			Value:   c.Lock.Directory,
			Message: "path contains invalid null character",
		})
	}

	if c.Lock.BackoffInitialMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.backoff_initial_ms",
			Value:   c.Lock.BackoffInitialMs,
			Message: "must be positive",
		})
	}

	if c.Lock.BackoffMaxMs < c.Lock.BackoffInitialMs {
		errors = append(errors, ValidationError{
			Field:   "lock.backoff_max_ms",
			Value:   c.Lock.BackoffMaxMs,
			Message: "must be at least lock.backoff_initial_ms",
		})
	}

	if c.Lock.BackoffMultiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "lock.backoff_multiplier",
			Value:   c.Lock.BackoffMultiplier,
			Message: "must be at least 1",
		})
	}

	if c.Lock.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.max_retries",
			Value:   c.Lock.MaxRetries,
			Message: "must be non-negative (0 = bounded by timeout only)",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
