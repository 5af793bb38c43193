package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "lock.default_timeout",
		Value:   -5,
		Message: "must be non-negative",
	}

	want := "lock.default_timeout: must be non-negative (got: -5)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		if got := (ValidationErrors{}).Error(); got != "" {
			t.Errorf("Error() = %q, want empty string", got)
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
		if got := errs.Error(); got != "a: bad (got: 1)" {
			t.Errorf("Error() = %q", got)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		got := errs.Error()
		if !strings.HasPrefix(got, "2 validation errors:") {
			t.Errorf("Error() = %q, want count prefix", got)
		}
		if !strings.Contains(got, "1. a: bad") || !strings.Contains(got, "2. b: worse") {
			t.Errorf("Error() = %q, want both errors listed", got)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v, want no errors", errs)
	}
}

func hasField(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate_Lock(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:   "positive timeout",
			modify: func(c *Config) { c.Lock.DefaultTimeout = 20 },
		},
		{
			name:      "negative timeout",
			modify:    func(c *Config) { c.Lock.DefaultTimeout = -1 },
			wantField: "lock.default_timeout",
		},
		{
			name:      "timeout too large",
			modify:    func(c *Config) { c.Lock.DefaultTimeout = 90000 },
			wantField: "lock.default_timeout",
		},
		{
			name:      "null byte in directory",
			modify:    func(c *Config) { c.Lock.Directory = "/tmp/\x00locks" },
			wantField: "lock.directory",
		},
		{
			name:      "zero initial backoff",
			modify:    func(c *Config) { c.Lock.BackoffInitialMs = 0 },
			wantField: "lock.backoff_initial_ms",
		},
		{
			name:      "max below initial",
			modify:    func(c *Config) { c.Lock.BackoffMaxMs = 10 },
			wantField: "lock.backoff_max_ms",
		},
		{
			name:      "shrinking multiplier",
			modify:    func(c *Config) { c.Lock.BackoffMultiplier = 0.5 },
			wantField: "lock.backoff_multiplier",
		},
		{
			name:      "negative retries",
			modify:    func(c *Config) { c.Lock.MaxRetries = -2 },
			wantField: "lock.max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()

			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("Validate() = %v, want no errors", errs)
				}
				return
			}
			if !hasField(errs, tt.wantField) {
				t.Errorf("Validate() = %v, want error for %s", errs, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			cfg := Default()
			cfg.Logging.Level = level
			if hasField(cfg.Validate(), "logging.level") {
				t.Errorf("level %q should be valid", level)
			}
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "INFO"
		if !hasField(cfg.Validate(), "logging.level") {
			t.Error("expected error for uppercase log level")
		}
	})

	t.Run("size bounds", func(t *testing.T) {
		for _, size := range []int{0, -1, 1001} {
			cfg := Default()
			cfg.Logging.MaxSizeMB = size
			if !hasField(cfg.Validate(), "logging.max_size_mb") {
				t.Errorf("expected error for max_size_mb = %d", size)
			}
		}
	})

	t.Run("negative backups", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.MaxBackups = -1
		if !hasField(cfg.Validate(), "logging.max_backups") {
			t.Error("expected error for negative max_backups")
		}
	})
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Lock.DefaultTimeout = -1
	cfg.Logging.Level = "loud"

	if errs := cfg.Validate(); len(errs) != 2 {
		t.Errorf("Validate() returned %d errors, want 2: %v", len(errs), errs)
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	want := []string{"debug", "info", "warn", "error"}
	if len(levels) != len(want) {
		t.Fatalf("ValidLogLevels() = %v, want %v", levels, want)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], want[i])
		}
	}
}
