package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(content)), "\n")
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file and parent directories", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "logs", "nxguard.log")

		logger, err := NewLogger(logPath, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
	})

	t.Run("writes to stderr when logFile is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.out.closer != nil {
			t.Error("expected no sink when logFile is empty")
		}
	})

	t.Run("defaults to INFO level for invalid level string", func(t *testing.T) {
		logger, err := NewLogger(filepath.Join(t.TempDir(), "x.log"), "invalid")
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.logger == nil {
			t.Error("expected logger to be created")
		}
	})
}

func TestLogLevels(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nxguard.log")

	logger, err := NewLogger(logPath, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
	logger.Close()

	lines := readLines(t, logPath)
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(lines))
	}

	expectedLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
			continue
		}
		if entry["level"] != expectedLevels[i] {
			t.Errorf("line %d: expected level %s, got %v", i, expectedLevels[i], entry["level"])
		}
		if entry["key"] != "value" {
			t.Errorf("line %d: expected key=value, got key=%v", i, entry["key"])
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nxguard.log")

	logger, err := NewLogger(logPath, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	if lines := readLines(t, logPath); len(lines) != 2 {
		t.Fatalf("expected 2 log lines (WARN and ERROR only), got %d", len(lines))
	}
}

func TestContextPropagation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nxguard.log")

	logger, err := NewLogger(logPath, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.WithFile("/data/scan.nxs").WithLock("/data/scan.nxs.lock").Info("lock acquired", "attempts", 2)
	logger.Close()

	var entry map[string]any
	if err := json.Unmarshal([]byte(readLines(t, logPath)[0]), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry["file"] != "/data/scan.nxs" {
		t.Errorf("expected file=/data/scan.nxs, got %v", entry["file"])
	}
	if entry["lock"] != "/data/scan.nxs.lock" {
		t.Errorf("expected lock=/data/scan.nxs.lock, got %v", entry["lock"])
	}
	if entry["attempts"] != float64(2) {
		t.Errorf("expected attempts=2, got %v", entry["attempts"])
	}
}

func TestWith(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nxguard.log")

	logger, err := NewLogger(logPath, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	if logger.With() != logger {
		t.Error("With() without args should return the receiver")
	}

	logger.With("foo", "bar", "count", 42).Info("test message")
	logger.Close()

	var entry map[string]any
	if err := json.Unmarshal([]byte(readLines(t, logPath)[0]), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %v", entry["foo"])
	}
	if entry["count"] != float64(42) {
		t.Errorf("expected count=42, got %v", entry["count"])
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotated", "nxguard.log")

	logger, err := NewLoggerWithRotation(logPath, LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLoggerWithRotation failed: %v", err)
	}
	logger.Info("rotating sink")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	lines := readLines(t, logPath)
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	if err := logger.Close(); err != nil {
		t.Errorf("NopLogger.Close() returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"ERROR", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		if result := ParseLevel(tc.input); result != tc.expected {
			t.Errorf("ParseLevel(%q) = %q, expected %q", tc.input, result, tc.expected)
		}
	}
}

func TestClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nxguard.log")

	logger, err := NewLogger(logPath, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	child := logger.WithFile("a.nxs")
	child.Info("test message")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	// The sink is shared, so closing via the child is a no-op afterwards.
	if err := child.Close(); err != nil {
		t.Errorf("child Close() returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() returned error: %v", err)
	}
}
