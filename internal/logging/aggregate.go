package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	File      string         `json:"file,omitempty"`
	Lock      string         `json:"lock,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries. Zero fields do not filter; set fields combine
// with AND.
type LogFilter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string

	StartTime time.Time
	EndTime   time.Time

	// File keeps entries about this data file.
	File string

	// Lock keeps entries about this marker.
	Lock string

	// MessageContains keeps entries whose message contains the substring.
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadLogs parses logFile and any rotated backups next to it. Lines that are
// not JSON are skipped. Entries are returned oldest first.
func ReadLogs(logFile string) ([]LogEntry, error) {
	paths, err := logFiles(logFile)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no log file found at %s: %w", logFile, os.ErrNotExist)
	}

	var entries []LogEntry
	for _, p := range paths {
		got, err := readLogFile(p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, got...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// logFiles returns logFile and its uncompressed backups. Backups are named
// "<name>-<timestamp><ext>" by the rotating writer.
func logFiles(logFile string) ([]string, error) {
	ext := filepath.Ext(logFile)
	prefix := strings.TrimSuffix(logFile, ext)
	backups, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, fmt.Errorf("failed to list log backups: %w", err)
	}
	paths := backups
	if _, err := os.Stat(logFile); err == nil {
		paths = append(paths, logFile)
	}
	return paths, nil
}

func readLogFile(path string) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)

	// Increase buffer size for potentially long log lines
	const maxScanTokenSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			// Skip corrupted lines so one bad write does not hide the rest
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file %s: %w", path, err)
	}
	return entries, nil
}

// parseLogEntry parses a single JSON log line into a LogEntry.
func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}
	if s, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			entry.Timestamp = t
		}
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	entry.File, _ = raw["file"].(string)
	entry.Lock, _ = raw["lock"].(string)

	for k, v := range raw {
		switch k {
		case "time", "level", "msg", "file", "lock":
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}

	var filtered []LogEntry
	for _, entry := range entries {
		if matchesFilter(entry, filter) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if filter.Level != "" {
		want, wantOk := levelOrder[strings.ToUpper(filter.Level)]
		got, gotOk := levelOrder[entry.Level]
		if wantOk && gotOk && got < want {
			return false
		}
	}
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.File != "" && entry.File != filter.File {
		return false
	}
	if filter.Lock != "" && entry.Lock != filter.Lock {
		return false
	}
	if filter.MessageContains != "" && !strings.Contains(entry.Message, filter.MessageContains) {
		return false
	}
	return true
}

// ValidExportFormats returns the formats accepted by WriteEntries.
func ValidExportFormats() []string {
	return []string{"text", "json", "csv"}
}

// WriteEntries writes entries to w as "text", "json" or "csv".
func WriteEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "text", "":
		return writeText(w, entries)
	case "csv":
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: %s)",
			format, strings.Join(ValidExportFormats(), ", "))
	}
}

// writeText writes "[TIMESTAMP] LEVEL - MESSAGE (context) {attrs}" lines.
func writeText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		parts := []string{
			fmt.Sprintf("[%s]", entry.Timestamp.Format("2006-01-02 15:04:05.000")),
			entry.Level,
			"-",
			entry.Message,
		}

		var context []string
		if entry.File != "" {
			context = append(context, "file="+entry.File)
		}
		if entry.Lock != "" {
			context = append(context, "lock="+entry.Lock)
		}
		if len(context) > 0 {
			parts = append(parts, fmt.Sprintf("(%s)", strings.Join(context, ", ")))
		}

		if len(entry.Attrs) > 0 {
			attrsJSON, _ := json.Marshal(entry.Attrs)
			parts = append(parts, string(attrsJSON))
		}

		if _, err := io.WriteString(w, strings.Join(parts, " ")+"\n"); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)

	headers := []string{"timestamp", "level", "message", "file", "lock", "attrs"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		attrsJSON := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrsJSON = string(b)
			}
		}
		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.File,
			entry.Lock,
			attrsJSON,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
