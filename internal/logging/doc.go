// Package logging provides structured logging for nxguard.
//
// It wraps log/slog to write JSON lines tagged with the data file and
// marker path they concern, so lock contention can be reconstructed after
// the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/nxguard.log", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	fileLogger := logger.WithFile("/data/settings.nxs").WithLock("/data/settings.nxs.lock")
//	fileLogger.Info("lock acquired", "waited_ms", 12)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"lock acquired","file":"/data/settings.nxs","lock":"/data/settings.nxs.lock","waited_ms":12}
//
// An empty path logs to stderr. [NopLogger] discards everything and is the
// default for library callers that do not configure logging.
//
// # Log Rotation
//
// [NewLoggerWithRotation] hands the file to lumberjack. Backups are named
// "<name>-<timestamp><ext>" next to the active file and are picked up by
// [ReadLogs].
//
// # Reading Logs
//
//	entries, err := logging.ReadLogs("/var/log/nxguard.log")
//	if err != nil {
//	    return err
//	}
//	warnings := logging.FilterLogs(entries, logging.LogFilter{
//	    Level: "WARN",
//	    File:  "/data/settings.nxs",
//	})
//	_ = logging.WriteEntries(os.Stdout, warnings, "text")
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created with the With* methods share the parent's sink.
package logging
