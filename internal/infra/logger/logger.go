// internal/infra/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expiry_notifier/internal/infra/config"

	"github.com/sirupsen/logrus"
)

const transcriptTimeLayout = "20060102_150405"

// Log is the global logger instance
var Log = logrus.New()

// Transcript is the per-run log file the global logger mirrors into.
type Transcript struct {
	Path string
	file *os.File
}

// Close detaches the transcript from the logger and closes the file.
func (t *Transcript) Close() error {
	if t == nil || t.file == nil {
		return nil
	}
	Log.SetOutput(os.Stdout)
	return t.file.Close()
}

// Init initializes the global logger based on application configuration.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout) // Default output

	// Set Log Level
	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		Log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		Log.SetLevel(logrus.InfoLevel)
	} else {
		Log.SetLevel(level)
	}

	// Set Log Formatter
	if cfg.Environment == "production" || cfg.Environment == "staging" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   true, // The same stream ends up in the transcript file
		})
	}

	Log.Debugf("Log level set to: %s", Log.GetLevel().String())
	Log.Debugf("Log format set for environment: %s", cfg.Environment)
}

// StartTranscript creates logDir if needed and mirrors the global logger into
// <logDir>/<baseName>_<timestamp>.log for the rest of the run.
func StartTranscript(logDir, baseName string, now time.Time) (*Transcript, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	path := filepath.Join(logDir, TranscriptName(baseName, now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript %s: %w", path, err)
	}

	Log.SetOutput(io.MultiWriter(os.Stdout, f))
	Log.Infof("Transcript started: %s", path)
	return &Transcript{Path: path, file: f}, nil
}

// TranscriptName builds the file name for a transcript started at now.
func TranscriptName(baseName string, now time.Time) string {
	return fmt.Sprintf("%s_%s.log", baseName, now.Format(transcriptTimeLayout))
}

// BaseName returns the executable's name without directory or extension.
func BaseName(executable string) string {
	base := filepath.Base(executable)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Prune deletes transcripts of baseName in logDir last modified more than
// retention before now. It returns the number of files removed. Files that
// cannot be removed are logged and skipped.
func Prune(logDir, baseName string, retention time.Duration, now time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(logDir, baseName+"_*.log"))
	if err != nil {
		return 0, fmt.Errorf("failed to list transcripts in %s: %w", logDir, err)
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			Log.Warnf("Could not stat transcript %s: %v", path, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			Log.Warnf("Could not remove old transcript %s: %v", path, err)
			continue
		}
		Log.Debugf("Removed old transcript %s", path)
		removed++
	}
	return removed, nil
}
