package statusfile

import (
	"fmt"
	"os"
	"path/filepath"

	"expiry_notifier/internal/domain/run"
)

// Write replaces the file at path with the single-character code of status.
// The file is written next to its final location and renamed into place so a
// reader never sees a partial value.
func Write(path string, status run.Status) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create status directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(status.Code()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move status file into place: %w", err)
	}
	return nil
}

// Read returns the status stored at path.
func Read(path string) (run.Status, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read status file %s: %w", path, err)
	}
	switch string(raw) {
	case run.StatusSuccess.Code():
		return run.StatusSuccess, nil
	case run.StatusFailure.Code():
		return run.StatusFailure, nil
	default:
		return "", fmt.Errorf("unexpected status file content %q", raw)
	}
}
