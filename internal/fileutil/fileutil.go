// Package fileutil provides small filesystem helpers shared by the pipeline
// and the recovery reconciler.
package fileutil

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"slipstream/internal/logging"
)

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// RemoveQuietly deletes the given paths recursively, logging failures at
// debug level. Cleanup failures are secondary errors and never escalate.
func RemoveQuietly(logger *slog.Logger, paths ...string) {
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Debug("cleanup failed", logging.String("path", path), logging.Error(err))
		}
	}
}
