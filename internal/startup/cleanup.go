// Package startup provides utilities for application startup tasks.
package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/vidbrief/internal/pipeline"
	"github.com/jmylchreest/vidbrief/internal/repository"
	"github.com/jmylchreest/vidbrief/internal/transcode"
)

// DefaultCleanupAge is the default maximum age for orphaned scratch directories.
const DefaultCleanupAge = 6 * time.Hour

// ScratchDirPrefixes are the directory prefixes created under the scratch root.
var ScratchDirPrefixes = []string{pipeline.JobDirPrefix, transcode.ScratchDirPrefix}

// CleanupOrphanedScratchDirs removes job and transcode directories under
// baseDir that are older than maxAge. These are left behind when the process
// dies mid-run. It returns the number of directories removed.
func CleanupOrphanedScratchDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultCleanupAge
	}

	entries, err := os.ReadDir(baseDir)
	if os.IsNotExist(err) {
		logger.Debug("scratch directory does not exist, skipping cleanup", slog.String("path", baseDir))
		return 0, nil
	}
	if err != nil {
		logger.Error("failed to read scratch directory for cleanup",
			slog.String("path", baseDir),
			slog.String("error", err.Error()))
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !hasScratchPrefix(entry.Name()) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get directory info", slog.String("path", dirPath), slog.String("error", err.Error()))
			continue
		}

		age := time.Since(info.ModTime()).Round(time.Second)
		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent scratch directory", slog.String("path", dirPath), slog.Duration("age", age))
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned scratch directory", slog.String("path", dirPath), slog.String("error", err.Error()))
			continue
		}

		logger.Info("removed orphaned scratch directory", slog.String("path", dirPath), slog.Duration("age", age))
		removed++
	}

	return removed, nil
}

func hasScratchPrefix(name string) bool {
	for _, prefix := range ScratchDirPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// RecoverAbandonedRuns marks runs left in "running" by a previous process as
// failed. Nothing can be running yet when this is called.
func RecoverAbandonedRuns(ctx context.Context, logger *slog.Logger, runs repository.RunRepository) (int64, error) {
	n, err := runs.MarkAbandoned(ctx, "interrupted by restart")
	if err != nil {
		logger.Error("failed to recover abandoned runs", slog.String("error", err.Error()))
		return 0, err
	}
	if n > 0 {
		logger.Warn("marked abandoned runs as failed", slog.Int64("count", n))
	}
	return n, nil
}
