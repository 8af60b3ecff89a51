// Package logship uploads a run's captured log to an object store, keeping
// the previously shipped log under a timestamped backup key.
package logship

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/storage"
)

// BackupKeyFormat is the time layout used for backup keys.
const BackupKeyFormat = "20060102T150405Z"

// Shipper writes log content to a fixed key.
type Shipper struct {
	store    storage.ObjectStore
	key      string
	strategy string
	logger   *slog.Logger
}

// New creates a Shipper for cfg writing to store.
func New(store storage.ObjectStore, cfg config.LogShipConfig) *Shipper {
	strategy := cfg.BackupStrategy
	if strategy == "" {
		strategy = storage.BackupStrategyFile
	}
	return &Shipper{store: store, key: cfg.Key, strategy: strategy, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *Shipper) WithLogger(logger *slog.Logger) *Shipper {
	s.logger = logger
	return s
}

// Ship uploads content. Any log already at the key is first copied to a
// backup key derived from runStarted.
func (s *Shipper) Ship(ctx context.Context, content []byte, runStarted time.Time) (storage.BackupOutcome, error) {
	backupKey := runStarted.UTC().Format(BackupKeyFormat)
	outcome, err := storage.PutWithBackup(ctx, s.store, s.key, bytes.NewReader(content), "text/plain; charset=utf-8", backupKey, s.strategy)
	if err != nil {
		return outcome, fmt.Errorf("shipping log: %w", err)
	}

	attrs := []any{slog.String("uri", s.store.URI(s.key)), slog.Int("bytes", len(content))}
	if outcome.BackedUp {
		attrs = append(attrs, slog.String("backup", s.store.URI(outcome.Key)), slog.Bool("backup_degraded", outcome.Degraded))
	}
	s.logger.Info("run log shipped", attrs...)
	return outcome, nil
}
