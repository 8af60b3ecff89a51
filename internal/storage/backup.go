package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
)

// Backup strategies for BackupKey.
const (
	// BackupStrategyFile inserts the backup key before the extension: a/name_<bk>.ext.
	BackupStrategyFile = "file"
	// BackupStrategyFolder nests the object in a backup folder: a/<bk>/name.ext.
	BackupStrategyFolder = "folder"
)

// BackupKeyResult is the key an existing object is copied to before it is
// overwritten. Degraded is set when the strategy could not be applied and Key
// fell back to "<key>_<backupKey>"; Reason says why.
type BackupKeyResult struct {
	Key      string `json:"key"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// BackupKey derives the backup location for key.
func BackupKey(key, backupKey, strategy string) BackupKeyResult {
	fallback := func(reason string) BackupKeyResult {
		return BackupKeyResult{Key: key + "_" + backupKey, Degraded: true, Reason: reason}
	}

	if backupKey == "" {
		return fallback("backup key is empty")
	}
	name := path.Base(key)
	if key == "" || strings.HasSuffix(key, "/") || name == "." || name == "/" {
		return fallback("key has no file name")
	}
	folder := strings.TrimSuffix(key, name)

	switch strategy {
	case BackupStrategyFile:
		if strings.Count(key, ".") != 1 || !strings.Contains(name, ".") {
			return fallback("file strategy needs exactly one '.' and it must be in the file name")
		}
		stem, ext, _ := strings.Cut(name, ".")
		return BackupKeyResult{Key: folder + stem + "_" + backupKey + "." + ext}
	case BackupStrategyFolder:
		return BackupKeyResult{Key: folder + backupKey + "/" + name}
	default:
		return fallback(fmt.Sprintf("unknown backup strategy %q", strategy))
	}
}

// BackupOutcome reports what PutWithBackup did with a pre-existing object.
type BackupOutcome struct {
	BackedUp bool `json:"backed_up"`
	BackupKeyResult
}

// PutWithBackup writes content to key. When backupKey is set and key already
// exists, the current object is first copied to BackupKey(key, backupKey, strategy).
// A failed backup aborts the write so the existing object is never lost.
func PutWithBackup(ctx context.Context, store ObjectStore, key string, content io.Reader, contentType, backupKey, strategy string) (BackupOutcome, error) {
	var outcome BackupOutcome

	if backupKey != "" {
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return outcome, fmt.Errorf("checking %s: %w", store.URI(key), err)
		}
		if exists {
			outcome.BackupKeyResult = BackupKey(key, backupKey, strategy)
			if outcome.Degraded {
				slog.Warn("backup strategy degraded",
					slog.String("key", key),
					slog.String("backup_key", outcome.Key),
					slog.String("reason", outcome.Reason))
			}
			if err := Copy(ctx, store, key, outcome.Key); err != nil {
				return outcome, fmt.Errorf("backing up %s: %w", store.URI(key), err)
			}
			outcome.BackedUp = true
		}
	}

	if err := store.Put(ctx, key, content, contentType); err != nil {
		return outcome, fmt.Errorf("writing %s: %w", store.URI(key), err)
	}
	return outcome, nil
}
