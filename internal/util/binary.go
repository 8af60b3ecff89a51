// Package util provides shared utility functions.
package util

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrNotFound is returned when no executable candidate exists.
var ErrNotFound = errors.New("binary not found")

// FindBinary searches for an executable binary by name.
// Search order:
//  1. explicit (a configured path, if non-empty)
//  2. the envVar environment variable (if non-empty and set)
//  3. ./name
//  4. name on PATH
//
// A configured path that is not executable is an error rather than a fallthrough.
func FindBinary(name, explicit, envVar string) (string, error) {
	if explicit != "" {
		if isExecutable(explicit) {
			return explicit, nil
		}
		return "", fmt.Errorf("%s at %s: %w", name, explicit, ErrNotFound)
	}

	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
			return envPath, nil
		}
	}

	localPath := "./" + name
	if isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

// isExecutable checks if a regular file exists with any executable bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
