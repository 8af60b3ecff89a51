package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreVars(t *testing.T) {
	t.Helper()
	v, c, d, b, s := Version, Commit, Date, Branch, TreeState
	t.Cleanup(func() {
		Version, Commit, Date, Branch, TreeState = v, c, d, b, s
	})
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, ApplicationName, info.Application)
	assert.NotEmpty(t, info.Version)
	assert.Contains(t, info.Platform, runtime.GOOS)
	assert.Contains(t, info.Platform, runtime.GOARCH)
}

func TestString(t *testing.T) {
	restoreVars(t)

	Version, Commit, TreeState, Branch = "1.0.0", "unknown", "unknown", "unknown"
	assert.True(t, strings.HasPrefix(String(), "vidbrief version 1.0.0 ("))

	Commit, Date, Branch, TreeState = "abc123def456789", "2026-01-15T10:30:00Z", "main", "clean"
	s := String()
	assert.Contains(t, s, "commit: abc123de,")
	assert.Contains(t, s, "built: 2026-01-15")
	assert.Contains(t, s, "branch: main")
}

func TestShort(t *testing.T) {
	restoreVars(t)

	Version, Commit = "1.0.0", "unknown"
	assert.Equal(t, "1.0.0", Short())

	Commit, TreeState = "abc123def456789", "dirty"
	assert.Equal(t, "1.0.0 (abc123de*)", Short())
}

func TestJSON(t *testing.T) {
	restoreVars(t)
	Version, Commit, Branch = "1.2.3", "abc123def456789", "feature"

	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123def456789", info.Commit)
	assert.Equal(t, "feature", info.Branch)
	assert.Equal(t, ApplicationName, info.Application)
}

func TestUserAgent(t *testing.T) {
	restoreVars(t)
	Version = "2.0.0"
	assert.Equal(t, "vidbrief/2.0.0", UserAgent())
}

func TestIsSnapshot(t *testing.T) {
	restoreVars(t)

	tests := []struct {
		version  string
		expected bool
	}{
		{"dev", true},
		{"1.0.0", false},
		{"1.0.1-SNAPSHOT.abc1234", true},
		{"1.2.3-alpha.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			Version = tt.version
			assert.Equal(t, tt.expected, IsSnapshot())
			assert.Equal(t, tt.expected, GetInfo().Snapshot)
		})
	}
}
