package logship

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/storage"
)

func read(t *testing.T, store storage.ObjectStore, key string) string {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestShipper_Ship(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	shipper := New(store, config.LogShipConfig{Key: "logs/vidbrief.log"})
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	outcome, err := shipper.Ship(ctx, []byte("run one"), first)
	require.NoError(t, err)
	assert.False(t, outcome.BackedUp)

	outcome, err = shipper.Ship(ctx, []byte("run two"), second)
	require.NoError(t, err)
	assert.True(t, outcome.BackedUp)
	assert.Equal(t, "logs/vidbrief_20240501T110000Z.log", outcome.Key)

	assert.Equal(t, "run two", read(t, store, "logs/vidbrief.log"))
	assert.Equal(t, "run one", read(t, store, "logs/vidbrief_20240501T110000Z.log"))
}

func TestShipper_FolderStrategy(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "logs/vidbrief.log", strings.NewReader("old"), ""))

	shipper := New(store, config.LogShipConfig{Key: "logs/vidbrief.log", BackupStrategy: "folder"})
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	outcome, err := shipper.Ship(ctx, []byte("new"), at)
	require.NoError(t, err)
	assert.Equal(t, "logs/20240501T080000Z/vidbrief.log", outcome.Key)
	assert.Equal(t, "old", read(t, store, outcome.Key))
}
