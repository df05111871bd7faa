package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/config"
)

func TestNew_MemoryProviders(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.Logger())
	require.NotNil(t, a.store)
	require.NotNil(t, a.queue)
	require.NotNil(t, a.server)
	require.Len(t, a.workers, cfg.Coordinator.WorkerCount)
}

func TestNew_UnknownProviderFails(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Provider = "s3"

	_, err = New(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown storage provider")
}

func TestNew_LocalStorageProvider(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Provider = "local"
	cfg.Storage.LocalDir = t.TempDir()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.blobs)
}
