package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchain/backend/internal/config"
)

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = "sqlite"
	cfg.DB.Path = filepath.Join(t.TempDir(), "open.db")

	repo, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer repo.Close()

	m, err := NewMigrator(repo)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "second run is a no-op")

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	list, err := repo.ListWorkflowsByOwner(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	require.NoError(t, m.Close())
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = "oracle"
	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}
