package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agentcore/internal/coreconfig"
)

func TestOpenSqliteCreatesUsableHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.db")
	pool, err := Open(coreconfig.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	require.NotNil(t, pool.DB())

	require.NoError(t, pool.DB().Ping())
	require.NoError(t, pool.Close())
}

func TestOpenUnsupportedDriverFails(t *testing.T) {
	_, err := Open(coreconfig.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestCloseOnZeroValuePoolIsSafe(t *testing.T) {
	var pool Pool
	assert.NoError(t, pool.Close())
}
