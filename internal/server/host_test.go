package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agentcore/internal/coreconfig"
	"github.com/kandev/agentcore/internal/corelog"
)

func testConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	return &coreconfig.Config{
		Server: coreconfig.ServerConfig{
			Host: "127.0.0.1", Port: 0,
			ReadTimeout: 5, WriteTimeout: 5, ShutdownTimeout: 2,
		},
		Database: coreconfig.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "agentcore.db"),
		},
		Logging: coreconfig.LoggingConfig{Level: "error"},
	}
}

func testLogger(t *testing.T) *corelog.Logger {
	t.Helper()
	log, err := corelog.New(corelog.Config{Level: "error"})
	require.NoError(t, err)
	return log
}

func TestNewWiresEveryComponent(t *testing.T) {
	host, err := New(testConfig(t), testLogger(t))
	require.NoError(t, err)
	defer host.Pool.Close()

	assert.NotNil(t, host.Pool)
	assert.NotNil(t, host.Broadcaster)
	assert.NotNil(t, host.Executor)
	assert.NotNil(t, host.Registry)
	assert.NotNil(t, host.Bridge)
	assert.NotNil(t, host.Shutdown)
}

func TestHealthEndpointReportsOK(t *testing.T) {
	host, err := New(testConfig(t), testLogger(t))
	require.NoError(t, err)
	defer host.Pool.Close()

	srv := httptest.NewServer(host.router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCloseTriggersShutdownCoordinator(t *testing.T) {
	host, err := New(testConfig(t), testLogger(t))
	require.NoError(t, err)
	defer host.Pool.Close()

	assert.False(t, host.Shutdown.Triggered())
	host.Close()
	assert.True(t, host.Shutdown.Triggered())
}
