package coreconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithPathAppliesDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "", cfg.NATS.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithPathReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  host: 127.0.0.1
  port: 9090
database:
  driver: postgres
  host: db.internal
  port: 5433
  dbName: agentcore_test
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
}

func TestLoadWithPathEnvOverridesFile(t *testing.T) {
	t.Setenv("AGENTCORE_SERVER_PORT", "7000")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9090\n"), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 70000},
		Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
	}
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateRejectsSqliteWithoutPath(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "sqlite", Path: ""},
	}
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")
}

func TestValidateRejectsPostgresWithoutDBName(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "postgres", Port: 5432, DBName: ""},
	}
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dbName")
}

func TestValidateRejectsUnsupportedDriver(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "mysql"},
	}
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestServerConfigDurationHelpers(t *testing.T) {
	s := ServerConfig{ReadTimeout: 5, WriteTimeout: 10, ShutdownTimeout: 15}
	assert.Equal(t, 5*time.Second, s.ReadTimeoutDuration())
	assert.Equal(t, 10*time.Second, s.WriteTimeoutDuration())
	assert.Equal(t, 15*time.Second, s.ShutdownTimeoutDuration())
}
