package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gravecore/internal/blob"
	"gravecore/internal/core"
	"gravecore/internal/infra/mq"
)

const sampleConfig = `
[server]
host = "127.0.0.1"
port = 8080
read_timeout = "5s"

[log]
level = "debug"
format = "json"

[storage]
driver = "memory"

[blob]
driver = "memory"

[events]
driver = "memory"

[audit]
enabled = false

[graph]
enabled = false
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, core.StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, blob.DriverMemory, cfg.Blob.Driver)
	assert.Equal(t, core.DefaultChangeTopic, cfg.Events.Topic)
	assert.Equal(t, mq.DefaultConsumerGroup, cfg.Events.Group)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestParseConfigEnvOverrides(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("GRAVECORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("GRAVECORE_SQLITE_PATH", dbPath)
	t.Setenv("GRAVECORE_BLOB_DRIVER", "fs")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, core.StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, dbPath, cfg.Storage.SQLitePath)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "missing port", data: "[server]\n", wantErr: "server"},
		{name: "bad timeout", data: "[server]\nport = 80\nwrite_timeout = \"soon\"\n", wantErr: "write_timeout"},
		{name: "bad log level", data: "[server]\nport = 80\n[log]\nlevel = \"loud\"\n", wantErr: "log"},
		{name: "bad storage", data: "[server]\nport = 80\n[storage]\ndriver = \"tape\"\n", wantErr: "storage"},
		{name: "s3 without bucket", data: "[server]\nport = 80\n[blob]\ndriver = \"s3\"\n", wantErr: "blob"},
		{name: "kafka without brokers", data: "[server]\nport = 80\n[events]\ndriver = \"kafka\"\n", wantErr: "events"},
		{name: "audit without addr", data: "[server]\nport = 80\n[audit]\nenabled = true\n", wantErr: "audit"},
		{name: "graph without uri", data: "[server]\nport = 80\n[graph]\nenabled = true\n", wantErr: "graph"},
		{name: "not toml", data: "[server", wantErr: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
