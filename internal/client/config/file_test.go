package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func Test_parseFile_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("loads json", func(t *testing.T) {
		path := writeTempFile(t, "cfg.json", `{
			"server_endpoint_addr": "www.example:9000",
			"online_check_interval": "10s",
			"max_attempts": 3,
			"conflict_policy": "client-wins"
		}`)
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFile(cfg)

		assert.Equal(t, "www.example:9000", cfg.ServerEndpointAddr)
		assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
		assert.Equal(t, 3, cfg.MaxAttempts)
		assert.Equal(t, "client-wins", cfg.ConflictPolicy)
		// untouched keys keep their defaults
		assert.Equal(t, "ledgersync.db", cfg.DBPath)
		assert.Equal(t, 5*time.Minute, cfg.BackoffMax)
	})

	t.Run("loads toml", func(t *testing.T) {
		path := writeTempFile(t, "cfg.toml", `
access_token = "abc"
backoff_min = "500ms"
backoff_max = "1m"
remote_call_timeout = "3s"
log_level = "debug"
`)
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		parseFile(cfg)

		assert.Equal(t, "abc", cfg.AccessToken)
		assert.Equal(t, 500*time.Millisecond, cfg.BackoffMin)
		assert.Equal(t, time.Minute, cfg.BackoffMax)
		assert.Equal(t, 3*time.Second, cfg.RemoteCallTimeout)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{ServerEndpointAddr: "defaults:1234", OnlineCheckInterval: 42 * time.Second}
		parseFile(cfg)

		assert.Equal(t, "defaults:1234", cfg.ServerEndpointAddr)
		assert.Equal(t, 42*time.Second, cfg.OnlineCheckInterval)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := writeTempFile(t, "bad.json", `{ this is not valid json`)
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseFile(&Config{}) })
	})

	t.Run("bad duration → panics", func(t *testing.T) {
		bad := writeTempFile(t, "bad.toml", `sync_interval = "soon"`)
		os.Args = []string{"testbin", "-c", bad}

		require.Panics(t, func() { parseFile(&Config{}) })
	})
}
