package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQueue(t *testing.T) {
	q := DefaultQueue()
	assert.Equal(t, 25.0, q.RateLimit)
	assert.Equal(t, 5, q.MaxAttempts)
	assert.Equal(t, 2*time.Second, q.BackoffBase)
	assert.Equal(t, 30*time.Second, q.BackoffMax)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TGD_CONFIG", "")
	t.Setenv("TGD_BOT_TOKEN", "123:abc")
	t.Setenv("TGD_RATE_LIMIT", "10")
	t.Setenv("TGD_MAX_ATTEMPTS", "3")
	t.Setenv("TGD_BACKOFF_BASE", "500ms")
	t.Setenv("TGD_BACKOFF_MAX", "4s")
	t.Setenv("TGD_BREAKER_FAILURES", "0")
	t.Setenv("TGD_LOG_FORMAT", "JSON")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, 10.0, cfg.Queue.RateLimit)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.BackoffBase)
	assert.Equal(t, 4*time.Second, cfg.Queue.BackoffMax)
	assert.Equal(t, 0, cfg.Breaker.Failures)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "tgd.yaml")
	yml := `
telegram:
  token: from-file
queue:
  rate_limit: 5
  backoff_base: 1s
  backoff_max: 8s
server:
  http_addr: "127.0.0.1:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("TGD_CONFIG", path)
	t.Setenv("TGD_BOT_TOKEN", "")
	t.Setenv("TGD_RATE_LIMIT", "")
	t.Setenv("TGD_HTTP_ADDR", "127.0.0.1:9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Telegram.Token)
	assert.Equal(t, 5.0, cfg.Queue.RateLimit)
	assert.Equal(t, time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 8*time.Second, cfg.Queue.BackoffMax)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.HTTPAddr)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TGD_BOT_TOKEN=dotenv-token\n"), 0o600))
	t.Setenv("TGD_CONFIG", "")
	t.Setenv("TGD_BOT_TOKEN", "")
	os.Unsetenv("TGD_BOT_TOKEN")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", cfg.Telegram.Token)
	os.Unsetenv("TGD_BOT_TOKEN")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "token is required")

	cfg.Telegram.Token = "t"
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Queue.BackoffMax = time.Second
	bad.Queue.BackoffBase = 2 * time.Second
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Log.Format = "xml"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Queue.MaxAttempts = 0
	require.Error(t, bad.Validate())
}
