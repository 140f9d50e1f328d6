package redis

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "REDIS_URL", "REDIS_ADDRESS", "REDIS_DB", "REDIS_DEFAULT_TTL", "REDIS_KEY_PREFIX")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Address)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10*time.Minute, cfg.DefaultTTL)
	assert.Empty(t, cfg.KeyPrefix)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("REDIS_DEFAULT_TTL", "forever")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis config")
}

func TestConfig_Options(t *testing.T) {
	opts, err := Config{Address: "cache:6379", DB: 2, DialTimeout: time.Second}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = Config{URL: "redis://:secret@cache:6380/3", Address: "ignored:1"}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = Config{URL: "http://cache"}.options()
	require.Error(t, err)
}

func TestNew_Unreachable(t *testing.T) {
	c, err := New(t.Context(), Config{Address: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "failed to ping redis at 127.0.0.1:1")
}

func TestConnector_GivesUp(t *testing.T) {
	cfg := Config{Address: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}
	connector := NewConnector(cfg, storage.ConnectorConfig{BaseDelay: time.Millisecond, MaxRetries: 1}, zaptest.NewLogger(t).Sugar())

	select {
	case err := <-connector.Start(t.Context()):
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect redis after 2 attempts")
	case <-time.After(10 * time.Second):
		require.Fail(t, "timeout waiting for connector to give up")
	}
	require.NoError(t, connector.Close())
}
