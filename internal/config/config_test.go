package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 2112, c.Server.MetricsPort)
	assert.Equal(t, "dev", c.Server.Stage)
	assert.Equal(t, "redis://localhost:6379", c.Redis.URL)
	assert.Equal(t, 6, c.KnowledgeBase.TopK)
	assert.Equal(t, 5*time.Minute, c.Stream.Deadline)
	assert.Equal(t, 5*time.Minute, c.Auth.ExpiryMargin)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `
server:
  port: 9090
redis:
  url: redis://redis-test:6379
knowledge_base:
  endpoint: https://kb.example.com
  knowledge_base_id: KB42
stream:
  deadline: 90s
queue:
  stream: "custom:stream"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "redis://redis-test:6379", c.Redis.URL)
	assert.Equal(t, "https://kb.example.com", c.KnowledgeBase.Endpoint)
	assert.Equal(t, "KB42", c.KnowledgeBase.KnowledgeBaseID)
	assert.Equal(t, 90*time.Second, c.Stream.Deadline)
	assert.Equal(t, "custom:stream", c.Queue.Stream)
	// Unset fields keep their defaults.
	assert.Equal(t, 2112, c.Server.MetricsPort)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  url: redis://from-file:6379\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("REDIS_URL", "redis://from-env:6379")
	t.Setenv("KNOWLEDGE_BASE_ID", "KB-ENV")
	t.Setenv("OAUTH_CLIENT_ID", "client-env")
	t.Setenv("STAGE", "prod")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://from-env:6379", c.Redis.URL)
	assert.Equal(t, "KB-ENV", c.KnowledgeBase.KnowledgeBaseID)
	assert.Equal(t, "client-env", c.Auth.ClientID)
	assert.Equal(t, "prod", c.Server.Stage)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestWatchFileFiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o644))

	stop := make(chan struct{})
	defer close(stop)

	changed := make(chan struct{}, 1)
	err := WatchFile(path, zap.NewNop(), stop, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - persona: market\n    keywords: [x]\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe the write")
	}
}

func TestWatchFileEmptyPathIsNoop(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	assert.NoError(t, WatchFile("", zap.NewNop(), stop, func() { t.Fatal("must not fire") }))
}
