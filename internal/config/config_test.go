package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.AgentChat.BaseURL)
	assert.Equal(t, "/api/chat", cfg.AgentChat.ChatPath)
	assert.Equal(t, 5*time.Second, cfg.AgentChat.ConnectTimeout)
	assert.Equal(t, 120*time.Second, cfg.AgentChat.ReadTimeout)
	assert.False(t, cfg.IsDev())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
environment: dev
db:
  driver: sqlite
  path: /tmp/chain.db
agent_chat:
  base_url: http://agents:9000/
  read_timeout: 30s
auth:
  issuer: "https://issuer.example.com/oauth2/default/ "
  client_id: backend
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("AGENTCHAIN_AGENT_CHAT_CHAT_PATH", "/v2/chat")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/chain.db", cfg.DB.Path)
	assert.Equal(t, "http://agents:9000/", cfg.AgentChat.BaseURL)
	assert.Equal(t, "/v2/chat", cfg.AgentChat.ChatPath)
	assert.Equal(t, 30*time.Second, cfg.AgentChat.ReadTimeout)
	assert.Equal(t, "https://issuer.example.com/oauth2/default", cfg.Auth.Issuer)
	assert.Equal(t, "backend", cfg.Auth.SwaggerClientID)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_PostgresDSN(t *testing.T) {
	cfg := &Config{}
	cfg.DB.Host = "db"
	cfg.DB.Port = 5433
	cfg.DB.User = "u"
	cfg.DB.Password = "p"
	cfg.DB.Name = "n"
	cfg.DB.SSLMode = "disable"
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", cfg.PostgresDSN())
}
