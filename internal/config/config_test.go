package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5*time.Minute, cfg.SVN.CheckInterval)
	assert.Equal(t, 10, cfg.SVN.PollLimit)
	assert.Equal(t, 3, cfg.SVN.MaxRetryAttempt)
	assert.Equal(t, 8000, cfg.AI.DiffLimit)
	assert.Equal(t, 15000, cfg.AI.ChunkSize)
	assert.True(t, cfg.AI.ChunkedReview)
	assert.Equal(t, 4, cfg.Runtime.Workers)
	assert.Equal(t, 30, cfg.Ledger.RetentionDays)
	assert.False(t, cfg.Webhook.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
svn:
  repository_url: https://svn.example.com/repo
  monitored_paths:
    - /trunk/src
  check_interval: 1m
ai:
  api_base: https://llm.example.com/v1
  model: custom-model
dingtalk:
  webhook_url: https://oapi.dingtalk.com/robot/send?access_token=x
  message_settings:
    max_message_length: 500
runtime:
  workers: 8
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://svn.example.com/repo", cfg.SVN.RepositoryURL)
	assert.Equal(t, []string{"/trunk/src"}, cfg.SVN.MonitoredPaths)
	assert.Equal(t, time.Minute, cfg.SVN.CheckInterval)
	assert.Equal(t, "custom-model", cfg.AI.Model)
	assert.Equal(t, 500, cfg.DingTalk.Messages.MaxMessageLength)
	assert.Equal(t, 8, cfg.Runtime.Workers)

	// Untouched settings keep their defaults.
	assert.Equal(t, 10, cfg.SVN.PollLimit)
	assert.Equal(t, 2000, cfg.AI.MaxTokens)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, Default().SVN.CheckInterval, cfg.SVN.CheckInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
svn:
  repository_url: https://from-file.example.com
ai:
  api_key: file-key
`)
	t.Setenv("VIGIL_SVN_URL", "https://from-env.example.com")
	t.Setenv("VIGIL_AI_API_KEY", "env-key")
	t.Setenv("VIGIL_WORKERS", "2")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.example.com", cfg.SVN.RepositoryURL)
	assert.Equal(t, "env-key", cfg.AI.APIKey)
	assert.Equal(t, 2, cfg.Runtime.Workers)
}

func TestLoad_OverridesWinOverEnv(t *testing.T) {
	t.Setenv("VIGIL_AI_MODEL", "env-model")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"),
		map[string]string{"ai.model": "flag-model"})
	require.NoError(t, err)
	assert.Equal(t, "flag-model", cfg.AI.Model)
}

func TestLoad_BadOverrideKey(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"),
		map[string]string{"nonsense.key": "v"})
	assert.Error(t, err)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := writeConfig(t, "svn: [not a mapping")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestSetField(t *testing.T) {
	cfg := Default()

	require.NoError(t, SetField(&cfg, "svn.repository_url", "https://svn.example.com"))
	assert.Equal(t, "https://svn.example.com", cfg.SVN.RepositoryURL)

	require.NoError(t, SetField(&cfg, "svn.check_interval", "90s"))
	assert.Equal(t, 90*time.Second, cfg.SVN.CheckInterval)

	require.NoError(t, SetField(&cfg, "ai.chunk_size", "20000"))
	assert.Equal(t, 20000, cfg.AI.ChunkSize)

	require.NoError(t, SetField(&cfg, "webhook.enabled", "true"))
	assert.True(t, cfg.Webhook.Enabled)

	assert.Error(t, SetField(&cfg, "svn.check_interval", "not-a-duration"))
	assert.Error(t, SetField(&cfg, "runtime.workers", "many"))
	assert.Error(t, SetField(&cfg, "unknown.key", "v"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "repository URL is required")

	cfg.SVN.RepositoryURL = "https://svn.example.com"
	assert.Error(t, cfg.Validate(), "AI base URL is required")

	cfg.AI.APIBase = "https://llm.example.com/v1"
	assert.NoError(t, cfg.Validate())

	cfg.Runtime.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.SVN.RepositoryURL = "https://svn.example.com/repo"

	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.SVN.RepositoryURL, loaded.SVN.RepositoryURL)
	assert.Equal(t, cfg.AI.ChunkSize, loaded.AI.ChunkSize)
}

func TestUserMappingLoadedBesideConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("svn:\n  repository_url: x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user_mapping.yaml"),
		[]byte("user_mapping:\n  alice: \"13812345678\"\n  bob: bob-chat-id\n"), 0o644))

	cfg, err := Load(configPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "13812345678", cfg.UserID("alice"))
	assert.Equal(t, "bob-chat-id", cfg.UserID("bob"))
	assert.Empty(t, cfg.UserID("stranger"))
}

func TestReviewersForPath(t *testing.T) {
	cfg := Default()
	cfg.PathReviewers = map[string][]string{
		"/trunk/src": {"alice", "bob"},
	}

	assert.Equal(t, []string{"alice", "bob"}, cfg.ReviewersForPath("/trunk/src/main.go"))
	assert.Nil(t, cfg.ReviewersForPath("/branches/dev/main.go"))
}
