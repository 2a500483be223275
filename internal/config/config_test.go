package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "expenses.db", cfg.Database.Path)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = "9090"
	cfg.LLM.Provider = ProviderGemini
	cfg.LLM.Model = "gemini-2.5-flash"
	cfg.LLM.Timeout = 5 * time.Second

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", got.Server.Port)
	assert.Equal(t, ProviderGemini, got.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", got.LLM.Model)
	assert.Equal(t, 5*time.Second, got.LLM.Timeout)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Database.Path, got.Database.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("SECURE_COOKIE", "true")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_API_KEY", "generic")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("LLM_TIMEOUT", "3s")

	got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8081", got.Server.Port)
	assert.Equal(t, "/tmp/test.db", got.Database.Path)
	assert.True(t, got.Server.SecureCookie)
	assert.Equal(t, ProviderGemini, got.LLM.Provider)
	assert.Equal(t, "gemini-key", got.LLM.APIKey)
	assert.Equal(t, 3*time.Second, got.LLM.Timeout)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("LLM_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "claude"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())
}
