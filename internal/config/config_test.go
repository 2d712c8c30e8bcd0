package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  env: production
database:
  url: postgres://localhost/engine
aadhaar:
  aua_code: AUA001
  max_attempts: 5
scoring:
  quiz_seed: 42
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://localhost/engine", cfg.Database.URL)
	assert.Equal(t, "AUA001", cfg.Aadhaar.AUACode)
	assert.Equal(t, 5, cfg.Aadhaar.MaxAttempts)
	assert.Equal(t, int64(42), cfg.Scoring.QuizSeed)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)
	t.Setenv("PORT", "7070")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "123456", cfg.Aadhaar.TestOTP)
	assert.Equal(t, "dev-jws-secret", cfg.AA.FallbackSecret)
}

func TestJWSKeyIDFollowsSigningKeyID(t *testing.T) {
	path := writeConfig(t, `
aa:
  signing_key_id: fiu-client-1
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "fiu-client-1", cfg.JWS.KeyID)
}
