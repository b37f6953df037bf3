package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, []byte(devJWTSecret), cfg.JWTKey)
	assert.Equal(t, 7*24*time.Hour, cfg.SignupTokenTTL)
	assert.Equal(t, time.Hour, cfg.LoginTokenTTL)
	assert.Equal(t, 120*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, "black-forest-labs/flux-schnell", cfg.ReplicateModel)
	assert.Contains(t, cfg.DBConnStr, "host=")
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load(noEnvFile(t))
	assert.Error(t, err)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("IMAGE_GEN_TEST_ONLY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("IMAGE_GEN_TEST_ONLY") })

	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/images")
	t.Setenv("LOGIN_TOKEN_TTL", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BLOB_BACKEND", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", os.Getenv("IMAGE_GEN_TEST_ONLY"))
	assert.Equal(t, "postgres://u:p@db/images", cfg.DBConnStr)
	assert.Equal(t, 30*time.Minute, cfg.LoginTokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BLOB_BACKEND", "floppy")
	_, err := Load(noEnvFile(t))
	assert.Error(t, err)

	t.Setenv("BLOB_BACKEND", "postgres")
	t.Setenv("STORE_DRIVER", "memory")
	_, err = Load(noEnvFile(t))
	assert.Error(t, err)
}
