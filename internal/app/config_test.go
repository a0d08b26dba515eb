package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobid/autobid-admin/internal/rbac"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "autobid_session", cfg.SessionCookie)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, int32(10), cfg.PGMaxConns)
	assert.Equal(t, "5 0 * * *", cfg.MetricsSnapshotCron)
	assert.Equal(t, rbac.PolicyAllow, cfg.RoutePolicy())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	setSecrets(t)
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownPolicy(t *testing.T) {
	setSecrets(t)
	t.Setenv("RBAC_DEFAULT_POLICY", "sometimes")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown default policy")
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"SESSION_SECRET=from-file\n"+
			"CSRF_SECRET=from-file\n"+
			"JWT_SECRET=from-file\n"+
			"RBAC_DEFAULT_POLICY=deny\n"+
			"WS_ALLOWED_ORIGINS=admin.autobid.ph,localhost:8080\n"), 0o600))
	t.Setenv("AUTOBID_ENV_FILE", path)
	t.Cleanup(func() {
		for _, key := range []string{"SESSION_SECRET", "CSRF_SECRET", "JWT_SECRET", "RBAC_DEFAULT_POLICY", "WS_ALLOWED_ORIGINS"} {
			_ = os.Unsetenv(key)
		}
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.SessionSecret)
	assert.Equal(t, rbac.PolicyDeny, cfg.RoutePolicy())
	assert.Equal(t, []string{"admin.autobid.ph", "localhost:8080"}, cfg.WSAllowedOrigins)
}

func TestLoadConfigMissingExplicitEnvFile(t *testing.T) {
	setSecrets(t)
	t.Setenv("AUTOBID_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfigHelpersNilSafe(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, rbac.PolicyAllow, cfg.RoutePolicy())
	assert.Equal(t, "INFO", logLevel(cfg).String())
	assert.Equal(t, "DEBUG", logLevel(&Config{LogLevel: "debug"}).String())
}
