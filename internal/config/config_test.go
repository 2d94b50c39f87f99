package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-portal/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORTAL_SIGNING_KEY", "secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.GetSigningKey())
	assert.Equal(t, "portal_session", cfg.GetContextKey())
	assert.Equal(t, 24, cfg.GetTokenExpiration())
	assert.Equal(t, "Bearer", cfg.GetAuthScheme())
	assert.Equal(t, []string{"portal"}, cfg.GetAudience())
	assert.Equal(t, "/login", cfg.GetLoginRoute())
	assert.Equal(t, "/", cfg.GetHomeRoute())
	assert.Equal(t, 7*24*time.Hour, cfg.InviteTTL)
	assert.False(t, cfg.UsesHostedIdentity())

	db := cfg.GetPersistence()
	assert.Equal(t, "file:portal.db?cache=shared", db.GetDSN())
	assert.Equal(t, db.GetDSN(), db.GetServer())
	assert.Equal(t, "sqlite", db.GetDriver())
	assert.Equal(t, 5*time.Second, db.GetPingTimeout())
	assert.False(t, db.GetDebug())
}

func TestLoadPersistenceOverrides(t *testing.T) {
	t.Setenv("PORTAL_SIGNING_KEY", "secret")
	t.Setenv("PORTAL_DATABASE_DSN", "file:other.db")
	t.Setenv("PORTAL_DATABASE_DEBUG", "true")
	t.Setenv("PORTAL_DATABASE_PING_TIMEOUT", "250ms")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "file:other.db", cfg.Persistence.GetDSN())
	assert.True(t, cfg.Persistence.GetDebug())
	assert.Equal(t, 250*time.Millisecond, cfg.Persistence.GetPingTimeout())
}

func TestLoadRequiresSigningKey(t *testing.T) {
	t.Setenv("PORTAL_SIGNING_KEY", "")
	os.Unsetenv("PORTAL_SIGNING_KEY")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadReadsEnvFile(t *testing.T) {
	t.Setenv("PORTAL_SIGNING_KEY", "from-env")

	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("PORTAL_SIGNING_KEY=from-file\nPORTAL_ISSUER=file-issuer\nPORTAL_AUDIENCE=portal,admin\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORTAL_ISSUER")
		os.Unsetenv("PORTAL_AUDIENCE")
	})

	cfg, err := config.Load(file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.GetSigningKey())
	assert.Equal(t, "file-issuer", cfg.GetIssuer())
	assert.Equal(t, []string{"portal", "admin"}, cfg.GetAudience())
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("PORTAL_SIGNING_KEY", "secret")
	t.Setenv("PORTAL_INVITE_TTL", "soon")

	_, err := config.Load()
	require.Error(t, err)
}
