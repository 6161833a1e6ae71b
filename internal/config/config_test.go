package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("ROSTER_JWT_SECRET", "secret")
	t.Setenv("ROSTER_DATABASE_URL", "postgres://localhost/roster")
	t.Setenv("ROSTER_RELAY_URL", "http://relay.local/")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 12*time.Hour, cfg.TokenTTL)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.Equal(t, time.Minute, cfg.ResendCooldown)
	require.Equal(t, 10*time.Second, cfg.RelayTimeout)
	require.Equal(t, 30*time.Second, cfg.DashboardCacheTTL)
	require.Equal(t, "http://relay.local", cfg.RelayURL)
	require.Equal(t, "log", cfg.Mail.Provider)
	require.False(t, cfg.CloudinaryConfigured())
}

func TestLoadRequiresSecretAndDatabase(t *testing.T) {
	t.Setenv("ROSTER_JWT_SECRET", "")
	t.Setenv("ROSTER_DATABASE_URL", "postgres://localhost/roster")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("ROSTER_JWT_SECRET", "secret")
	t.Setenv("ROSTER_DATABASE_URL", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("ROSTER_JWT_SECRET", "secret")
	t.Setenv("ROSTER_DATABASE_URL", "postgres://localhost/roster")
	t.Setenv("ROSTER_SESSION_TTL", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "session.ttl")
}

func TestLoadMailerRequiresSendGridKey(t *testing.T) {
	t.Setenv("ROSTER_MAIL_PROVIDER", "sendgrid")
	t.Setenv("ROSTER_SENDGRID_API_KEY", "")
	_, err := LoadMailer()
	require.Error(t, err)

	t.Setenv("ROSTER_SENDGRID_API_KEY", "SG.key")
	t.Setenv("ROSTER_APP_PORT", ":4000")
	cfg, err := LoadMailer()
	require.NoError(t, err)
	require.Equal(t, ":4000", cfg.HTTPAddress())
	require.Equal(t, "sendgrid", cfg.Mail.Provider)
}
