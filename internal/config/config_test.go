package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENV", "")
	t.Setenv("JOIN_TIMEOUT", "")
	t.Setenv("CONNECT_TIMEOUT", "")
	t.Setenv("MATCH_WAIT_TIMEOUT", "")

	cfg := Load()
	require.Equal(t, ":8080", cfg.Addr)
	require.Empty(t, cfg.DatabaseDSN)
	require.False(t, cfg.Dev)
	require.Equal(t, 30*time.Second, cfg.JoinTimeout)
	require.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	require.Equal(t, 5*time.Minute, cfg.MatchWaitTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "dev")
	t.Setenv("DATABASE_URL", "postgres://localhost/quickdraw")
	t.Setenv("JOIN_TIMEOUT", "10s")
	t.Setenv("MATCH_WAIT_TIMEOUT", "1m")

	cfg := Load()
	require.Equal(t, ":9000", cfg.Addr)
	require.True(t, cfg.Dev)
	require.Equal(t, "postgres://localhost/quickdraw", cfg.DatabaseDSN)
	require.Equal(t, 10*time.Second, cfg.JoinTimeout)
	require.Equal(t, time.Minute, cfg.MatchWaitTimeout)

	t.Setenv("ADDR", "0.0.0.0:7777")
	require.Equal(t, "0.0.0.0:7777", Load().Addr)
}
