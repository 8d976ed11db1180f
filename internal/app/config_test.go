package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Second, cfg.PushTimeout)
	require.Equal(t, time.Second, cfg.ChatUnreadDelay)
	require.False(t, cfg.PartyCreditRestore)
	require.False(t, cfg.PushEnabled())
	require.False(t, cfg.DocumentsEnabled())
	require.Empty(t, cfg.Brokers())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsHalfVAPID(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestBrokersSplit(t *testing.T) {
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092"}
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
}
