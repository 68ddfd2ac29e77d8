package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestFromViperAppliesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("jwt.secret", "session")
	v.Set("sync.secret", "sync")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, cfg.SyncTokenTTL)
	require.Equal(t, 1, cfg.RateLimitMax)
	require.Equal(t, time.Second, cfg.RateLimitWindow)
	require.Equal(t, 5*time.Minute, cfg.ParticipantActiveSpan)
	require.Equal(t, ":8080", cfg.HTTPAddress())
}

func TestFromViperRejectsSharedSecrets(t *testing.T) {
	v := viper.New()
	v.Set("jwt.secret", "same")
	v.Set("sync.secret", "same")

	_, err := fromViper(v)
	require.Error(t, err)
}

func TestFromViperRequiresSessionSecret(t *testing.T) {
	_, err := fromViper(viper.New())
	require.Error(t, err)
}

func TestFromViperRejectsInvalidWindow(t *testing.T) {
	v := viper.New()
	v.Set("jwt.secret", "session")
	v.Set("ratelimit.window", "soon")

	_, err := fromViper(v)
	require.Error(t, err)
}
