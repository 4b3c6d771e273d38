package config

import (
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := process(envconfig.MapLookuper(map[string]string{
		"NG_TOKEN":    "123:abc",
		"NG_DOT_PATH": "/var/lib/ngguard",
	}))
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal("123:abc", cfg.TelegramAPIToken)
	assert.Equal("/var/lib/ngguard", cfg.DotPath)
	assert.Equal([]string{"members", "enforcement", "commands"}, cfg.EnabledHandlers)
	assert.Equal("redis", cfg.Store.Driver)
	assert.Equal(int64(30), cfg.Telegram.SendConcurrency)
	assert.Equal(33*time.Millisecond, cfg.Telegram.SendSpacing)
	assert.Equal(60*time.Minute, cfg.Telegram.AdminCacheTTL)
	assert.Equal(2*time.Second, cfg.Moderation.BurstSweepInterval)
	assert.Equal(500*time.Millisecond, cfg.Moderation.KickGrace)
	assert.Equal(2*time.Minute, cfg.UpdateMaxAge)
}

func TestProcessRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := process(envconfig.MapLookuper(map[string]string{}))
	require.Error(t, err)
}

func TestIsDev(t *testing.T) {
	t.Parallel()

	cfg, err := process(envconfig.MapLookuper(map[string]string{
		"NG_TOKEN":          "t",
		"NG_DOT_PATH":       "/tmp/x",
		"NG_ADMIN_USER_IDS": "10,20",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.IsDev(20))
	assert.False(t, cfg.IsDev(30))
}
