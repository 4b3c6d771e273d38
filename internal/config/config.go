package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string        `env:"TOKEN,required"`
		DefaultLanguage  string        `env:"LANG,default=en"`
		EnabledHandlers  []string      `env:"HANDLERS,default=members,enforcement,commands"`
		LogLevel         int           `env:"LOG_LEVEL,default=4"`
		DotPath          string        `env:"DOT_PATH,default=~/.ngguard"`
		DevUserIDs       []int64       `env:"ADMIN_USER_IDS"`
		UpdateMaxAge     time.Duration `env:"UPDATE_MAX_AGE,default=2m"`
		MetricsAddr      string        `env:"METRICS_ADDR,default=:2112"`
		Store            Store
		Telegram         Telegram
		Moderation       Moderation
	}

	Store struct {
		Driver   string `env:"STORE,default=redis"`
		RedisURL string `env:"REDIS_URL,default=redis://localhost:6379/0"`
		DBName   string `env:"DB_NAME,default=ngguard.db"`
	}

	Telegram struct {
		SendConcurrency int64         `env:"SEND_CONCURRENCY,default=30"`
		SendSpacing     time.Duration `env:"SEND_SPACING,default=33ms"`
		AdminCacheTTL   time.Duration `env:"ADMIN_CACHE_TTL,default=60m"`
		AdminCacheSize  int           `env:"ADMIN_CACHE_SIZE,default=1024"`
	}

	Moderation struct {
		BurstSweepInterval time.Duration `env:"BURST_SWEEP_INTERVAL,default=2s"`
		KickGrace          time.Duration `env:"KICK_GRACE,default=500ms"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg, err := process(envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

func process(lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("NG_", lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	return cfg, nil
}

// IsDev reports whether the user is one of the bot operators.
func (c Config) IsDev(userID int64) bool {
	for _, id := range c.DevUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
