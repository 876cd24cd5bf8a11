package cache

import (
	"time"

	"github.com/compozy/transcripts/pkg/config"
)

// Config holds the Redis connection settings used by the rate limiter store.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
	// Pool Configuration
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromAppConfig maps the redis section of the application config. It
// returns nil when no address is configured.
func FromAppConfig(appConfig *config.RedisConfig) *Config {
	if appConfig == nil || appConfig.Addr == "" {
		return nil
	}
	return &Config{
		Addr:     appConfig.Addr,
		Password: appConfig.Password.Value(),
		DB:       appConfig.DB,
	}
}
