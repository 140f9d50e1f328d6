package redis

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds the configuration for the Redis result cache.
type Config struct {
	URL         string        `env:"REDIS_URL"` // takes precedence over Address/Password/DB when set
	Address     string        `env:"REDIS_ADDRESS" envDefault:"localhost:6379"`
	Password    string        `env:"REDIS_PASSWORD" envDefault:""`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix   string        `env:"REDIS_KEY_PREFIX" envDefault:""`
	DefaultTTL  time.Duration `env:"REDIS_DEFAULT_TTL" envDefault:"10m"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// Load loads Redis configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse redis config: %w", err)
	}
	return cfg, nil
}

func (c Config) options() (*goredis.Options, error) {
	if c.URL != "" {
		opts, err := goredis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return opts, nil
	}
	return &goredis.Options{
		Addr:        c.Address,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	}, nil
}
