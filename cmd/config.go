package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host            string        `env:"HOST,default=localhost"`
	Port            int           `env:"PORT,default=3001"`
	APISecret       string        `env:"RELAY_API_SECRET,required=true"`
	GrantTTL        time.Duration `env:"GRANT_TTL,default=6h"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval    time.Duration `env:"PING_INTERVAL,default=5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
}

// minSecretLength matches the HS256 key size.
const minSecretLength = 32

func (c Config) Validate() error {
	if len(c.APISecret) < minSecretLength {
		return fmt.Errorf("RELAY_API_SECRET must be at least %d bytes, got %d", minSecretLength, len(c.APISecret))
	}
	if c.GrantTTL <= 0 {
		return fmt.Errorf("GRANT_TTL must be positive, got %s", c.GrantTTL)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}
