package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_RELAY_ADDR is the http base of a running relay, e.g. http://localhost:3001.
	// The suite is skipped when it is empty.
	RelayAddr string `envconfig:"E2E_RELAY_ADDR"`
	// E2E_COLOURS enables colorized step headers
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_TIMEOUT bounds every wait on the relay
	Timeout time.Duration `envconfig:"E2E_TIMEOUT" default:"10s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
