package main

import (
	"strings"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("RELAY_API_SECRET", strings.Repeat("s", minSecretLength))

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)
	req.Equal(6*time.Hour, config.GrantTTL)
	req.Equal(5*time.Second, config.PingInterval)
	req.NoError(config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{APISecret: strings.Repeat("s", minSecretLength), GrantTTL: time.Hour, Port: 3001}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "short secret", mutate: func(c *Config) { c.APISecret = "secret" }, wantErr: "RELAY_API_SECRET"},
		{name: "zero ttl", mutate: func(c *Config) { c.GrantTTL = 0 }, wantErr: "GRANT_TTL"},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.wantErr)
		})
	}
}
