package main

import (
	"fmt"
	"relaychat/runtime"
	"strings"
	"time"
)

// Config is the room assistant configuration.
type Config struct {
	ServerURL string `env:"RELAY_URL,default=ws://localhost:3001/rtc"`
	TokenURL  string `env:"TOKEN_URL,default=http://localhost:3001"`
	Room      string `env:"ROOM,default=general"`
	Identity  string `env:"AGENT_IDENTITY,default=ai-assistant"`
	Name      string `env:"AGENT_NAME,default=AI-Assistant"`
	Token     string `env:"RELAY_TOKEN"`

	// ResponderURL is the completion service. Canned answers are used
	// when it is empty.
	ResponderURL     string        `env:"RESPONDER_URL"`
	ResponderTimeout time.Duration `env:"RESPONDER_TIMEOUT,default=20s"`
	MemorySize       int           `env:"MEMORY_SIZE,default=10"`
	RejoinDelay      time.Duration `env:"REJOIN_DELAY,default=30s"`

	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS,default=5"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY,default=2s"`
	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT,default=15s"`
	TokenTimeout         time.Duration `env:"TOKEN_TIMEOUT,default=10s"`
	SendTimeout          time.Duration `env:"SEND_TIMEOUT,default=5s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=15s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`

	LogLevel string `env:"LOG_LEVEL,default=INFO"`
}

func (c Config) Backoff() runtime.Backoff {
	return runtime.Backoff{MaxAttempts: c.MaxReconnectAttempts, BaseDelay: c.ReconnectBaseDelay}
}

func (c Config) Validate() error {
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return fmt.Errorf("RELAY_URL must be a ws:// or wss:// url, got %q", c.ServerURL)
	}
	if c.Token == "" && c.TokenURL == "" {
		return fmt.Errorf("either RELAY_TOKEN or TOKEN_URL is required")
	}
	if c.ResponderURL != "" && !strings.HasPrefix(c.ResponderURL, "http://") && !strings.HasPrefix(c.ResponderURL, "https://") {
		return fmt.Errorf("RESPONDER_URL must be an http:// or https:// url, got %q", c.ResponderURL)
	}
	if c.ResponderTimeout <= 0 {
		return fmt.Errorf("RESPONDER_TIMEOUT must be positive, got %s", c.ResponderTimeout)
	}
	if c.MemorySize <= 0 {
		return fmt.Errorf("MEMORY_SIZE must be positive, got %d", c.MemorySize)
	}
	if c.RejoinDelay <= 0 {
		return fmt.Errorf("REJOIN_DELAY must be positive, got %s", c.RejoinDelay)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must not be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY must be positive, got %s", c.ReconnectBaseDelay)
	}
	return nil
}
