package internal

import (
	"fmt"
	"relaychat/runtime"
	"strings"
	"time"
)

// Config is the terminal client configuration.
type Config struct {
	ServerURL   string `env:"RELAY_URL,default=ws://localhost:3001/rtc"`
	TokenURL    string `env:"TOKEN_URL,default=http://localhost:3001"`
	Room        string `env:"ROOM,default=general"`
	Identity    string `env:"IDENTITY"`
	DisplayName string `env:"DISPLAY_NAME"`
	// Token skips the credential service when set.
	Token string `env:"RELAY_TOKEN"`

	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS,default=5"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY,default=2s"`
	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT,default=15s"`
	TokenTimeout         time.Duration `env:"TOKEN_TIMEOUT,default=10s"`
	SendTimeout          time.Duration `env:"SEND_TIMEOUT,default=5s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=15s"`

	LimitMessages *int `env:"LIMIT_MESSAGES"`
	HistorySize   int  `env:"HISTORY_SIZE,default=20"`

	LogLevel       string        `env:"LOG_LEVEL,default=INFO"`
	LogFile        string        `env:"LOG_FILE,default=logs/relaychat.log"`
	LogMaxSizeMB   int           `env:"LOG_MAX_SIZE_MB,default=10"`
	MetricsFile    string        `env:"METRICS_FILE"`
	MetricInterval time.Duration `env:"METRIC_INTERVAL,default=30s"`
}

func (c Config) Backoff() runtime.Backoff {
	return runtime.Backoff{MaxAttempts: c.MaxReconnectAttempts, BaseDelay: c.ReconnectBaseDelay}
}

// Validate rejects tuning values the session cannot work with. Room and
// identity are checked by the session itself when connecting.
func (c Config) Validate() error {
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must not be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY must be positive, got %s", c.ReconnectBaseDelay)
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return fmt.Errorf("RELAY_URL must be a ws:// or wss:// url, got %q", c.ServerURL)
	}
	if c.Token == "" && c.TokenURL == "" {
		return fmt.Errorf("either RELAY_TOKEN or TOKEN_URL is required")
	}
	return nil
}
