package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"relaychat/infrastructure/relay/server"
	"relaychat/runtime/workers"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the relay.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the development relay: the token endpoint and the websocket hub
// behind one HTTP listener, both supervised until SIGINT or SIGTERM.
func run() (int, error) {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(log, config.PingInterval)
	srv := server.NewServer(log, hub, []byte(config.APISecret), config.GrantTTL, config.WriteTimeout)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener := server.NewListener(log, address, srv.Router(), config.ShutdownTimeout)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(hub, listener)
	log.Info("Starting relay", "address", address, "grantTTL", config.GrantTTL)
	sup.Run(ctx)

	if err := sup.Err(); err != nil {
		return exitRuntime, err
	}
	log.Info("Relay stopped cleanly")
	return exitOK, nil
}
