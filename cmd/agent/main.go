package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"relaychat/contract"
	"relaychat/infrastructure/relay"
	"relaychat/infrastructure/responder"
	"relaychat/infrastructure/storage"
	"relaychat/infrastructure/token"
	"relaychat/runtime/workers"
	"relaychat/services"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the assistant.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Agent error: %v\n", err)
	}
	os.Exit(code)
}

// run puts the assistant in a room until SIGINT or SIGTERM. The session and
// the assistant are supervised side by side.
func run() (int, error) {
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

	db, err := storage.OpenInMemory()
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = db.Close() }()
	memory := storage.NewMemoryRepository(db, log)

	var backend contract.Responder = responder.NewCanned()
	if config.ResponderURL != "" {
		backend = responder.NewClient(log, config.ResponderURL)
	}

	transport := relay.NewTransport(log, relay.TransportConfig{
		WriteTimeout: config.WriteTimeout,
		PingInterval: config.PingInterval,
	})
	session := services.NewSession(log, transport, token.NewClient(log, config.TokenURL, config.Name), services.SessionConfig{
		Backoff:        config.Backoff(),
		ConnectTimeout: config.ConnectTimeout,
		TokenTimeout:   config.TokenTimeout,
		SendTimeout:    config.SendTimeout,
	})
	agent := services.NewAgent(log, session, backend, memory, services.AgentConfig{
		Request: services.ConnectRequest{
			ServerURL:   config.ServerURL,
			Room:        config.Room,
			Identity:    config.Identity,
			DisplayName: config.Name,
			Token:       config.Token,
		},
		MemorySize:   config.MemorySize,
		ReplyTimeout: config.ResponderTimeout,
		RejoinDelay:  config.RejoinDelay,
	})

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(session, agent)
	log.Info("Starting assistant", "room", config.Room, "identity", config.Identity,
		"completion", config.ResponderURL != "")
	sup.Run(ctx)

	if err := sup.Err(); err != nil {
		return exitRuntime, err
	}
	log.Info("Assistant stopped cleanly")
	return exitOK, nil
}
