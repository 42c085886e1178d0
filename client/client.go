package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"relaychat/infrastructure/relay"
	"relaychat/infrastructure/storage"
	"relaychat/infrastructure/token"
	"relaychat/internal"
	"relaychat/observability"
	"relaychat/services"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins a room and hands the terminal to the chat until /quit or
// Ctrl+C.
func run() (int, error) {
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.Identity == "" {
		config.Identity = "guest-" + uuid.NewString()[:8]
	}

	log, logCloser, err := observability.NewFileLogger(config.LogFile, config.LogLevel, config.LogMaxSizeMB)
	if err != nil {
		return exitConfig, err
	}
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider metric.MeterProvider
	if config.MetricsFile != "" {
		mp, shutdown, err := observability.InitMeterProvider(
			observability.RotatingFile(config.MetricsFile, config.LogMaxSizeMB), "relaychat-client", config.MetricInterval)
		if err != nil {
			return exitRuntime, err
		}
		defer func() { _ = shutdown(context.Background()) }()
		provider = mp
	}
	metrics, err := observability.NewSessionMetrics(log, provider)
	if err != nil {
		return exitRuntime, fmt.Errorf("metrics setup failed: %w", err)
	}

	// The scrollback lives in memory only and is gone when the client exits.
	db, err := storage.OpenInMemory()
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = db.Close() }()
	transcript := storage.NewTranscriptRepository(db, log, config.LimitMessages)

	transport := relay.NewTransport(log, relay.TransportConfig{
		WriteTimeout: config.WriteTimeout,
		PingInterval: config.PingInterval,
	})
	tokens := token.NewClient(log, config.TokenURL, config.DisplayName)
	session := services.NewSession(log, transport, tokens, services.SessionConfig{
		Backoff:        config.Backoff(),
		ConnectTimeout: config.ConnectTimeout,
		TokenTimeout:   config.TokenTimeout,
		SendTimeout:    config.SendTimeout,
		Sink:           transcript,
		Metrics:        metrics,
	})

	sessionDone := make(chan struct{})
	go func() {
		_ = session.Run(ctx)
		close(sessionDone)
	}()
	defer func() {
		stop()
		<-sessionDone
	}()

	terminal := NewTerminal(os.Stdout, session, transcript, services.ConnectRequest{
		ServerURL:   config.ServerURL,
		Room:        config.Room,
		Identity:    config.Identity,
		DisplayName: config.DisplayName,
		Token:       config.Token,
	}, config.HistorySize)
	terminal.Attach()
	if err := terminal.Connect(ctx); err != nil {
		return exitConfig, err
	}

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			quit, err := terminal.Handle(ctx, line)
			if err != nil {
				terminal.println(color.FgRed.Render(err.Error()))
			}
			if quit {
				return exitOK, nil
			}
		}
	}
}

// readLines feeds stdin lines until EOF. The goroutine outlives run on
// Ctrl+C, which is fine since the process exits right after.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
