package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/postpilot/internal/config"
	"github.com/blackmichael/postpilot/internal/domain"
	"github.com/blackmichael/postpilot/internal/events"
	"github.com/blackmichael/postpilot/internal/httpserver"
	"github.com/blackmichael/postpilot/internal/scheduler"
	"github.com/blackmichael/postpilot/internal/sqlite"
	"github.com/blackmichael/postpilot/internal/twitter"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:   "postpilot",
		Usage:  "schedules and delivers social media posts",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				EnvVars: []string{"POSTPILOT_ADDR"},
				Value:   ":8080",
			},
			&cli.StringFlag{
				Name:    "db-path",
				EnvVars: []string{"POSTPILOT_DB_PATH"},
				Value:   "postpilot.db",
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				EnvVars: []string{"POSTPILOT_POLL_INTERVAL"},
				Value:   config.DefaultPollInterval,
			},
			&cli.IntFlag{
				Name:    "max-retries",
				EnvVars: []string{"POSTPILOT_MAX_RETRIES"},
				Value:   config.DefaultMaxRetries,
			},
			&cli.StringFlag{
				Name:    "twitter-api-url",
				EnvVars: []string{"POSTPILOT_TWITTER_API_URL"},
			},
			&cli.StringFlag{
				Name:    "twitter-bearer-token",
				EnvVars: []string{"TWITTER_BEARER_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"POSTPILOT_LOG_LEVEL"},
				Value:   "info",
			},
		},
		ErrWriter: os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cli.Context) error {
	var level slog.Level
	switch cmd.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg := &config.Config{
		Addr:               cmd.String("addr"),
		DatabasePath:       cmd.String("db-path"),
		PollInterval:       cmd.Duration("poll-interval"),
		MaxRetries:         cmd.Int("max-retries"),
		TwitterAPIURL:      cmd.String("twitter-api-url"),
		TwitterBearerToken: cmd.String("twitter-bearer-token"),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := sqlite.NewStore(cfg.DatabasePath, cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer store.Close()
	logger.Info("connected to database", "path", cfg.DatabasePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publishers := domain.PublisherSet{}
	if cfg.TwitterBearerToken != "" {
		client := twitter.NewClient(cfg.TwitterAPIURL, cfg.TwitterBearerToken)
		if err := client.VerifyCredentials(ctx); err != nil {
			// Delivery attempts will surface the real failure mode; a
			// flaky check at boot should not disable the platform.
			logger.Warn("twitter credential check failed", "error", err)
		} else {
			logger.Info("twitter authentication successful")
		}
		publishers[twitter.Platform] = client
	} else {
		logger.Warn("twitter not configured, posts for it will fail permanently")
	}

	engine, err := domain.NewEngine(store, publishers, nil, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	bus := events.NewBus()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the delivery loop in the background
	sched := scheduler.New(store, publishers, cfg.PollInterval, bus, logger)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler exited with error", "error", err)
		}
	}()

	// Start the HTTP server
	server := httpserver.NewServer(cfg, engine, bus, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("service started", "addr", cfg.Addr, "poll_interval", cfg.PollInterval, "max_retries", cfg.MaxRetries)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	// Let the scheduler finish its in-flight cycle so every attempted
	// delivery has its outcome recorded before the process exits.
	<-schedDone

	return nil
}
