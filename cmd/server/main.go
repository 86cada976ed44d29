// Command server runs the standalone bluff server: the HTTP lobby API and the
// WebSocket game rooms over a SQLite store, optionally fanned out across
// nodes through NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bluff/internal/app"
	"bluff/internal/config"
	"bluff/internal/domain"
	"bluff/internal/platform/logging"
	"bluff/internal/platform/otel"
	"bluff/internal/ports"
	"bluff/internal/ports/httpapi"
	"bluff/internal/ports/natsbus"
	"bluff/internal/ports/sqlite"
	"bluff/internal/ports/ws"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	issueFor := fs.String("issue-token", "", "Print a session token for this user id and exit")
	cfg, err := config.ParseConfig(fs, args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	sessions := app.NewSessionService(cfg.JWTSecret, 0)
	if *issueFor != "" {
		token, err := sessions.IssueToken(*issueFor)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}
	if sessions.DevMode() {
		logger.Warn("BLUFF_JWT_SECRET is empty: clients are trusted to name themselves")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, otel.Options{
		ServiceName: "bluff-server",
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return err
	}
	rng, err := domain.NewRand(rules.Shuffle(cfg.ShuffleSource))
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := ws.NewHub(sessions, logger)
	hub.AllowOrigins(cfg.AllowedOrigins...)
	defer hub.Close()

	var broadcaster ports.Broadcaster = hub
	if cfg.NATSURL != "" {
		nc, err := natsbus.Connect(cfg.NATSURL, cfg.NATSName)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		bus := natsbus.New(nc, hub, logger)
		if err := bus.Start(); err != nil {
			return err
		}
		defer bus.Close()
		broadcaster = ports.MultiBroadcaster{hub, bus}
		logger.Info("nats fan-out enabled", "url", cfg.NATSURL)
	}

	games := app.NewCoordinator(store,
		app.WithLogger(logger),
		app.WithBroadcaster(broadcaster),
		app.WithService(app.NewService(rng, rules.AppRules())),
		app.WithIdleTimeout(cfg.ActorIdleTimeout),
	)
	defer games.Close()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Games:     games,
			Sessions:  sessions,
			Store:     store,
			Logger:    logger,
			WebSocket: hub.Handler(games),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
