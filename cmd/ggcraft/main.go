package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/ggcraft/internal/api"
	"github.com/nhle/ggcraft/internal/app"
	"github.com/nhle/ggcraft/internal/auth"
	"github.com/nhle/ggcraft/internal/credential"
	"github.com/nhle/ggcraft/internal/metrics"
	"github.com/nhle/ggcraft/internal/model"
	"github.com/nhle/ggcraft/internal/notify"
	"github.com/nhle/ggcraft/internal/pusher"
	"github.com/nhle/ggcraft/internal/store"
	appsync "github.com/nhle/ggcraft/internal/sync"
)

// main wires the notification cache, the push channel and the terminal UI.
// Everything else lives in internal packages.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ggcraft: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("ggcraft", pflag.ContinueOnError)
	configPath := flags.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	headless := flags.Bool("headless", false, "run without the terminal UI and log channel activity")
	writeConfig := flags.Bool("write-config", false, "write the effective config to --config and exit")
	flags.String("api-url", "", "REST API base URL")
	flags.String("ws-host", "", "push server host")
	flags.Int("ws-port", 0, "push server port")
	flags.String("ws-key", "", "push application key")
	flags.String("ws-scheme", "", "push server scheme (http or https)")
	flags.String("store", "", "storage driver (sqlite or redis)")
	flags.String("db", "", "SQLite database path")
	flags.String("redis-url", "", "Redis URL for the redis driver")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "log file path")
	flags.String("metrics-addr", "", "listen address for /metrics, empty to disable")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := model.LoadConfig(*configPath, flags)
	if err != nil {
		return err
	}

	if *writeConfig {
		return model.SaveConfig(*configPath, cfg)
	}

	logger, closeLog, err := newLogger(cfg.Log, *headless)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warn("closing store", "error", err)
		}
	}()

	mt := metrics.New()
	persist := notify.NewPersistence(kv, notify.WithPersistenceLogger(logger))
	registry := notify.NewRegistry(ctx, persist,
		notify.WithRegistryLogger(logger),
		notify.WithRegistryMetrics(mt),
	)

	client := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.AuthEndpoint(),
		time.Duration(cfg.API.TimeoutSec)*time.Second,
	)
	dialer := pusher.NewDialer(cfg.WebSockets.URL(), client, pusher.WithLogger(logger))
	manager := notify.NewManager(notify.NewPusherTransport(dialer), registry,
		notify.WithManagerLogger(logger),
		notify.WithManagerMetrics(mt),
	)

	ring, err := credential.Open(model.ConfigDir())
	if err != nil {
		return err
	}
	session := auth.NewSession(ring, client, logger)

	sup := appsync.New(manager, cfg.Reconnect, logger)
	defer sup.Stop()
	session.OnChange(sup.SetIdentity)
	sup.Watch(registry.Subscribe())

	if err := session.Restore(ctx); err != nil {
		logger.Warn("restoring session", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, mt.NewServer(cfg.Metrics.Addr), logger)
	}

	if *headless {
		g.Go(func() error {
			return runHeadless(gctx, session, sup, logger)
		})
		return g.Wait()
	}

	g.Go(func() error {
		defer stop()
		p := tea.NewProgram(
			app.New(app.Deps{
				Registry:    registry,
				Auth:        session,
				Channel:     sup,
				Invitations: client,
				Logger:      logger,
			}),
			tea.WithAltScreen(),
			tea.WithContext(gctx),
		)
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// runHeadless signs in from GGCRAFT_TOKEN when no stored session exists
// and logs channel activity until ctx ends.
func runHeadless(ctx context.Context, session *auth.Session, sup *appsync.Supervisor, logger *slog.Logger) error {
	if !session.Identity().Usable() {
		token := os.Getenv("GGCRAFT_TOKEN")
		if token == "" {
			return fmt.Errorf("not signed in: run interactively once or set GGCRAFT_TOKEN")
		}
		if err := session.SignIn(ctx, token); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-sup.Messages():
			switch msg := msg.(type) {
			case appsync.StatusMsg:
				logger.Info("channel", "state", msg.State.String(), "attempt", msg.Attempt, "error", msg.Err)
			case appsync.NotificationsChangedMsg:
				logger.Debug("notifications changed")
			}
		}
	}
}

func serveMetrics(ctx context.Context, g *errgroup.Group, srv *http.Server, logger *slog.Logger) {
	g.Go(func() error {
		logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func openStore(ctx context.Context, cfg model.StorageConfig) (store.KV, error) {
	if cfg.Driver == "redis" {
		return store.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return store.NewSQLiteStore(cfg.Path)
}

// newLogger writes text logs to the configured file, or to stderr in
// headless mode where no UI owns the terminal.
func newLogger(cfg model.LogConfig, headless bool) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if !headless {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
