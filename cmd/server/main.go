// Command server runs the room relay.
//
//	server [--port 8080] [--tls] [--config relay.yaml] [port]
//
// Settings come from defaults, an optional YAML file, the environment
// (a .env file in the working directory is loaded first) and flags, in
// increasing order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/roomrelay/internal/relay"
	"github.com/Tyrowin/roomrelay/internal/server"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading .env file: %v\n", err)
	}

	cmd := &cli.Command{
		Name:      "roomrelay",
		Usage:     "relay room state between websocket clients",
		Version:   version,
		ArgsUsage: "[port]",
		Flags:     flags(),
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "listen port (overrides PORT and the config file)",
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "serve over TLS using the configured certificate and key files",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "optional YAML config file",
			Sources: cli.EnvVars("ROOMRELAY_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "log level (debug, info, warn, error)",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "log format (text, json)",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := setupLogger(cmd.String("log-level"), cmd.String("log-format"))
	slog.SetDefault(logger)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	registry := relay.NewRegistry(logger)
	hub := server.NewHub(registry, relay.NewDispatcher(registry, logger), logger)
	go hub.Run()

	router := server.NewRouter(server.NewHandlers(hub, cfg, logger))
	httpServer := server.CreateServer(cfg, router)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, cfg.TLS, logger)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			shutdownHub(hub, cfg, logger)
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	httpErr := server.ShutdownServer(shutdownCtx, httpServer, logger)
	hubErr := hub.Shutdown(shutdownCtx)
	return errors.Join(httpErr, hubErr)
}

func shutdownHub(hub *server.Hub, cfg server.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := hub.Shutdown(ctx); err != nil {
		logger.Warn("hub shutdown", "error", err)
	}
}

// loadConfig layers flags and the positional port over LoadConfig.
func loadConfig(cmd *cli.Command) (server.Config, error) {
	cfg, err := server.LoadConfig(cmd.String("config"))
	if err != nil {
		return server.Config{}, err
	}

	if port := cmd.Args().First(); port != "" {
		cfg.Port = port
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.String("port")
	}
	if cmd.IsSet("tls") {
		cfg.TLS.Enabled = cmd.Bool("tls")
	}

	cfg = cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return server.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
