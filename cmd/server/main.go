package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/avdeenkov/roomcast/internal/chat"
	"github.com/avdeenkov/roomcast/internal/config"
	"github.com/avdeenkov/roomcast/internal/server"
	"github.com/avdeenkov/roomcast/internal/store/jsonfile"
	"github.com/avdeenkov/roomcast/internal/upload"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var flags struct {
		configPath string
		listen     string
		dataDir    string
		logLevel   string
	}

	app := &cli.Command{
		Name:    "roomcast",
		Usage:   "Real-time chat server with rooms, direct chats, and file attachments",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("ROOMCAST_CONFIG"),
				Destination: &flags.configPath,
			},
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "listen address (overrides config)",
				Sources:     cli.EnvVars("ROOMCAST_LISTEN"),
				Destination: &flags.listen,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory (overrides config)",
				Sources:     cli.EnvVars("ROOMCAST_DATA_DIR"),
				Destination: &flags.dataDir,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("ROOMCAST_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.logLevel,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := setupLogger(flags.logLevel); err != nil {
				return err
			}

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if flags.listen != "" {
				cfg.Listen = flags.listen
			}
			if flags.dataDir != "" {
				cfg.DataDir = flags.dataDir
			}

			return run(ctx, cfg)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func setupLogger(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	store := jsonfile.New(cfg.DataDir)
	uploads := upload.New(cfg.UploadDir)

	sessions := chat.NewSessionRegistry()
	rooms := chat.NewRoomRegistry(store, log.With().Str("component", "rooms").Logger())
	rooms.SeedDefaults(roomSeeds(cfg.Rooms))

	hub := server.NewHub(log.With().Str("component", "hub").Logger())
	router := chat.NewRouter(sessions, rooms, store, hub, cfg.DefaultRoom,
		log.With().Str("component", "router").Logger())
	hub.AttachRouter(router)

	handlers := server.NewHandlers(hub, uploads, cfg, log.With().Str("component", "http").Logger())
	srv := server.CreateServer(cfg.Listen, server.SetupRoutes(handlers, cfg.UploadDir))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	if err := server.ShutdownServer(srv, shutdownTimeout, log.Logger); err != nil {
		return err
	}
	return hub.Shutdown(shutdownTimeout)
}

func roomSeeds(seeds []config.RoomSeed) []chat.RoomSeed {
	out := make([]chat.RoomSeed, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, chat.RoomSeed{ID: s.ID, Name: s.Name})
	}
	return out
}
