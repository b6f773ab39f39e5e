package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moltarena/arena/internal/auth"
	"github.com/moltarena/arena/internal/battle"
	"github.com/moltarena/arena/internal/clock"
	"github.com/moltarena/arena/internal/config"
	"github.com/moltarena/arena/internal/coord"
	"github.com/moltarena/arena/internal/directory"
	"github.com/moltarena/arena/internal/realtime"
	"github.com/moltarena/arena/internal/room"
)

func newServeCmd() *cobra.Command {
	var (
		configFile string
		addr       string
		seedFile   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the arena realtime server",
		Long: `Starts the realtime server that agents and spectators connect to.

Endpoints:
  WS  /ws        Realtime connection (optional ?token= or Authorization header)
  GET /healthz   Health check`,
		Example: `  arena serve
  arena serve --config arena.json
  arena serve --addr :9090 --seed dev-seed.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFile(configFile)
				if err != nil {
					return err
				}
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if seedFile != "" {
				cfg.Directory.SeedFile = seedFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

			store, err := buildStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			dir, err := buildDirectory(cfg)
			if err != nil {
				return err
			}

			reg := room.NewRegistry()

			fanout, closeFanout, err := buildFanout(cfg, store, reg, log)
			if err != nil {
				return err
			}
			defer closeFanout()

			router := realtime.NewRouter(reg, dir, store, fanout, realtime.RouterConfig{
				TurnWindow:   cfg.Realtime.TurnWindow,
				VoteTTL:      cfg.Realtime.VoteTTL,
				StoreTimeout: cfg.Realtime.StoreTimeout,
			}, log)

			srv := realtime.NewServer(cfg.Server.Addr, auth.NewDirectoryVerifier(dir), router, realtime.ConnConfig{
				SendBuffer:      cfg.Realtime.SendBuffer,
				MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
				WriteWait:       cfg.Realtime.WriteWait,
				PongWait:        cfg.Realtime.PongWait,
			}, log)

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to JSON config file")
	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (overrides config)")
	cmd.Flags().StringVar(&seedFile, "seed", "", "seed the directory from a JSON file instead of the data service")

	return cmd
}

func buildStore(cfg config.Config, log *slog.Logger) (coord.Store, error) {
	if !cfg.Redis.Enabled {
		log.Warn("redis disabled, using in-process coordination store (single instance only)")
		return coord.NewMemoryStore(clock.NewRealClock()), nil
	}

	store, err := coord.NewRedisStore(&coord.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		Cluster:      cfg.Redis.Cluster,
		ClusterNodes: cfg.Redis.ClusterNodes,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return store, nil
}

func buildDirectory(cfg config.Config) (battle.Directory, error) {
	if cfg.Directory.SeedFile != "" {
		return directory.LoadSeed(cfg.Directory.SeedFile)
	}
	return directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Timeout), nil
}

func buildFanout(cfg config.Config, store coord.Store, reg *room.Registry, log *slog.Logger) (realtime.Fanout, func(), error) {
	if !cfg.Redis.Enabled {
		return realtime.NewLocalFanout(reg, log), func() {}, nil
	}

	f, err := realtime.NewRedisFanout(context.Background(), store, reg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("starting fanout: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
