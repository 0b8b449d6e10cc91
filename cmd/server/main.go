package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternalApril/lettuce/internal/config"
	"github.com/eternalApril/lettuce/internal/logger"
	"github.com/eternalApril/lettuce/internal/server"
	"github.com/eternalApril/lettuce/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Build information, set via ldflags
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "lettuce-server",
		Usage:   "in-memory key-value server speaking RESP",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "directory containing config.yaml",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "listen address, overrides server.host",
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "listen port, overrides server.port",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error, overrides log.level",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	src := config.NewSource(c.String("config"))
	for flag, key := range map[string]string{
		"host":      "server.host",
		"port":      "server.port",
		"log-level": "log.level",
	} {
		if c.IsSet(flag) {
			src.Override(key, c.String(flag))
		}
	}

	cfg, err := src.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, level := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync() //nolint:errcheck

	log.Info("Lettuce starting",
		zap.String("version", version),
		zap.String("port", cfg.Server.Port),
		zap.Uint("shards", cfg.Storage.Shards),
	)

	watching := src.Watch(func(next *config.Config, err error) {
		if err != nil {
			log.Warn("config reload failed", zap.Error(err))
			return
		}
		logger.SetLevel(level, next.Log.Level)
		log.Info("config reloaded", zap.String("log_level", next.Log.Level))
	})
	if watching {
		log.Info("watching config", zap.String("file", src.File()))
	}

	db, err := storage.NewShardedMapStorage(cfg.Storage.Shards)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	var (
		metrics *server.Metrics
		opts    []server.Option
	)
	if cfg.Metrics.Enabled {
		metrics, err = server.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		opts = append(opts, server.WithMetrics(metrics))
	}

	engine, err := server.NewEngine(db, cfg, log, opts...)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer engine.Shutdown()

	address := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", address, err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	srv := server.NewServer(engine, cfg.Server, metrics, log)
	g.Go(func() error {
		return srv.Serve(gctx, listener)
	})

	g.Go(func() error {
		return engine.Run(gctx)
	})

	if cfg.Metrics.Enabled {
		serveMetrics(gctx, g, cfg, log)
	}

	err = g.Wait()

	log.Info("Shutting down...")
	engine.Shutdown()
	log.Info("Lettuce stopped")

	return err
}

// serveMetrics exposes /metrics until ctx is done
func serveMetrics(ctx context.Context, g *errgroup.Group, cfg *config.Config, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info("metrics listening on", zap.String("address", cfg.Metrics.Address))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
}
