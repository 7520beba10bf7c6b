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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/directory/postgres"
	"github.com/MrEthical07/goSession/directory/yamlfile"
	"github.com/MrEthical07/goSession/internal/httpapi"
	"github.com/MrEthical07/goSession/internal/serverconfig"
	"github.com/MrEthical07/goSession/internal/telemetry"
	"github.com/MrEthical07/goSession/middleware"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
)

func newServeCommand() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP authentication service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := serverconfig.Load(ctx, envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file read before the environment")
	return cmd
}

func serve(ctx context.Context, cfg serverconfig.Config, logger zerolog.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}

	dir, readyDir, closeDir, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	builder := goSession.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithLogger(logger).
		WithDirectory(dir)
	if cfg.AuditLog {
		builder = builder.WithAuditSink(goSession.NewZerologSink(logger.With().Str("stream", "audit").Logger()))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	ips, err := middleware.NewIPResolver(cfg.TrustedProxies...)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	engineCfg := engine.Config()
	router := httpapi.Router(httpapi.RouterOptions{
		Service:       engine,
		Authenticator: engine,
		Whitelist:     engineCfg.Filter.Whitelist,
		Ready: func(ctx context.Context) error {
			if _, err := engine.Ping(ctx); err != nil {
				return err
			}
			return readyDir(ctx)
		},
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		AllowedOrigins: cfg.AllowedOrigins,
		IPs:            ips,
		RequestsPerMin: cfg.RequestsPerMin,
		ServiceName:    cfg.ServiceName,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("directory", cfg.Directory).Msg("starting authd")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	logger.Info().Uint64("audit_dropped", engine.AuditDropped()).Msg("authd stopped")
	return nil
}

// openDirectory returns the configured user directory, its readiness check
// and a close function.
func openDirectory(ctx context.Context, cfg serverconfig.Config) (goSession.Directory, func(context.Context) error, func(), error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Directory {
	case serverconfig.DirectoryPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		dir, err := postgres.New(pool, postgres.WithSchema(cfg.DatabaseSchema))
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return dir, dir.Ping, pool.Close, nil
	default:
		dir, err := yamlfile.Load(cfg.DirectoryFile)
		if err != nil {
			return nil, nil, nil, err
		}
		if dir.Len() == 0 {
			return nil, nil, nil, fmt.Errorf("directory %s has no users", cfg.DirectoryFile)
		}
		return dir, noop, func() {}, nil
	}
}
