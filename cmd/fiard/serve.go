package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fiar-dev/fiar/internal/archive"
	"github.com/fiar-dev/fiar/internal/config"
	"github.com/fiar-dev/fiar/pkg/auth"
	"github.com/fiar-dev/fiar/pkg/hub"
	"github.com/fiar-dev/fiar/pkg/registry"
	"github.com/fiar-dev/fiar/pkg/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := registry.New(st, &registry.Config{
		PersistTimeout:    cfg.PersistTimeout,
		DispatchQueueSize: registry.DefaultConfig().DispatchQueueSize,
	}, logger)

	var archiver archive.Archiver = archive.Nop{}
	if cfg.ArchiveBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		archiver = archive.NewS3Archiver(s3.NewFromConfig(awsCfg),
			cfg.ArchiveBucket, cfg.ArchivePrefix)
		logger.Info("replay archival enabled", "bucket", cfg.ArchiveBucket)
	}

	hubCfg := hub.DefaultConfig()
	hubCfg.WriteTimeout = cfg.WriteTimeout
	hubCfg.PersistTimeout = cfg.PersistTimeout

	h := hub.New(hub.Options{
		Registry:   reg,
		Store:      st,
		Authorizer: auth.NewPolicyAuthorizer(nil, auth.StaticRoles{}),
		Archiver:   archiver,
		Config:     hubCfg,
		Logger:     logger,
		Registerer: prometheus.DefaultRegisterer,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", h)
	r.Post("/games", h.CreateGame)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("server listening", "addr", cfg.Addr, "db", cfg.DatabasePath)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
