package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sujalbistaa/confessions/internal/db"
	routes "github.com/sujalbistaa/confessions/internal/http"
	"github.com/sujalbistaa/confessions/internal/mirror"
	"github.com/sujalbistaa/confessions/internal/moderation"
	"github.com/sujalbistaa/confessions/internal/store"
	"github.com/sujalbistaa/confessions/internal/ws"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return err
	}

	database, err := db.Open(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close(database)

	log.Info("running database migrations")
	if err := db.Migrate(database); err != nil {
		return err
	}

	m, mirrorCloser := mirror.New(ctx, cfg, log)
	defer mirrorCloser.Close()
	dispatcher := mirror.NewDispatcher(m, log, mirror.DispatcherOptions{
		Timeout: cfg.Mirror.Timeout,
		Workers: cfg.Mirror.Workers,
		Queue:   cfg.Mirror.Queue,
	})

	hub := ws.NewHub(log, cfg.CORSOrigin)

	if cfg.Log.Format != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	g, gctx := errgroup.WithContext(ctx)

	env := &routes.Env{
		Store:      store.New(database),
		Mirror:     dispatcher,
		Feed:       hub,
		Categories: moderation.NewCategoryPolicy(cfg.Moderation.Categories),
		Limits: routes.Limits{
			MaxConfessionLength: cfg.Moderation.MaxConfessionLength,
			MaxCommentLength:    cfg.Moderation.MaxCommentLength,
		},
		Log: log,
	}
	routes.SetupRoutes(gctx, router, env, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("mirror", cfg.MirrorKind()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if derr := dispatcher.Close(drainCtx); derr != nil {
		log.Warn("mirror queue not drained", zap.Error(derr))
	}

	if err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server exiting")
	return nil
}
