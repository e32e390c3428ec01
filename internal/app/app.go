package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgroy10/excel-to-image-api/internal/config"
	"github.com/sgroy10/excel-to-image-api/internal/queue"
	"github.com/sgroy10/excel-to-image-api/internal/rasterizer"
	"github.com/sgroy10/excel-to-image-api/internal/renderer"
	"github.com/sgroy10/excel-to-image-api/internal/toolexec"
	"github.com/sgroy10/excel-to-image-api/internal/transport/handler"
	"github.com/sgroy10/excel-to-image-api/internal/transport/router"
	use_case "github.com/sgroy10/excel-to-image-api/internal/use-case"
	"github.com/sgroy10/excel-to-image-api/internal/workspace"
)

type App struct {
	HttpServer *http.Server

	cfg *config.Config
	log zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	workspaces, err := workspace.NewManager(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}

	runner := toolexec.New()
	gate := queue.NewGate(cfg.Renderer.MaxConcurrent, cfg.Renderer.QueueTimeout*time.Second)

	rend := renderer.NewLibreOffice(cfg.Renderer, cfg.Convert.AllowedExtensions, gate, runner, log)
	rast := rasterizer.NewPoppler(cfg.Rasterizer, runner, log)

	uc := use_case.New(workspaces, rend, rast, cfg.Convert.AllowedExtensions, cfg.Rasterizer.MaxDPI, log)

	h := handler.New(uc, cfg, log)
	r := router.NewRouter(h, log)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Run blocks until the server fails or a termination signal arrives,
// then drains in-flight conversions before returning.
func (a *App) Run() error {
	serverErrors := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.HttpServer.Addr).Msg("http server listening")
		serverErrors <- a.HttpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case sig := <-shutdown:
		a.log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout*time.Second)
	defer cancel()

	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("graceful shutdown failed")
		return a.HttpServer.Close()
	}

	a.log.Info().Msg("server stopped")
	return nil
}
