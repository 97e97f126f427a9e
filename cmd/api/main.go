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

	"github.com/urfave/cli/v3"

	"github.com/example/promptpack/api-go/internal/archive"
	"github.com/example/promptpack/api-go/internal/config"
	"github.com/example/promptpack/api-go/internal/generator"
	"github.com/example/promptpack/api-go/internal/health"
	"github.com/example/promptpack/api-go/internal/httpapi"
	"github.com/example/promptpack/api-go/internal/logging"
	"github.com/example/promptpack/api-go/internal/pipeline"
	"github.com/example/promptpack/api-go/internal/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "promptpack-api",
		Usage: "generate artifacts from a prompt and serve them as a zip download",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "path to a .env file (default: nearest .env above the working directory)",
					},
					&cli.IntFlag{
						Name:  "port",
						Usage: "listen port (overrides PORT)",
					},
					&cli.StringFlag{
						Name:  "collaborators",
						Usage: "YAML file listing collaborators probed by /status",
					},
				},
				Action: serve,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	if err := config.LoadDotEnv(cmd.String("env")); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}
	if path := cmd.String("collaborators"); path != "" {
		if cfg.Collaborators, err = config.LoadCollaborators(path); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	gen, err := generator.FromConfig(cfg)
	if err != nil {
		return err
	}

	server := httpapi.Server{
		Pipeline: pipeline.New(
			workspace.NewManager(cfg.WorkspaceRoot),
			gen,
			archive.NewBuilder(cfg.ArchiveName, cfg.ArchiveLevel),
			log,
		),
		Health: health.NewChecker(health.FromConfig(cfg), log),
		Log:    log,
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).
			WithField("generator", cfg.Generator).
			WithField("workspace_root", cfg.WorkspaceRoot).
			WithField("collaborators", len(cfg.Collaborators)).
			Info("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
