package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/feichai0017/paper-processor/api/handlers"
	"github.com/feichai0017/paper-processor/api/routes"
	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/internal/app"
	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/scheduler"
)

func main() {
	cliApp := &cli.App{
		Name:  "paper-server",
		Usage: "paper processing HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"CONFIG_PATH"}, Usage: "YAML config file"},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"))
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// init logger
	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", logger.Error(err))
		return err
	}
	defer a.Close()

	if _, err := a.Dispatcher(); err != nil {
		log.Error("Failed to create dispatcher", logger.Error(err))
		return err
	}
	// 进程内队列不持久化，重启后接管上次遗留的任务
	if cfg.Pipeline.Dispatcher == "pool" {
		if _, _, err := a.Papers.Resume(ctx); err != nil {
			log.Warn("Failed to resume unfinished tasks", logger.Error(err))
		}
	}

	sched := scheduler.New(log)
	if cfg.Cleanup.Enabled {
		err := sched.Add("cleanup-tasks", cfg.Cleanup.Schedule, func(ctx context.Context) error {
			_, err := a.Papers.CleanupTasks(ctx, cfg.Cleanup.Retention)
			return err
		})
		if err != nil {
			return err
		}
	}
	sched.Start()

	// init handlers
	h := handlers.NewHandlers(a.Papers, a.Concepts, a.Gateway, a.Articles, cfg.Server.MaxUploadSize, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, routes.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        a.Metrics.Handler(),
		Logger:         log,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	// start server
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			logger.String("addr", cfg.Server.Addr),
			logger.String("dispatcher", cfg.Pipeline.Dispatcher),
			logger.String("task_store", cfg.TaskStore.Type),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("Server error", logger.Error(err))
	}

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	sched.Stop(shutdownCtx)
	return nil
}
