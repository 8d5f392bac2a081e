package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/internal/app"
	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/queue"
	"github.com/feichai0017/paper-processor/pkg/worker"
)

func main() {
	cliApp := &cli.App{
		Name:  "paper-worker",
		Usage: "runs queued paper pipelines (dispatcher=asynq)",
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

	// 初始化日志
	log, err := app.NewLogger(cfg.Log, "stdout", "logs/worker.log")
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

	// 创建 worker 配置
	workerCfg := &worker.Config{
		Redis:       a.AsynqConfig().RedisOpt(),
		Concurrency: cfg.Pipeline.Workers,
		Queues:      map[string]int{queue.QueueName: 1},
	}
	paperWorker := worker.NewPaperWorker(workerCfg, a.Papers.Run, log)

	// 启动 worker
	if err := paperWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		return err
	}
	log.Info("Worker started", logger.Int("concurrency", cfg.Pipeline.Workers))

	// 等待中断信号
	<-ctx.Done()

	// 优雅关闭
	log.Info("Shutting down worker...")
	paperWorker.Stop()
	log.Info("Worker stopped")
	return nil
}
