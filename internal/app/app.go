// Package app wires the paper pipeline from a single config.Config. Both the
// HTTP server and the queue worker build their components here.
package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/feichai0017/paper-processor/config"
	conceptmatch "github.com/feichai0017/paper-processor/internal/agent/concept"
	"github.com/feichai0017/paper-processor/internal/agent/converter"
	"github.com/feichai0017/paper-processor/internal/agent/extractor"
	"github.com/feichai0017/paper-processor/internal/agent/llm"
	"github.com/feichai0017/paper-processor/internal/gateway"
	"github.com/feichai0017/paper-processor/internal/repository"
	conceptsvc "github.com/feichai0017/paper-processor/internal/service/concept"
	"github.com/feichai0017/paper-processor/internal/service/paper"
	"github.com/feichai0017/paper-processor/internal/store"
	badgerstore "github.com/feichai0017/paper-processor/internal/store/badger"
	redisstore "github.com/feichai0017/paper-processor/internal/store/redis"
	"github.com/feichai0017/paper-processor/internal/utils/validator"
	"github.com/feichai0017/paper-processor/pkg/converters"
	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/metrics"
	"github.com/feichai0017/paper-processor/pkg/queue"
	"github.com/feichai0017/paper-processor/pkg/storage"
	"github.com/feichai0017/paper-processor/pkg/storage/local"
)

// App 进程内共享的组件
type App struct {
	Config   *config.Config
	Papers   *paper.Service
	Concepts *conceptsvc.Service
	Articles *repository.ArticleRepository
	Gateway  gateway.Gateway
	Metrics  *metrics.Metrics
	Logger   logger.Logger

	tasks   store.TaskStore
	redis   *goredis.Client
	db      *gorm.DB
	closers []func() error
}

// New 构建除调度器以外的全部组件，失败时关闭已打开的资源
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Metrics: metrics.New(), Logger: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openTaskStore(); err != nil {
		return nil, err
	}

	// AutoMigrate 打开时即执行迁移
	a.db, err = repository.Open(cfg.Postgres)
	if err != nil {
		return nil, err
	}

	files, err := local.NewLocalStorage(cfg.Upload.Root, log)
	if err != nil {
		return nil, err
	}
	archive, err := storage.NewArchive(ctx, cfg.Archive, log)
	if err != nil {
		return nil, err
	}

	client, err := llm.New(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	client = llm.WithObserver(client, a.Metrics)

	summaries := converters.NewSummaryConverter(cfg.LLM.Model)
	a.Articles = repository.NewArticleRepository(a.db)
	a.Gateway = gateway.New(
		a.Articles,
		gateway.NewScriptGraphLoader(cfg.Converter.PythonBin, cfg.Graph, log),
		archive,
		summaries,
		log,
	)
	a.Concepts = conceptsvc.NewService(repository.NewConceptRepository(a.db), log)

	a.Papers = paper.NewService(paper.Deps{
		Tasks:     a.tasks,
		Files:     files,
		Validator: validator.NewPaperValidator(log, validator.DefaultConfig(cfg.Server.MaxUploadSize, cfg.Upload.AllowedExtensions)),
		Converter: converter.NewOrchestrator(cfg.Converter, log),
		Extractor: extractor.NewEngine(client, cfg.Pipeline.MetadataBudget, log),
		Matcher:   conceptmatch.NewMatcher(client, cfg.Pipeline.ConceptBudget, log),
		Concepts:  a.Concepts,
		Gateway:   a.Gateway,
		Summaries: summaries,
		Metrics:   a.Metrics,
	}, paper.Options{
		SummaryEnabled: cfg.Pipeline.SummaryEnabled,
		Model:          cfg.LLM.Model,
	}, log)

	return a, nil
}

func (a *App) openTaskStore() error {
	cfg := a.Config
	switch cfg.TaskStore.Type {
	case "badger":
		s, err := badgerstore.Open(cfg.TaskStore.BadgerDir, cfg.TaskStore.InMemory, cfg.TaskStore.TTL, a.Logger)
		if err != nil {
			return err
		}
		a.tasks = s
	default:
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.tasks = redisstore.NewStore(a.redis, cfg.TaskStore.TTL, a.Logger)
	}
	return nil
}

// Dispatcher 按配置创建调度器并注入服务，pool 模式在本进程内执行流水线
func (a *App) Dispatcher() (queue.Dispatcher, error) {
	cfg := a.Config
	var d queue.Dispatcher
	switch cfg.Pipeline.Dispatcher {
	case "asynq":
		d = queue.NewAsynqDispatcher(a.AsynqConfig(), a.Logger)
	default:
		pool, err := queue.NewPoolDispatcher(a.Papers.Run, cfg.Pipeline.Workers, cfg.Pipeline.MaxInFlight, a.Logger)
		if err != nil {
			return nil, err
		}
		d = pool
	}
	a.Papers.SetDispatcher(d)
	a.closers = append(a.closers, d.Close)
	return d, nil
}

// AsynqConfig asynq 与任务状态共用同一个 Redis
func (a *App) AsynqConfig() queue.AsynqConfig {
	cfg := a.Config
	return queue.AsynqConfig{
		RedisAddr:      cfg.Redis.Addr,
		RedisPassword:  cfg.Redis.Password,
		RedisDB:        cfg.Redis.DB,
		MaxInFlight:    cfg.Pipeline.MaxInFlight,
		ProcessTimeout: cfg.Pipeline.ProcessTimeout,
	}
}

// Close 调度器先于存储关闭，保证运行中的任务还能写回状态
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	if a.tasks != nil {
		errs = append(errs, a.tasks.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
