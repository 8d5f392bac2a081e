package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/internal/store"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// Store 单机部署时的嵌入式任务状态存储
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger logger.Logger
}

// badgerLogger 把 badger 的日志接到项目日志
type badgerLogger struct {
	logger logger.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Error(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warn(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debug(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debug(fmt.Sprintf(msg, items...)) }

// Open dir 为空或 inMemory 为 true 时使用内存模式
func Open(dir string, inMemory bool, ttl time.Duration, log logger.Logger) (*Store, error) {
	log = log.Named("taskstore.badger")

	var opts badger.Options
	if inMemory || dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: log}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db, ttl: ttl, logger: log}, nil
}

func (s *Store) Create(ctx context.Context, task *models.ProcessingTask) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(store.Key(task.TaskID)))
		if err == nil {
			return store.ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to read task: %w", err)
		}
		return s.put(txn, task)
	})
}

func (s *Store) Update(ctx context.Context, task *models.ProcessingTask) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(store.Key(task.TaskID)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read task: %w", err)
		}
		return s.put(txn, task)
	})
}

func (s *Store) put(txn *badger.Txn, task *models.ProcessingTask) error {
	store.Touch(task, time.Now())
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	entry := badger.NewEntry([]byte(store.Key(task.TaskID)), data)
	if ttl := store.Expiry(task, s.ttl); ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return txn.SetEntry(entry)
}

func (s *Store) Get(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	var task models.ProcessingTask
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(store.Key(taskID)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &task)
		})
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Store) Delete(ctx context.Context, taskID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(store.Key(taskID))
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		return txn.Delete(key)
	})
}

func (s *Store) List(ctx context.Context) ([]*models.ProcessingTask, error) {
	var tasks []*models.ProcessingTask
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(store.KeyPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var task models.ProcessingTask
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &task)
			})
			if err != nil {
				s.logger.Warn("Skipping unreadable task",
					logger.String("key", string(iter.Item().Key())),
					logger.Error(err),
				)
				continue
			}
			tasks = append(tasks, &task)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	store.SortNewestFirst(tasks)
	return tasks, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
