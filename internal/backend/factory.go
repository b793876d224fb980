package backend

import (
	"context"
	"fmt"

	"finwatch/internal/alerts"
	"finwatch/internal/amqp"
	"finwatch/internal/kv"
	"finwatch/internal/log"
	"finwatch/internal/sources/memory"
	"finwatch/internal/sources/sheets"
	"finwatch/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create builds the ledger first, then the document store (which may share
// the ledger's database) and finally the toast sink. On error everything
// created so far is released.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (_ *Result, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	defer func() {
		if err != nil {
			res.Close()
		}
	}()

	var repo *storage.Repository
	switch config.Type {
	case SQLiteBackend:
		repo, err = storage.OpenSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		repo, err = storage.OpenPostgres(ctx, config.DatabaseURL, config.Pool)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
	case SheetsBackend:
		sc := config.Sheets
		sc.Logger = f.logger
		cli, err := sheets.New(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		res.Ledger = cli
		f.logger.Info("Initialized Google Sheets backend")
	case MemoryBackend:
		store, err := memory.NewFromFile(config.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		res.Ledger = store
		f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	}
	if repo != nil {
		res.Ledger = repo
		res.addCleanup(repo.Close)
		res.addCheck("database", repo.Ping)
	}

	switch config.KV {
	case KVDatabase:
		res.Documents = repo
	case KVRedis:
		r, err := kv.NewRedis(ctx, config.RedisURL, "")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis document store: %w", err)
		}
		res.Documents = r
		res.addCleanup(r.Close)
		res.addCheck("redis", r.Ping)
	case KVMemory:
		res.Documents = kv.NewMemory()
	}
	f.logger.Info("Initialized suppression store", "kv_backend", string(config.KV))

	res.Toaster = f.createToaster(config, res)
	return res, nil
}

// createToaster connects to AMQP when configured. A broker that cannot be
// reached does not prevent startup; toasts are logged instead.
func (f *DefaultFactory) createToaster(config Config, res *Result) alerts.Toaster {
	if config.AMQPURL == "" {
		return alerts.NewLogToaster(f.logger)
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, logging toasts instead", log.FieldError, err)
		return alerts.NewLogToaster(f.logger)
	}
	res.addCleanup(client.Close)
	res.addCheck("amqp", func(context.Context) error { return client.Ping() })
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
