package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spendtracker/internal/amqp"
	"spendtracker/internal/ledger"
	"spendtracker/internal/services"
	"spendtracker/internal/storage"
	"spendtracker/internal/storage/memory"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	policy, _ := ledger.ParsePolicy(config.BalancePolicy)

	store, err := f.openStore(config)
	if err != nil {
		return nil, err
	}

	cleanups := []func() error{store.Close}
	opts := []services.LedgerOption{services.WithStoreTimeout(config.StoreTimeout)}

	// Events are best-effort; a broker outage at startup leaves them off.
	var events bool
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			events = true
			opts = append(opts, services.WithEvents(client))
			cleanups = append(cleanups, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	ledgerSvc := services.NewLedgerService(store, ledger.NewEngine(policy), ledger.NewLocker(), opts...)
	categorySvc := services.NewCategoryService(store, config.StoreTimeout)

	f.logger.Info("Initialized backend",
		"backend", config.Type,
		"policy", policy,
		"events", events)

	return &BackendResult{
		Store:      store,
		Ledger:     ledgerSvc,
		Categories: categorySvc,
		Events:     events,
		Cleanup: func() error {
			var errs []error
			for i := len(cleanups) - 1; i >= 0; i-- {
				errs = append(errs, cleanups[i]())
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) openStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Opened SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory store; data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
