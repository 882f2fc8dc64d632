// Package backend selects and wires the store, the ledger services and the
// optional change-event publisher.
package backend

import (
	"context"
	"time"

	"spendtracker/internal/services"
	"spendtracker/internal/storage"
)

type CleanupFunc func() error

// BackendResult holds everything built from one Config. Cleanup releases the
// store and the AMQP connection.
type BackendResult struct {
	Store      storage.Store
	Ledger     *services.LedgerService
	Categories *services.CategoryService
	Events     bool
	Cleanup    CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath  string
	BalancePolicy string
	StoreTimeout  time.Duration

	// AMQP is optional for every backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
