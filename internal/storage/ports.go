package storage

import (
	"context"

	"spendtracker/internal/core"
	"spendtracker/internal/ledger"
)

// UnitOfWork is one atomic, user-scoped write unit. Every method sees the
// writes made earlier in the same unit.
type UnitOfWork interface {
	ledger.Ledger

	// GetCategory returns an active category owned by the user or global.
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	// InsertTransaction stores t with a zero balance and returns it with id,
	// created_at and updated_at assigned.
	InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetActiveTransaction(ctx context.Context, id int64) (core.Transaction, error)
	// UpdateTransactionFields rewrites the user-editable fields of t.
	UpdateTransactionFields(ctx context.Context, t core.Transaction) (core.Transaction, error)
	SoftDeleteTransaction(ctx context.Context, id int64) error
}

// LedgerStore holds transactions. Read methods are snapshot consistent.
type LedgerStore interface {
	// WithinUserTx runs fn in one unit; an error from fn rolls it back.
	WithinUserTx(ctx context.Context, userID int64, fn func(UnitOfWork) error) error

	ListTransactions(ctx context.Context, userID int64, f core.Filter, p core.PageRequest) ([]core.Transaction, int, error)
	ExportRows(ctx context.Context, userID int64, f core.Filter) ([]core.Transaction, error)
	Totals(ctx context.Context, userID int64, f core.Filter) (core.Totals, error)
	LatestBalance(ctx context.Context, userID int64, asOf core.Date) (core.Money, error)
	// Summary combines Totals(f) with the balance of the whole active ledger,
	// read from one snapshot. The balance ignores every constraint of f.
	Summary(ctx context.Context, userID int64, f core.Filter) (core.SummaryView, error)
	CategoryBreakdown(ctx context.Context, userID int64, f core.Filter) ([]core.CategorySpending, error)
	MonthlyTrend(ctx context.Context, userID int64, since core.Date) ([]core.MonthTrend, error)
}

type CategoryStore interface {
	// ListCategories returns the user's and the global active categories by name.
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	CreateCategory(ctx context.Context, userID int64, in core.CategoryInput) (core.Category, error)
	// SoftDeleteCategory fails with core.ErrNotFound unless the user owns an
	// active category with that id.
	SoftDeleteCategory(ctx context.Context, userID, id int64) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
}

// Store is the complete persistence port.
type Store interface {
	LedgerStore
	CategoryStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}
