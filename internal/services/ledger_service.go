package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"spendtracker/internal/amqp"
	"spendtracker/internal/core"
	"spendtracker/internal/ledger"
	"spendtracker/internal/storage"
)

const DefaultStoreTimeout = 5 * time.Second

// EventPublisher announces committed ledger mutations.
type EventPublisher interface {
	PublishTransactionChanged(ctx context.Context, userID, transactionID int64, operation string) error
}

// LedgerService runs the transaction operations: validation, per-user
// serialization, one store unit per mutation with balance recalculation, and
// best-effort change events.
type LedgerService struct {
	store   storage.LedgerStore
	engine  *ledger.Engine
	locker  *ledger.Locker
	events  EventPublisher
	timeout time.Duration
	now     func() time.Time
}

type LedgerOption func(*LedgerService)

// WithEvents publishes a change message after every committed mutation.
func WithEvents(p EventPublisher) LedgerOption {
	return func(s *LedgerService) { s.events = p }
}

// WithStoreTimeout bounds every store call, lock wait included.
func WithStoreTimeout(d time.Duration) LedgerOption {
	return func(s *LedgerService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store storage.LedgerStore, engine *ledger.Engine, locker *ledger.Locker, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:   store,
		engine:  engine,
		locker:  locker,
		timeout: DefaultStoreTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddResult is returned by AddTransaction.
type AddResult struct {
	ID      int64      `json:"id"`
	Balance core.Money `json:"balance"`
}

// mutate holds the user's lock for one store unit under the store timeout.
func (s *LedgerService) mutate(ctx context.Context, userID int64, fn func(context.Context, storage.UnitOfWork) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.WithinUserTx(ctx, userID, func(uow storage.UnitOfWork) error {
		return fn(ctx, uow)
	})
}

// AddTransaction validates in, stores it and places it in the running
// balance.
func (s *LedgerService) AddTransaction(ctx context.Context, userID int64, in core.TransactionInput) (AddResult, error) {
	if err := in.Validate(); err != nil {
		return AddResult{}, err
	}

	var created core.Transaction
	err := s.mutate(ctx, userID, func(ctx context.Context, uow storage.UnitOfWork) error {
		if _, err := uow.GetCategory(ctx, in.CategoryID); err != nil {
			return err
		}
		row, err := uow.InsertTransaction(ctx, in.Apply(core.Transaction{UserID: userID}))
		if err != nil {
			return err
		}
		created, err = s.engine.ApplyInsert(ctx, uow, row)
		return err
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("add transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"user_id", userID,
		"transaction_id", created.ID,
		"transaction_date", created.Date.String(),
		"balance", created.Balance.String())
	s.publish(ctx, userID, created.ID, amqp.OperationCreate)

	return AddResult{ID: created.ID, Balance: created.Balance}, nil
}

// UpdateTransaction rewrites an active transaction and reconciles balances
// from its old and new positions.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, id int64, in core.TransactionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	err := s.mutate(ctx, userID, func(ctx context.Context, uow storage.UnitOfWork) error {
		old, err := uow.GetActiveTransaction(ctx, id)
		if err != nil {
			return err
		}
		if _, err := uow.GetCategory(ctx, in.CategoryID); err != nil {
			return err
		}
		updated, err := uow.UpdateTransactionFields(ctx, in.Apply(old))
		if err != nil {
			return err
		}
		return s.engine.ApplyUpdate(ctx, uow, old, updated)
	})
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Transaction updated", "user_id", userID, "transaction_id", id)
	s.publish(ctx, userID, id, amqp.OperationUpdate)
	return nil
}

// DeleteTransaction soft-deletes an active transaction. Deleting it again
// fails with core.ErrNotFound and changes nothing.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	err := s.mutate(ctx, userID, func(ctx context.Context, uow storage.UnitOfWork) error {
		old, err := uow.GetActiveTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := uow.SoftDeleteTransaction(ctx, id); err != nil {
			return err
		}
		return s.engine.ApplyDelete(ctx, uow, old)
	})
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "user_id", userID, "transaction_id", id)
	s.publish(ctx, userID, id, amqp.OperationDelete)
	return nil
}

// Recompute rewalks the user's ledger and repairs any drifted balance.
func (s *LedgerService) Recompute(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.mutate(ctx, userID, func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		n, err = s.engine.Recompute(ctx, uow)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recompute ledger: %w", err)
	}

	if n > 0 {
		slog.WarnContext(ctx, "Ledger balances repaired", "user_id", userID, "rows_updated", n)
		s.publish(ctx, userID, 0, amqp.OperationRecompute)
	}
	return n, nil
}

// publish is best effort: the mutation is already committed.
func (s *LedgerService) publish(ctx context.Context, userID, transactionID int64, operation string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionChanged(context.WithoutCancel(ctx), userID, transactionID, operation); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction changed message",
			"user_id", userID,
			"transaction_id", transactionID,
			"operation", operation,
			"error", err)
	}
}

func (s *LedgerService) read(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// ListTransactions returns one page, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, f core.Filter, p core.PageRequest) (core.TransactionPage, error) {
	if err := f.Validate(); err != nil {
		return core.TransactionPage{}, err
	}
	p = p.Normalize()

	ctx, cancel := s.read(ctx)
	defer cancel()
	items, total, err := s.store.ListTransactions(ctx, userID, f, p)
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	if items == nil {
		items = []core.Transaction{}
	}
	return core.TransactionPage{Transactions: items, Pagination: core.NewPagination(p, total)}, nil
}

// Summary aggregates the filtered set. The current balance ignores the
// category filter and is taken as of f.To when set.
func (s *LedgerService) Summary(ctx context.Context, userID int64, f core.Filter) (core.SummaryView, error) {
	if err := f.Validate(); err != nil {
		return core.SummaryView{}, err
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	v, err := s.store.Summary(ctx, userID, f)
	if err != nil {
		return core.SummaryView{}, fmt.Errorf("summary: %w", err)
	}
	return v, nil
}

func (s *LedgerService) CategoryBreakdown(ctx context.Context, userID int64, from, to core.Date) ([]core.CategorySpending, error) {
	f := core.Filter{From: from, To: to}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	out, err := s.store.CategoryBreakdown(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	return out, nil
}

// MonthlyTrend covers the last core.TrendMonths calendar months, newest first.
func (s *LedgerService) MonthlyTrend(ctx context.Context, userID int64) ([]core.MonthTrend, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	out, err := s.store.MonthlyTrend(ctx, userID, core.TrendStart(s.now()))
	if err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}
	return out, nil
}

// Dashboard computes summary, breakdown and trend concurrently.
func (s *LedgerService) Dashboard(ctx context.Context, userID int64, f core.Filter) (core.Dashboard, error) {
	if err := f.Validate(); err != nil {
		return core.Dashboard{}, err
	}

	var d core.Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Summary, err = s.Summary(gctx, userID, f)
		return err
	})
	g.Go(func() error {
		var err error
		d.Categories, err = s.CategoryBreakdown(gctx, userID, f.From, f.To)
		return err
	})
	g.Go(func() error {
		var err error
		d.Trend, err = s.MonthlyTrend(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, fmt.Errorf("dashboard: %w", err)
	}
	return d, nil
}

// Export returns every filtered active row, newest first.
func (s *LedgerService) Export(ctx context.Context, userID int64, f core.Filter) ([]core.Transaction, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	rows, err := s.store.ExportRows(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("export transactions: %w", err)
	}
	return rows, nil
}
