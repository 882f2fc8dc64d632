package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendtracker/internal/amqp"
	"spendtracker/internal/core"
	"spendtracker/internal/sheets"
)

// LedgerReader yields a user's ledger in export order.
type LedgerReader interface {
	ExportRows(ctx context.Context, userID int64, f core.Filter) ([]core.Transaction, error)
}

// SyncWorker mirrors a user's whole ledger to the sheet each time one of
// their transactions changes. Messages carry identifiers only, so replaying
// an old message still writes the current state.
type SyncWorker struct {
	ledger  LedgerReader
	mirror  sheets.LedgerMirror
	timeout time.Duration
}

// NewSyncWorker bounds each message with timeout; zero means no bound.
func NewSyncWorker(ledger LedgerReader, mirror sheets.LedgerMirror, timeout time.Duration) *SyncWorker {
	return &SyncWorker{ledger: ledger, mirror: mirror, timeout: timeout}
}

// HandleChange processes one change message. Only retryable failures are
// returned, so the broker requeues them; anything else is logged and dropped.
func (w *SyncWorker) HandleChange(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	slog.InfoContext(ctx, "Processing ledger change",
		"user_id", msg.UserID,
		"transaction_id", msg.TransactionID,
		"operation", msg.Operation)

	err := w.sync(ctx, msg.UserID)
	switch {
	case err == nil:
		return nil
	case core.IsRetryable(err):
		slog.WarnContext(ctx, "Ledger mirror failed, will retry",
			"user_id", msg.UserID,
			"error", err)
		return err
	default:
		slog.ErrorContext(ctx, "Ledger mirror failed, dropping message",
			"user_id", msg.UserID,
			"transaction_id", msg.TransactionID,
			"error_kind", core.KindOf(err),
			"error", err)
		return nil
	}
}

func (w *SyncWorker) sync(ctx context.Context, userID int64) error {
	rows, err := w.ledger.ExportRows(ctx, userID, core.Filter{})
	if err != nil {
		return fmt.Errorf("read ledger for user %d: %w", userID, err)
	}
	if err := w.mirror.ReplaceLedger(ctx, userID, rows); err != nil {
		return fmt.Errorf("mirror ledger for user %d: %w", userID, err)
	}
	return nil
}
