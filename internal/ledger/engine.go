// Package ledger maintains the materialized running balance of a user's
// transactions.
//
// The balance of an active transaction T is the sum of (credited - debited)
// over every active transaction of the same user whose ChronoKey is <= T's.
// Two policies keep that invariant after each mutation: Full rewalks the
// whole ledger, Incremental shifts only the rows after the changed key. Both
// must converge on identical balances.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"spendtracker/internal/core"
)

// Policy selects how balances are recalculated after a mutation.
type Policy string

const (
	PolicyFull        Policy = "full"
	PolicyIncremental Policy = "incremental"
)

// ParsePolicy accepts "full" or "incremental" (case-insensitive). Empty
// selects incremental.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyIncremental:
		return PolicyIncremental, nil
	case PolicyFull:
		return PolicyFull, nil
	default:
		return "", fmt.Errorf("unknown balance policy %q (valid: full, incremental)", s)
	}
}

// Ledger is the slice of a store unit of work the engine needs. All methods
// are scoped to one user and run inside the same atomic unit as the mutation
// that triggered them.
type Ledger interface {
	// ActiveOrdered returns the active rows in ascending ChronoKey order.
	ActiveOrdered(ctx context.Context) ([]core.Transaction, error)
	// BalanceBefore returns the stored balance of the active row with the
	// greatest key strictly below key, ignoring excludeID. Zero if none.
	BalanceBefore(ctx context.Context, key core.ChronoKey, excludeID int64) (core.Money, error)
	SetBalance(ctx context.Context, id int64, balance core.Money) error
	// ShiftBalancesAfter adds delta to every active row with a key strictly
	// above key, ignoring excludeID, and returns the number of rows touched.
	ShiftBalancesAfter(ctx context.Context, key core.ChronoKey, excludeID int64, delta core.Money) (int64, error)
}

// Engine applies the configured Policy.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	if policy == "" {
		policy = PolicyIncremental
	}
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

// ApplyInsert computes the balance of t, which is already stored with a
// placeholder balance, and propagates its delta. It returns t with its
// balance set.
func (e *Engine) ApplyInsert(ctx context.Context, l Ledger, t core.Transaction) (core.Transaction, error) {
	if e.policy == PolicyFull {
		balances, _, err := recompute(ctx, l)
		if err != nil {
			return t, err
		}
		bal, ok := balances[t.ID]
		if !ok {
			return t, fmt.Errorf("%w: inserted transaction %d missing from ledger walk", core.ErrInfrastructure, t.ID)
		}
		t.Balance = bal
		return t, nil
	}

	bal, err := e.place(ctx, l, t)
	if err != nil {
		return t, fmt.Errorf("apply insert: %w", err)
	}
	t.Balance = bal
	return t, nil
}

// ApplyUpdate reconciles balances after old was rewritten as updated. Both
// share an id and created_at; date and amounts may differ.
func (e *Engine) ApplyUpdate(ctx context.Context, l Ledger, old, updated core.Transaction) error {
	if e.policy == PolicyFull {
		_, _, err := recompute(ctx, l)
		return err
	}

	if old.Key().Compare(updated.Key()) == 0 {
		delta := updated.Delta().Sub(old.Delta())
		if delta.IsZero() {
			return nil
		}
		base, err := l.BalanceBefore(ctx, updated.Key(), updated.ID)
		if err != nil {
			return fmt.Errorf("apply update: %w", err)
		}
		if err := l.SetBalance(ctx, updated.ID, base.Add(updated.Delta())); err != nil {
			return fmt.Errorf("apply update: %w", err)
		}
		n, err := l.ShiftBalancesAfter(ctx, updated.Key(), updated.ID, delta)
		if err != nil {
			return fmt.Errorf("apply update: %w", err)
		}
		slog.DebugContext(ctx, "Balances shifted", "transaction_id", updated.ID, "delta", delta.String(), "rows_shifted", n)
		return nil
	}

	// The key moved: take the row out at its old position, then place it at
	// the new one.
	if err := e.remove(ctx, l, old); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	if _, err := e.place(ctx, l, updated); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	return nil
}

// ApplyDelete propagates the removal of old, which is already soft-deleted.
func (e *Engine) ApplyDelete(ctx context.Context, l Ledger, old core.Transaction) error {
	if e.policy == PolicyFull {
		_, _, err := recompute(ctx, l)
		return err
	}
	if err := e.remove(ctx, l, old); err != nil {
		return fmt.Errorf("apply delete: %w", err)
	}
	return nil
}

// Recompute rewalks the whole ledger regardless of policy and returns the
// number of rows whose stored balance was corrected.
func (e *Engine) Recompute(ctx context.Context, l Ledger) (int, error) {
	_, n, err := recompute(ctx, l)
	return n, err
}

func (e *Engine) place(ctx context.Context, l Ledger, t core.Transaction) (core.Money, error) {
	base, err := l.BalanceBefore(ctx, t.Key(), t.ID)
	if err != nil {
		return core.Zero, err
	}
	bal := base.Add(t.Delta())
	if err := l.SetBalance(ctx, t.ID, bal); err != nil {
		return core.Zero, err
	}
	n, err := l.ShiftBalancesAfter(ctx, t.Key(), t.ID, t.Delta())
	if err != nil {
		return core.Zero, err
	}
	slog.DebugContext(ctx, "Transaction placed", "transaction_id", t.ID, "balance", bal.String(), "rows_shifted", n)
	return bal, nil
}

func (e *Engine) remove(ctx context.Context, l Ledger, t core.Transaction) error {
	delta := t.Delta().Neg()
	if delta.IsZero() {
		return nil
	}
	n, err := l.ShiftBalancesAfter(ctx, t.Key(), t.ID, delta)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Transaction removed", "transaction_id", t.ID, "delta", delta.String(), "rows_shifted", n)
	return nil
}

func recompute(ctx context.Context, l Ledger) (map[int64]core.Money, int, error) {
	rows, err := l.ActiveOrdered(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("recompute: %w", err)
	}
	want, err := RunningBalances(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("recompute: %w", err)
	}

	balances := make(map[int64]core.Money, len(rows))
	updated := 0
	for i, row := range rows {
		balances[row.ID] = want[i]
		if row.Balance.Equal(want[i]) {
			continue
		}
		if err := l.SetBalance(ctx, row.ID, want[i]); err != nil {
			return nil, updated, fmt.Errorf("recompute: %w", err)
		}
		updated++
	}
	return balances, updated, nil
}
