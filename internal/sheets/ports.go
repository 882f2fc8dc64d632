package sheets

import (
	"context"
	"fmt"

	"spendtracker/internal/core"
)

// LedgerMirror receives a user's complete ledger, newest first, and replaces
// whatever copy it held before.
type LedgerMirror interface {
	ReplaceLedger(ctx context.Context, userID int64, rows []core.Transaction) error
}

// TabName is the sheet tab holding userID's ledger.
func TabName(userID int64) string {
	return fmt.Sprintf("ledger-%d", userID)
}

// Values lays rows out as a header followed by one line per transaction.
func Values(rows []core.Transaction) [][]any {
	out := make([][]any, 0, len(rows)+1)
	out = append(out, toCells(core.ExportHeader))
	for _, t := range rows {
		out = append(out, toCells(t.ExportRecord()))
	}
	return out
}

func toCells(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
