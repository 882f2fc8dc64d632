package ledger

import (
	"fmt"

	"spendtracker/internal/core"
)

// RunningBalances walks rows, which must be sorted ascending by ChronoKey,
// and returns the expected balance of each. Adjacent equal keys fail with
// core.ErrKeyCollision.
func RunningBalances(rows []core.Transaction) ([]core.Money, error) {
	out := make([]core.Money, len(rows))
	running := core.Zero
	for i, row := range rows {
		if i > 0 {
			switch c := rows[i-1].Key().Compare(row.Key()); {
			case c == 0:
				return nil, fmt.Errorf("%w: transactions %d and %d at %s",
					core.ErrKeyCollision, rows[i-1].ID, row.ID, row.Key())
			case c > 0:
				return nil, fmt.Errorf("%w: ledger rows out of order at transaction %d",
					core.ErrInfrastructure, row.ID)
			}
		}
		running = running.Add(row.Delta())
		out[i] = running
	}
	return out, nil
}

// Mismatch describes a row whose stored balance differs from the running sum.
type Mismatch struct {
	TransactionID int64
	Stored        core.Money
	Expected      core.Money
}

func (m Mismatch) Error() string {
	return fmt.Sprintf("transaction %d: stored balance %s, expected %s", m.TransactionID, m.Stored, m.Expected)
}

// Verify checks stored balances against the oracle and returns the first
// mismatch, or nil.
func Verify(rows []core.Transaction) error {
	want, err := RunningBalances(rows)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if !row.Balance.Equal(want[i]) {
			return Mismatch{TransactionID: row.ID, Stored: row.Balance, Expected: want[i]}
		}
	}
	return nil
}
