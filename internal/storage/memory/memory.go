// Package memory is an in-process Store used by the memory backend and by
// tests. Units of work run against a private copy of the state that replaces
// the shared state on commit, so readers always see a committed snapshot.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spendtracker/internal/core"
	"spendtracker/internal/ledger"
	"spendtracker/internal/storage"
)

// DefaultCategories mirrors the global categories seeded by the SQLite
// migrations.
var DefaultCategories = []core.CategoryInput{
	{Name: "Salary", Description: "Income from employment", Color: "#28a745", Icon: "payments"},
	{Name: "Food & Dining", Description: "Groceries and restaurants", Color: "#fd7e14", Icon: "restaurant"},
	{Name: "Transportation", Description: "Fuel, transit and travel", Color: "#17a2b8", Icon: "directions_car"},
	{Name: "Utilities", Description: "Electricity, water and internet", Color: "#6f42c1", Icon: "bolt"},
	{Name: "Entertainment", Description: "Leisure and subscriptions", Color: "#e83e8c", Icon: "movie"},
	{Name: "Shopping", Description: "Clothing and household items", Color: "#ffc107", Icon: "shopping_cart"},
	{Name: "Healthcare", Description: "Medical and pharmacy", Color: "#dc3545", Icon: "local_hospital"},
	{Name: "Other", Description: "Everything else", Color: "#6c757d", Icon: "category"},
}

type state struct {
	users        []core.User
	categories   []core.Category
	transactions []core.Transaction // index is id-1
}

func (s *state) clone() *state {
	return &state{
		users:        append([]core.User(nil), s.users...),
		categories:   append([]core.Category(nil), s.categories...),
		transactions: append([]core.Transaction(nil), s.transactions...),
	}
}

// Store implements storage.Store.
type Store struct {
	mu      sync.RWMutex // guards cur
	writeMu sync.Mutex   // serializes units and other writes across all users
	cur     *state
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock uses now for created_at/updated_at assignment.
func NewWithClock(now func() time.Time) *Store {
	s := &state{}
	for i, in := range DefaultCategories {
		s.categories = append(s.categories, core.Category{
			ID: int64(i + 1), Name: in.Name, Description: in.Description,
			Color: in.Color, Icon: in.Icon, Active: true,
		})
	}
	return &Store{cur: s, now: now}
}

func (m *Store) snapshot() *state {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// write runs fn on a copy of the state and publishes it if fn succeeds.
func (m *Store) write(ctx context.Context, fn func(s *state) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrUnavailable, err)
	}

	next := m.snapshot().clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrUnavailable, err)
	}

	m.mu.Lock()
	m.cur = next
	m.mu.Unlock()
	return nil
}

func (m *Store) Ping(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", core.ErrUnavailable, ctx.Err())
	}
	return nil
}

func (m *Store) Close() error { return nil }

func (s *state) activeFor(userID int64) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID && t.Active {
			out = append(out, s.withCategory(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

func (s *state) withCategory(t core.Transaction) core.Transaction {
	if t.CategoryID >= 1 && int(t.CategoryID) <= len(s.categories) {
		c := s.categories[t.CategoryID-1]
		t.CategoryName, t.CategoryColor, t.CategoryIcon = c.Name, c.Color, c.Icon
	}
	return t
}

func visible(c core.Category, userID int64) bool {
	return c.Active && (c.UserID == nil || *c.UserID == userID)
}

// WithinUserTx implements storage.LedgerStore.
func (m *Store) WithinUserTx(ctx context.Context, userID int64, fn func(storage.UnitOfWork) error) error {
	return m.write(ctx, func(s *state) error {
		return fn(&unit{s: s, userID: userID, now: m.now})
	})
}

func newestFirst(rows []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(rows))
	for i, t := range rows {
		out[len(rows)-1-i] = t
	}
	return out
}

func filtered(rows []core.Transaction, f core.Filter) []core.Transaction {
	out := []core.Transaction{}
	for _, t := range rows {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// ListTransactions implements storage.LedgerStore.
func (m *Store) ListTransactions(_ context.Context, userID int64, f core.Filter, p core.PageRequest) ([]core.Transaction, int, error) {
	rows := newestFirst(filtered(m.snapshot().activeFor(userID), f))
	total := len(rows)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return rows[start:end], total, nil
}

// ExportRows implements storage.LedgerStore.
func (m *Store) ExportRows(_ context.Context, userID int64, f core.Filter) ([]core.Transaction, error) {
	return newestFirst(filtered(m.snapshot().activeFor(userID), f)), nil
}

func (m *Store) Totals(_ context.Context, userID int64, f core.Filter) (core.Totals, error) {
	return ledger.Totals(m.snapshot().activeFor(userID), f), nil
}

func (m *Store) LatestBalance(_ context.Context, userID int64, asOf core.Date) (core.Money, error) {
	return ledger.LatestBalance(m.snapshot().activeFor(userID), asOf), nil
}

func (m *Store) Summary(_ context.Context, userID int64, f core.Filter) (core.SummaryView, error) {
	rows := m.snapshot().activeFor(userID)
	return core.NewSummaryView(ledger.Totals(rows, f), ledger.LatestBalance(rows, core.Date{})), nil
}

func (m *Store) CategoryBreakdown(_ context.Context, userID int64, f core.Filter) ([]core.CategorySpending, error) {
	return ledger.Breakdown(m.snapshot().activeFor(userID), f), nil
}

func (m *Store) MonthlyTrend(_ context.Context, userID int64, since core.Date) ([]core.MonthTrend, error) {
	return ledger.Trend(m.snapshot().activeFor(userID), since), nil
}

// ListCategories implements storage.CategoryStore.
func (m *Store) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	out := []core.Category{}
	for _, c := range m.snapshot().categories {
		if visible(c, userID) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateCategory implements storage.CategoryStore.
func (m *Store) CreateCategory(ctx context.Context, userID int64, in core.CategoryInput) (core.Category, error) {
	var created core.Category
	err := m.write(ctx, func(s *state) error {
		for _, c := range s.categories {
			if c.Active && c.UserID != nil && *c.UserID == userID && c.Name == in.Name {
				return fmt.Errorf("%w: category %q already exists", core.ErrConflict, in.Name)
			}
		}
		owner := userID
		created = core.Category{
			ID: int64(len(s.categories) + 1), UserID: &owner,
			Name: in.Name, Description: in.Description, Color: in.Color, Icon: in.Icon,
			Active: true, CreatedAt: m.now().UTC(),
		}
		s.categories = append(s.categories, created)
		return nil
	})
	return created, err
}

// SoftDeleteCategory implements storage.CategoryStore.
func (m *Store) SoftDeleteCategory(ctx context.Context, userID, id int64) error {
	return m.write(ctx, func(s *state) error {
		if id < 1 || int(id) > len(s.categories) {
			return fmt.Errorf("%w: category %d", core.ErrNotFound, id)
		}
		c := &s.categories[id-1]
		if !c.Active || c.UserID == nil || *c.UserID != userID {
			return fmt.Errorf("%w: category %d", core.ErrNotFound, id)
		}
		c.Active = false
		return nil
	})
}

// CreateUser implements storage.UserStore.
func (m *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	err := m.write(ctx, func(s *state) error {
		for _, existing := range s.users {
			if existing.Username == u.Username || existing.Email == u.Email {
				return fmt.Errorf("%w: username or email already exists", core.ErrConflict)
			}
		}
		u.ID = int64(len(s.users) + 1)
		u.Active = true
		u.CreatedAt = m.now().UTC()
		s.users = append(s.users, u)
		return nil
	})
	if err != nil {
		return core.User{}, err
	}
	return u, nil
}

func (m *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	for _, u := range m.snapshot().users {
		if u.Active && u.Username == username {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("%w: user", core.ErrNotFound)
}

func (m *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	users := m.snapshot().users
	if id >= 1 && int(id) <= len(users) && users[id-1].Active {
		return users[id-1], nil
	}
	return core.User{}, fmt.Errorf("%w: user", core.ErrNotFound)
}

// unit is a UnitOfWork over a private copy of the state.
type unit struct {
	s      *state
	userID int64
	now    func() time.Time
}

func (u *unit) GetCategory(_ context.Context, id int64) (core.Category, error) {
	if id >= 1 && int(id) <= len(u.s.categories) {
		if c := u.s.categories[id-1]; visible(c, u.userID) {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("%w: category %d", core.ErrNotFound, id)
}

// own returns the user's transaction with id, active or not.
func (u *unit) own(id int64) (*core.Transaction, bool) {
	if id < 1 || int(id) > len(u.s.transactions) {
		return nil, false
	}
	t := &u.s.transactions[id-1]
	return t, t.UserID == u.userID
}

func (u *unit) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	created := u.now().UTC().Truncate(time.Microsecond)
	for _, existing := range u.s.transactions {
		if existing.UserID == u.userID && !created.After(existing.CreatedAt) {
			created = existing.CreatedAt.Add(time.Microsecond)
		}
	}
	t.ID = int64(len(u.s.transactions) + 1)
	t.UserID = u.userID
	t.Balance = core.Zero
	t.CreatedAt = created
	t.UpdatedAt = created
	t.Active = true
	u.s.transactions = append(u.s.transactions, t)
	return u.s.withCategory(t), nil
}

func (u *unit) GetActiveTransaction(_ context.Context, id int64) (core.Transaction, error) {
	t, ok := u.own(id)
	if !ok || !t.Active {
		return core.Transaction{}, fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
	}
	return u.s.withCategory(*t), nil
}

func (u *unit) UpdateTransactionFields(_ context.Context, t core.Transaction) (core.Transaction, error) {
	row, ok := u.own(t.ID)
	if !ok || !row.Active {
		return t, fmt.Errorf("%w: transaction %d", core.ErrNotFound, t.ID)
	}
	row.CategoryID = t.CategoryID
	row.Date = t.Date
	row.Description = t.Description
	row.Credited = t.Credited
	row.Debited = t.Debited
	row.Notes = t.Notes
	row.UpdatedAt = u.now().UTC()
	t.UpdatedAt = row.UpdatedAt
	return t, nil
}

func (u *unit) SoftDeleteTransaction(_ context.Context, id int64) error {
	row, ok := u.own(id)
	if !ok || !row.Active {
		return fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
	}
	row.Active = false
	row.UpdatedAt = u.now().UTC()
	return nil
}

func (u *unit) ActiveOrdered(_ context.Context) ([]core.Transaction, error) {
	return u.s.activeFor(u.userID), nil
}

func (u *unit) BalanceBefore(_ context.Context, key core.ChronoKey, excludeID int64) (core.Money, error) {
	var (
		best  core.Transaction
		found bool
	)
	for _, t := range u.s.transactions {
		if t.UserID != u.userID || !t.Active || t.ID == excludeID || !t.Key().Less(key) {
			continue
		}
		if !found || best.Key().Less(t.Key()) {
			best, found = t, true
		}
	}
	if !found {
		return core.Zero, nil
	}
	return best.Balance, nil
}

func (u *unit) SetBalance(_ context.Context, id int64, balance core.Money) error {
	row, ok := u.own(id)
	if !ok {
		return fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
	}
	if err := storable("set balance", balance); err != nil {
		return err
	}
	row.Balance = balance
	return nil
}

func (u *unit) ShiftBalancesAfter(_ context.Context, key core.ChronoKey, excludeID int64, delta core.Money) (int64, error) {
	var n int64
	for i := range u.s.transactions {
		t := &u.s.transactions[i]
		if t.UserID != u.userID || !t.Active || t.ID == excludeID || !key.Less(t.Key()) {
			continue
		}
		shifted := t.Balance.Add(delta)
		if err := storable("shift balances", shifted); err != nil {
			return 0, err
		}
		t.Balance = shifted
		n++
	}
	return n, nil
}

// storable rejects balances the SQLite backend could not hold, so both
// backends fail the same mutations.
func storable(op string, m core.Money) error {
	if _, err := m.Cents(); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrValidation, op, err)
	}
	return nil
}
