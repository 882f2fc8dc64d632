package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"spendtracker/internal/core"
)

const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// DSN builds the modernc connection string for dbPath. txlock is "deferred"
// or "immediate" and applies to every transaction begun on the pool.
func DSN(dbPath, txlock string) string {
	return dbPath + "?" + pragmas + "&_txlock=" + txlock
}

// SQLiteRepository implements Store. Reads run on a deferred pool so they
// never block writers; units of work run on a single-connection pool that
// begins with BEGIN IMMEDIATE, serializing writers across processes too.
type SQLiteRepository struct {
	db     *sql.DB
	writer *sql.DB
	now    func() time.Time
}

type Option func(*SQLiteRepository)

// WithClock replaces time.Now for created_at/updated_at assignment.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(DSN(dbPath, "immediate")); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath, "deferred"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	writer, err := sql.Open("sqlite", DSN(dbPath, "immediate"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		writer.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db, writer: writer, now: time.Now}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return errors.Join(r.writer.Close(), r.db.Close())
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return classify("ping", r.db.PingContext(ctx))
}

// classify wraps a driver error into the core taxonomy. Busy, locked and
// context errors are retryable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrUnavailable, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w: %w", op, core.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrInfrastructure, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// readTx runs fn in a deferred transaction so multi-query reads share one
// WAL snapshot.
func (r *SQLiteRepository) readTx(ctx context.Context, op string, fn func(q queryer) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return classify(op, tx.Commit())
}

// WithinUserTx implements LedgerStore.
func (r *SQLiteRepository) WithinUserTx(ctx context.Context, userID int64, fn func(UnitOfWork) error) error {
	tx, err := r.writer.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin unit", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteUnit{q: tx, userID: userID, now: r.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit unit", err)
	}
	return nil
}

const txSelect = `SELECT t.id, t.user_id, t.category_id, t.transaction_date, t.description,
	t.credited_cents, t.debited_cents, t.balance_cents, t.notes, t.created_at, t.updated_at, t.is_active,
	COALESCE(c.name, ''), COALESCE(c.color, ''), COALESCE(c.icon, '')
	FROM transactions t LEFT JOIN categories c ON c.id = t.category_id`

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                          core.Transaction
		date                       string
		credited, debited, balance int64
		created, updated, active   int64
	)
	err := s.Scan(&t.ID, &t.UserID, &t.CategoryID, &date, &t.Description,
		&credited, &debited, &balance, &t.Notes, &created, &updated, &active,
		&t.CategoryName, &t.CategoryColor, &t.CategoryIcon)
	if err != nil {
		return t, err
	}
	t.Date, err = core.ParseDate(date)
	if err != nil {
		return t, fmt.Errorf("transaction %d: stored date %q: %w", t.ID, date, core.ErrInfrastructure)
	}
	t.Credited = core.NewMoneyFromCents(credited)
	t.Debited = core.NewMoneyFromCents(debited)
	t.Balance = core.NewMoneyFromCents(balance)
	t.CreatedAt = time.UnixMicro(created).UTC()
	t.UpdatedAt = time.UnixMicro(updated).UTC()
	t.Active = active == 1
	return t, nil
}

func queryTransactions(ctx context.Context, q queryer, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, t)
	}
	return out, classify(op, rows.Err())
}

// filterClause renders the WHERE clause shared by list, export and
// aggregate queries.
func filterClause(userID int64, f core.Filter) (string, []any) {
	var b strings.Builder
	args := []any{userID}
	b.WriteString(" WHERE t.user_id = ? AND t.is_active = 1")
	if f.CategoryID != 0 {
		b.WriteString(" AND t.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.From.IsZero() {
		b.WriteString(" AND t.transaction_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		b.WriteString(" AND t.transaction_date <= ?")
		args = append(args, f.To.String())
	}
	return b.String(), args
}

const newestFirst = " ORDER BY t.transaction_date DESC, t.created_at DESC"

// ListTransactions implements LedgerStore.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64, f core.Filter, p core.PageRequest) ([]core.Transaction, int, error) {
	var (
		items []core.Transaction
		total int
	)
	where, args := filterClause(userID, f)
	err := r.readTx(ctx, "list transactions", func(q queryer) error {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions t"+where, args...).Scan(&total); err != nil {
			return classify("count transactions", err)
		}
		var err error
		items, err = queryTransactions(ctx, q, "list transactions",
			txSelect+where+newestFirst+" LIMIT ? OFFSET ?",
			append(args, p.Limit, p.Offset())...)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ExportRows implements LedgerStore.
func (r *SQLiteRepository) ExportRows(ctx context.Context, userID int64, f core.Filter) ([]core.Transaction, error) {
	where, args := filterClause(userID, f)
	return queryTransactions(ctx, r.db, "export transactions", txSelect+where+newestFirst, args...)
}

func totals(ctx context.Context, q queryer, userID int64, f core.Filter) (core.Totals, error) {
	where, args := filterClause(userID, f)
	var credited, debited int64
	var out core.Totals
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(t.credited_cents), 0), COALESCE(SUM(t.debited_cents), 0), COUNT(*) FROM transactions t"+where,
		args...).Scan(&credited, &debited, &out.Count)
	if err != nil {
		return out, classify("totals", err)
	}
	out.Credited = core.NewMoneyFromCents(credited)
	out.Debited = core.NewMoneyFromCents(debited)
	return out, nil
}

func latestBalance(ctx context.Context, q queryer, userID int64, asOf core.Date) (core.Money, error) {
	query := "SELECT balance_cents FROM transactions WHERE user_id = ? AND is_active = 1"
	args := []any{userID}
	if !asOf.IsZero() {
		query += " AND transaction_date <= ?"
		args = append(args, asOf.String())
	}
	query += " ORDER BY transaction_date DESC, created_at DESC LIMIT 1"

	var cents int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Zero, nil
	}
	if err != nil {
		return core.Zero, classify("latest balance", err)
	}
	return core.NewMoneyFromCents(cents), nil
}

// Totals implements LedgerStore.
func (r *SQLiteRepository) Totals(ctx context.Context, userID int64, f core.Filter) (core.Totals, error) {
	return totals(ctx, r.db, userID, f)
}

// LatestBalance implements LedgerStore.
func (r *SQLiteRepository) LatestBalance(ctx context.Context, userID int64, asOf core.Date) (core.Money, error) {
	return latestBalance(ctx, r.db, userID, asOf)
}

// Summary implements LedgerStore.
func (r *SQLiteRepository) Summary(ctx context.Context, userID int64, f core.Filter) (core.SummaryView, error) {
	var view core.SummaryView
	err := r.readTx(ctx, "summary", func(q queryer) error {
		t, err := totals(ctx, q, userID, f)
		if err != nil {
			return err
		}
		bal, err := latestBalance(ctx, q, userID, core.Date{})
		if err != nil {
			return err
		}
		view = core.NewSummaryView(t, bal)
		return nil
	})
	return view, err
}

// CategoryBreakdown implements LedgerStore. The category constraint of f is
// ignored.
func (r *SQLiteRepository) CategoryBreakdown(ctx context.Context, userID int64, f core.Filter) ([]core.CategorySpending, error) {
	where, args := filterClause(userID, f.DateRange())
	rows, err := r.db.QueryContext(ctx, `SELECT t.category_id, COALESCE(c.name, ''), COALESCE(c.color, ''),
		SUM(t.debited_cents) AS spent, SUM(t.credited_cents), COUNT(*)
		FROM transactions t LEFT JOIN categories c ON c.id = t.category_id`+where+`
		GROUP BY t.category_id
		ORDER BY spent DESC, 2 ASC, t.category_id ASC`, args...)
	if err != nil {
		return nil, classify("category breakdown", err)
	}
	defer rows.Close()

	out := []core.CategorySpending{}
	for rows.Next() {
		var (
			cs              core.CategorySpending
			spent, credited int64
		)
		if err := rows.Scan(&cs.CategoryID, &cs.Name, &cs.Color, &spent, &credited, &cs.TransactionCount); err != nil {
			return nil, classify("category breakdown", err)
		}
		cs.TotalSpent = core.NewMoneyFromCents(spent)
		cs.TotalCredited = core.NewMoneyFromCents(credited)
		out = append(out, cs)
	}
	return out, classify("category breakdown", rows.Err())
}

// MonthlyTrend implements LedgerStore.
func (r *SQLiteRepository) MonthlyTrend(ctx context.Context, userID int64, since core.Date) ([]core.MonthTrend, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT substr(transaction_date, 1, 7) AS month,
		SUM(credited_cents), SUM(debited_cents), COUNT(*)
		FROM transactions
		WHERE user_id = ? AND is_active = 1 AND transaction_date >= ?
		GROUP BY month
		ORDER BY month DESC`, userID, since.String())
	if err != nil {
		return nil, classify("monthly trend", err)
	}
	defer rows.Close()

	out := []core.MonthTrend{}
	for rows.Next() {
		var (
			mt              core.MonthTrend
			credited, spent int64
		)
		if err := rows.Scan(&mt.Month, &credited, &spent, &mt.TransactionCount); err != nil {
			return nil, classify("monthly trend", err)
		}
		mt.TotalCredited = core.NewMoneyFromCents(credited)
		mt.TotalSpent = core.NewMoneyFromCents(spent)
		mt.Net = mt.TotalCredited.Sub(mt.TotalSpent)
		out = append(out, mt)
	}
	return out, classify("monthly trend", rows.Err())
}

const categorySelect = `SELECT id, user_id, name, description, color, icon, is_active, created_at FROM categories`

func scanCategory(s rowScanner) (core.Category, error) {
	var (
		c       core.Category
		owner   sql.NullInt64
		active  int64
		created int64
	)
	if err := s.Scan(&c.ID, &owner, &c.Name, &c.Description, &c.Color, &c.Icon, &active, &created); err != nil {
		return c, err
	}
	if owner.Valid {
		id := owner.Int64
		c.UserID = &id
	}
	c.Active = active == 1
	c.CreatedAt = time.UnixMicro(created).UTC()
	return c, nil
}

// ListCategories implements CategoryStore.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		categorySelect+" WHERE is_active = 1 AND (user_id = ? OR user_id IS NULL) ORDER BY name, id", userID)
	if err != nil {
		return nil, classify("list categories", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, classify("list categories", err)
		}
		out = append(out, c)
	}
	return out, classify("list categories", rows.Err())
}

// CreateCategory implements CategoryStore.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, in core.CategoryInput) (core.Category, error) {
	now := r.now().UTC()
	res, err := r.writer.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, description, color, icon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, in.Name, in.Description, in.Color, in.Icon, now.UnixMicro(), now.UnixMicro())
	if isUniqueViolation(err) {
		return core.Category{}, fmt.Errorf("%w: category %q already exists", core.ErrConflict, in.Name)
	}
	if err != nil {
		return core.Category{}, classify("create category", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, classify("create category", err)
	}

	owner := userID
	return core.Category{
		ID:          id,
		UserID:      &owner,
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Icon:        in.Icon,
		Active:      true,
		CreatedAt:   time.UnixMicro(now.UnixMicro()).UTC(),
	}, nil
}

// SoftDeleteCategory implements CategoryStore.
func (r *SQLiteRepository) SoftDeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := r.writer.ExecContext(ctx,
		"UPDATE categories SET is_active = 0, updated_at = ? WHERE id = ? AND user_id = ? AND is_active = 1",
		r.now().UTC().UnixMicro(), id, userID)
	if err != nil {
		return classify("delete category", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify("delete category", err)
	} else if n == 0 {
		return fmt.Errorf("%w: category %d", core.ErrNotFound, id)
	}
	return nil
}

const userSelect = `SELECT id, username, email, password_hash, first_name, last_name, is_active, created_at FROM users`

func scanUser(s rowScanner) (core.User, error) {
	var (
		u       core.User
		active  int64
		created int64
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &active, &created); err != nil {
		return u, err
	}
	u.Active = active == 1
	u.CreatedAt = time.UnixMicro(created).UTC()
	return u, nil
}

// CreateUser implements UserStore.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	now := time.UnixMicro(r.now().UnixMicro()).UTC()
	res, err := r.writer.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, now.UnixMicro(), now.UnixMicro())
	if isUniqueViolation(err) {
		return core.User{}, fmt.Errorf("%w: username or email already exists", core.ErrConflict)
	}
	if err != nil {
		return core.User{}, classify("create user", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return core.User{}, classify("create user", err)
	}
	u.Active = true
	u.CreatedAt = now
	return u, nil
}

func (r *SQLiteRepository) getUser(ctx context.Context, where string, arg any) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE "+where+" AND is_active = 1", arg))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("%w: user", core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, classify("get user", err)
	}
	return u, nil
}

// GetUserByUsername implements UserStore.
func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.getUser(ctx, "username = ?", username)
}

// GetUser implements UserStore.
func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

// sqliteUnit is a UnitOfWork bound to one BEGIN IMMEDIATE transaction.
type sqliteUnit struct {
	q      queryer
	userID int64
	now    func() time.Time
}

func (u *sqliteUnit) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(u.q.QueryRowContext(ctx,
		categorySelect+" WHERE id = ? AND is_active = 1 AND (user_id = ? OR user_id IS NULL)", id, u.userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("%w: category %d", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Category{}, classify("get category", err)
	}
	return c, nil
}

// nextCreatedAt returns now in microseconds, bumped past the user's latest
// created_at when the clock has not advanced.
func (u *sqliteUnit) nextCreatedAt(ctx context.Context) (int64, error) {
	var last int64
	err := u.q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(created_at), 0) FROM transactions WHERE user_id = ?", u.userID).Scan(&last)
	if err != nil {
		return 0, classify("last created_at", err)
	}
	micros := u.now().UnixMicro()
	if micros <= last {
		micros = last + 1
	}
	return micros, nil
}

func (u *sqliteUnit) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	credited, debited, err := amountCents("insert transaction", t)
	if err != nil {
		return t, err
	}
	created, err := u.nextCreatedAt(ctx)
	if err != nil {
		return t, err
	}
	res, err := u.q.ExecContext(ctx,
		`INSERT INTO transactions (user_id, category_id, transaction_date, description,
			credited_cents, debited_cents, balance_cents, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		u.userID, t.CategoryID, t.Date.String(), t.Description,
		credited, debited, t.Notes, created, created)
	if isUniqueViolation(err) {
		return t, fmt.Errorf("insert transaction: %w", core.ErrKeyCollision)
	}
	if err != nil {
		return t, classify("insert transaction", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return t, classify("insert transaction", err)
	}

	t.UserID = u.userID
	t.Balance = core.Zero
	t.CreatedAt = time.UnixMicro(created).UTC()
	t.UpdatedAt = t.CreatedAt
	t.Active = true

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"user_id", t.UserID,
		"transaction_date", t.Date.String(),
		"credited_cents", credited,
		"debited_cents", debited)
	return t, nil
}

func (u *sqliteUnit) GetActiveTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := scanTransaction(u.q.QueryRowContext(ctx,
		txSelect+" WHERE t.id = ? AND t.user_id = ? AND t.is_active = 1", id, u.userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, classify("get transaction", err)
	}
	return t, nil
}

func (u *sqliteUnit) UpdateTransactionFields(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	credited, debited, err := amountCents("update transaction", t)
	if err != nil {
		return t, err
	}
	updated := u.now().UnixMicro()
	res, err := u.q.ExecContext(ctx,
		`UPDATE transactions SET category_id = ?, transaction_date = ?, description = ?,
			credited_cents = ?, debited_cents = ?, notes = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_active = 1`,
		t.CategoryID, t.Date.String(), t.Description, credited, debited, t.Notes, updated,
		t.ID, u.userID)
	if err != nil {
		return t, classify("update transaction", err)
	}
	if err := expectOne(res, "transaction", t.ID); err != nil {
		return t, err
	}
	t.UpdatedAt = time.UnixMicro(updated).UTC()
	return t, nil
}

func (u *sqliteUnit) SoftDeleteTransaction(ctx context.Context, id int64) error {
	res, err := u.q.ExecContext(ctx,
		"UPDATE transactions SET is_active = 0, updated_at = ? WHERE id = ? AND user_id = ? AND is_active = 1",
		u.now().UnixMicro(), id, u.userID)
	if err != nil {
		return classify("delete transaction", err)
	}
	return expectOne(res, "transaction", id)
}

func expectOne(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", core.ErrNotFound, what, id)
	}
	return nil
}

func (u *sqliteUnit) ActiveOrdered(ctx context.Context) ([]core.Transaction, error) {
	return queryTransactions(ctx, u.q, "active ledger",
		txSelect+" WHERE t.user_id = ? AND t.is_active = 1 ORDER BY t.transaction_date ASC, t.created_at ASC",
		u.userID)
}

func (u *sqliteUnit) BalanceBefore(ctx context.Context, key core.ChronoKey, excludeID int64) (core.Money, error) {
	var cents int64
	err := u.q.QueryRowContext(ctx,
		`SELECT balance_cents FROM transactions
		WHERE user_id = ? AND is_active = 1 AND id != ?
			AND (transaction_date, created_at) < (?, ?)
		ORDER BY transaction_date DESC, created_at DESC
		LIMIT 1`,
		u.userID, excludeID, key.Date.String(), key.CreatedAt.UnixMicro()).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Zero, nil
	}
	if err != nil {
		return core.Zero, classify("balance before", err)
	}
	return core.NewMoneyFromCents(cents), nil
}

func (u *sqliteUnit) SetBalance(ctx context.Context, id int64, balance core.Money) error {
	cents, err := centsOf("set balance", balance)
	if err != nil {
		return err
	}
	res, err := u.q.ExecContext(ctx,
		"UPDATE transactions SET balance_cents = ? WHERE id = ? AND user_id = ?",
		cents, id, u.userID)
	if err != nil {
		return classify("set balance", err)
	}
	return expectOne(res, "transaction", id)
}

func (u *sqliteUnit) ShiftBalancesAfter(ctx context.Context, key core.ChronoKey, excludeID int64, delta core.Money) (int64, error) {
	const after = `user_id = ? AND is_active = 1 AND id != ?
			AND (transaction_date, created_at) > (?, ?)`
	args := []any{u.userID, excludeID, key.Date.String(), key.CreatedAt.UnixMicro()}

	deltaCents, err := centsOf("shift balances", delta)
	if err != nil {
		return 0, err
	}

	// SQLite turns an overflowing integer sum into REAL, so the shifted
	// extremes are checked before the update.
	var hi, lo sql.NullInt64
	if err := u.q.QueryRowContext(ctx,
		"SELECT MAX(balance_cents), MIN(balance_cents) FROM transactions WHERE "+after, args...).
		Scan(&hi, &lo); err != nil {
		return 0, classify("shift balances", err)
	}
	if hi.Valid {
		for _, c := range []int64{hi.Int64, lo.Int64} {
			if _, err := centsOf("shift balances", core.NewMoneyFromCents(c).Add(delta)); err != nil {
				return 0, err
			}
		}
	}

	res, err := u.q.ExecContext(ctx,
		"UPDATE transactions SET balance_cents = balance_cents + ? WHERE "+after,
		append([]any{deltaCents}, args...)...)
	if err != nil {
		return 0, classify("shift balances", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("shift balances", err)
	}
	return n, nil
}

// centsOf converts m for storage. A value outside int64 cents is a
// validation failure of the mutation that produced it.
func centsOf(op string, m core.Money) (int64, error) {
	c, err := m.Cents()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", core.ErrValidation, op, err)
	}
	return c, nil
}

func amountCents(op string, t core.Transaction) (credited, debited int64, err error) {
	if credited, err = centsOf(op, t.Credited); err != nil {
		return 0, 0, err
	}
	if debited, err = centsOf(op, t.Debited); err != nil {
		return 0, 0, err
	}
	return credited, debited, nil
}
