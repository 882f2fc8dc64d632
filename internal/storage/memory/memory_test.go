package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendtracker/internal/core"
	"spendtracker/internal/ledger"
	"spendtracker/internal/storage"
)

func TestStore_UnitCommitsOrDiscards(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.CreateUser(ctx, core.User{Username: "ann", Email: "ann@example.com"})
	require.NoError(t, err)
	engine := ledger.NewEngine(ledger.PolicyIncremental)

	insert := func(in core.TransactionInput, fail error) error {
		return s.WithinUserTx(ctx, u.ID, func(uow storage.UnitOfWork) error {
			row, err := uow.InsertTransaction(ctx, in.Apply(core.Transaction{}))
			if err != nil {
				return err
			}
			if _, err := engine.ApplyInsert(ctx, uow, row); err != nil {
				return err
			}
			return fail
		})
	}
	in := core.TransactionInput{CategoryID: 1, Date: core.NewDate(2024, time.May, 1), Description: "pay", Credited: core.MustParseMoney("10")}

	require.NoError(t, insert(in, nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, insert(in, boom), boom)

	rows, total, err := s.ListTransactions(ctx, u.ID, core.Filter{}, core.PageRequest{}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "10.00", rows[0].Balance.String())
	assert.Equal(t, "Salary", rows[0].CategoryName)
}

func TestStore_CreatedAtMonotonicWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewWithClock(func() time.Time { return frozen })

	var created []time.Time
	for i := 0; i < 3; i++ {
		err := s.WithinUserTx(ctx, 1, func(uow storage.UnitOfWork) error {
			row, err := uow.InsertTransaction(ctx, core.Transaction{Date: core.NewDate(2024, time.January, 1)})
			created = append(created, row.CreatedAt)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, frozen, created[0])
	assert.Equal(t, frozen.Add(2*time.Microsecond), created[2])
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().WithinUserTx(ctx, 1, func(storage.UnitOfWork) error { return nil })
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.True(t, core.IsRetryable(err))
}

func TestStore_CategoriesAndUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	cats, err := s.ListCategories(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cats, len(DefaultCategories))

	c, err := s.CreateCategory(ctx, 1, core.CategoryInput{Name: "Pets"}.Normalize())
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, 1, core.CategoryInput{Name: "Pets"}.Normalize())
	assert.ErrorIs(t, err, core.ErrConflict)
	_, err = s.CreateCategory(ctx, 2, core.CategoryInput{Name: "Pets"}.Normalize())
	assert.NoError(t, err, "names are scoped per user")

	assert.ErrorIs(t, s.SoftDeleteCategory(ctx, 2, c.ID), core.ErrNotFound)
	assert.ErrorIs(t, s.SoftDeleteCategory(ctx, 1, 1), core.ErrNotFound, "global")
	require.NoError(t, s.SoftDeleteCategory(ctx, 1, c.ID))

	err = s.WithinUserTx(ctx, 1, func(uow storage.UnitOfWork) error {
		_, err := uow.GetCategory(ctx, c.ID)
		return err
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.CreateUser(ctx, core.User{Username: "x", Email: "x@example.com"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, core.User{Username: "y", Email: "x@example.com"})
	assert.ErrorIs(t, err, core.ErrConflict)
	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_UnitsSerializeAcrossUsersReadersDoNot(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"ann", "bob"} {
		_, err := s.CreateUser(ctx, core.User{Username: name, Email: name + "@example.com"})
		require.NoError(t, err)
	}

	entered, release := make(chan struct{}), make(chan struct{})
	held := make(chan error, 1)
	go func() {
		held <- s.WithinUserTx(ctx, 1, func(storage.UnitOfWork) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	_, err := s.Totals(ctx, 2, core.Filter{})
	require.NoError(t, err, "readers use the committed snapshot")

	other := make(chan error, 1)
	go func() {
		other <- s.WithinUserTx(ctx, 2, func(storage.UnitOfWork) error { return nil })
	}()
	select {
	case <-other:
		t.Fatal("a unit for another user committed while the first was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-held)
	require.NoError(t, <-other)
}
