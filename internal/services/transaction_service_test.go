package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionService_Borrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.addMember(t, "ada@example.com")
	book := env.addBook(t, "Dune", 2)

	tx := env.borrow(t, ada, book)
	assert.Equal(t, models.TransactionBorrowed, tx.Status)
	assert.True(t, tx.BorrowDate.Equal(env.clock.t))
	assert.True(t, tx.DueDate.Equal(env.clock.t.AddDate(0, 0, 14)))
	assert.Nil(t, tx.ReturnDate)

	stored, err := env.books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableCopies)

	t.Run("missing member or book", func(t *testing.T) {
		_, err := env.transactions.Borrow(ctx, models.BorrowRequest{BookID: book.ID, MemberID: 999})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = env.transactions.Borrow(ctx, models.BorrowRequest{BookID: 999, MemberID: ada.ID})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("last copy", func(t *testing.T) {
		env.borrow(t, ada, book)
		_, err := env.transactions.Borrow(ctx, models.BorrowRequest{BookID: book.ID, MemberID: ada.ID})
		assert.ErrorIs(t, err, ErrNoCopiesAvailable)

		stored, err := env.books.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.AvailableCopies)
	})

	t.Run("backdated loan is already overdue", func(t *testing.T) {
		other := env.addBook(t, "Emma", 1)
		tx, err := env.transactions.Borrow(ctx, models.BorrowRequest{BookID: other.ID, MemberID: ada.ID, BorrowDate: "2024-12-01"})
		require.NoError(t, err)
		assert.Equal(t, "2024-12-15", tx.DueDate.Format("2006-01-02"))
		assert.Equal(t, models.TransactionOverdue, tx.Status)
	})
}

func TestTransactionService_ConcurrentBorrowOfLastCopy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.addBook(t, "Dune", 1)

	members := make([]*models.Member, 5)
	for i := range members {
		members[i] = env.addMember(t, string(rune('a'+i))+"@example.com")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		lost int
	)
	for _, m := range members {
		wg.Add(1)
		go func(m *models.Member) {
			defer wg.Done()
			_, err := env.transactions.Borrow(ctx, models.BorrowRequest{BookID: book.ID, MemberID: m.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case assert.ErrorIs(t, err, ErrNoCopiesAvailable):
				lost++
			}
		}(m)
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, 4, lost)

	stored, err := env.books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableCopies)
}

func TestTransactionService_Return(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.addBook(t, "Dune", 1)
	tx := env.borrow(t, env.addMember(t, "ada@example.com"), book)

	env.clock.Advance(3 * day)
	res, err := env.transactions.Return(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionReturned, res.Transaction.Status)
	require.NotNil(t, res.Transaction.ReturnDate)
	assert.True(t, res.Transaction.ReturnDate.Equal(env.clock.t))
	assert.Nil(t, res.LateFee)

	stored, err := env.books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableCopies)

	_, err = env.transactions.Return(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrTransactionClosed)

	stored, err = env.books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableCopies, "a second return must not add a copy")

	_, err = env.transactions.Return(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionService_LateReturn(t *testing.T) {
	t.Run("creates the late fee", func(t *testing.T) {
		env := newTestEnv(t)
		tx := env.overdueLoan(t, "ada@example.com", 4)

		res, err := env.transactions.Return(context.Background(), tx.ID)
		require.NoError(t, err)
		require.NotNil(t, res.LateFee)
		assert.Equal(t, "2.00", res.LateFee.Amount.StringFixed(2))
		assert.Equal(t, models.FinePending, res.LateFee.Status)
	})

	t.Run("reprices the swept fee", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		tx := env.overdueLoan(t, "ada@example.com", 2)

		_, err := env.fines.UpdateFines(ctx)
		require.NoError(t, err)

		env.clock.Advance(2 * day)
		res, err := env.transactions.Return(ctx, tx.ID)
		require.NoError(t, err)
		require.NotNil(t, res.LateFee)
		assert.Equal(t, "2.00", res.LateFee.Amount.StringFixed(2))

		fines, err := env.fines.List(ctx)
		require.NoError(t, err)
		require.Len(t, fines, 1)
		assert.Equal(t, "2.00", fines[0].Amount.StringFixed(2))

		// returned loans are not swept again
		env.clock.Advance(5 * day)
		result, err := env.fines.UpdateFines(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Scanned)
	})

	t.Run("leaves a paid fee alone", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		tx := env.overdueLoan(t, "ada@example.com", 2)

		_, err := env.fines.UpdateFines(ctx)
		require.NoError(t, err)
		fines, err := env.fines.List(ctx)
		require.NoError(t, err)
		require.Len(t, fines, 1)
		_, err = env.fines.Pay(ctx, fines[0].ID)
		require.NoError(t, err)

		env.clock.Advance(2 * day)
		res, err := env.transactions.Return(ctx, tx.ID)
		require.NoError(t, err)
		assert.Nil(t, res.LateFee)

		fines, err = env.fines.List(ctx)
		require.NoError(t, err)
		require.Len(t, fines, 1)
		assert.Equal(t, models.FinePaid, fines[0].Status)
		assert.Equal(t, "1.00", fines[0].Amount.StringFixed(2))
	})
}

func TestTransactionService_DerivedStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.addMember(t, "ada@example.com")
	book := env.addBook(t, "Dune", 2)
	late := env.borrow(t, ada, book)
	env.clock.Advance(10 * day)
	onTime := env.borrow(t, ada, book)

	env.clock.t = late.DueDate.Add(time.Hour)

	txs, err := env.transactions.List(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionOverdue, txs[0].Status)
	assert.Equal(t, models.TransactionBorrowed, txs[1].Status)

	stored, err := getTransaction(ctx, env.db, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionBorrowed, stored.Status, "reads do not write the derived status")

	overdue, err := env.transactions.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	n, err := env.transactions.UpdateOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = env.transactions.UpdateOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := env.transactions.Get(ctx, onTime.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionBorrowed, got.Status)

	byMember, err := env.transactions.ListByMember(ctx, ada.ID)
	require.NoError(t, err)
	assert.Len(t, byMember, 2)
	byBook, err := env.transactions.ListByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Len(t, byBook, 2)

	_, err = env.transactions.ListByMember(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.transactions.ListByBook(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
