package services

import (
	"context"
	"testing"

	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookService_CreateAndSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.books.Create(ctx, models.BookRequest{
		Title: "Dune", Author: "Frank Herbert", YearPublished: 1965, TotalCopies: 1, AvailableCopies: 2,
	})
	assert.ErrorIs(t, err, ErrInvalidCopies)

	for _, req := range []models.BookRequest{
		{Title: "Dune", Author: "Frank Herbert", YearPublished: 1965, TotalCopies: 3, AvailableCopies: 3},
		{Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", YearPublished: 1969, TotalCopies: 1, AvailableCopies: 1},
		{Title: "Children of Dune", Author: "Frank Herbert", YearPublished: 1976, TotalCopies: 2, AvailableCopies: 1},
	} {
		_, err := env.books.Create(ctx, req)
		require.NoError(t, err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"dune", 2},
		{"LE GUIN", 1},
		{"  herbert ", 2},
		{"tolkien", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			books, err := env.books.List(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, books, tt.want)
		})
	}
}

func TestBookService_UpdateRespectsLoans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.addBook(t, "Dune", 2)
	env.borrow(t, env.addMember(t, "ada@example.com"), book)

	req := models.BookRequest{Title: "Dune", Author: "Frank Herbert", YearPublished: 1965, TotalCopies: 2, AvailableCopies: 2}
	_, err := env.books.Update(ctx, book.ID, req)
	assert.ErrorIs(t, err, ErrInvalidCopies)

	req.TotalCopies = 4
	req.AvailableCopies = 3
	updated, err := env.books.Update(ctx, book.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)

	_, err = env.books.Update(ctx, 999, req)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.addBook(t, "Dune", 1)
	tx := env.borrow(t, env.addMember(t, "ada@example.com"), book)

	assert.ErrorIs(t, env.books.Delete(ctx, book.ID), ErrHasOpenLoans)

	_, err := env.transactions.Return(ctx, tx.ID)
	require.NoError(t, err)
	require.NoError(t, env.books.Delete(ctx, book.ID))

	_, err = env.books.Get(ctx, book.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.transactions.Get(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookService_DeleteKeepsFineRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.addBook(t, "Dune", 1)
	tx := env.borrow(t, env.addMember(t, "ada@example.com"), book)

	damaged, err := env.fines.Create(ctx, tx.ID, models.FineDamagedItem, amount("20"))
	require.NoError(t, err)
	_, err = env.fines.Pay(ctx, damaged.ID)
	require.NoError(t, err)
	lost, err := env.fines.Create(ctx, tx.ID, models.FineLostItem, amount("7"))
	require.NoError(t, err)

	res, err := env.transactions.Return(ctx, tx.ID)
	require.NoError(t, err)
	require.Nil(t, res.LateFee)

	assert.ErrorIs(t, env.books.Delete(ctx, book.ID), ErrHasPendingFines)

	_, err = env.fines.Cancel(ctx, lost.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, env.books.Delete(ctx, book.ID), ErrHasPaidFines)

	_, err = env.books.Get(ctx, book.ID)
	require.NoError(t, err)
	collected, err := env.fines.CollectedTotal(ctx, env.clock.t.Add(-day), env.clock.t.Add(day))
	require.NoError(t, err)
	assert.Equal(t, "20.00", collected.Total.StringFixed(2))
	_, err = env.fines.Get(ctx, damaged.ID)
	require.NoError(t, err)
}
