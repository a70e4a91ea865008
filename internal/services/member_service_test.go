package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	m, err := env.members.Create(ctx, models.MemberRequest{
		Name:  "  Ada Lovelace ",
		Email: " Ada@Example.COM",
		Phone: "5551234567",
	})
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Equal(t, "Ada Lovelace", m.Name)
	assert.Equal(t, "ada@example.com", m.Email)
	assert.Equal(t, models.MembershipActive, m.MembershipStatus)

	_, err = env.members.Create(ctx, models.MemberRequest{Name: "Imposter", Email: "ADA@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	inactive, err := env.members.Create(ctx, models.MemberRequest{
		Name:             "Grace Hopper",
		Email:            "grace@example.com",
		MembershipStatus: models.MembershipInactive,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MembershipInactive, inactive.MembershipStatus)

	members, err := env.members.List(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestMemberService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.addMember(t, "ada@example.com")
	env.addMember(t, "grace@example.com")

	updated, err := env.members.Update(ctx, ada.ID, models.MemberRequest{
		Name:    "Ada King",
		Email:   "ada.king@example.com",
		Address: "12 St James's Square",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", updated.Name)
	assert.Equal(t, "ada.king@example.com", updated.Email)
	assert.Equal(t, models.MembershipActive, updated.MembershipStatus, "empty status keeps the current one")

	_, err = env.members.Update(ctx, ada.ID, models.MemberRequest{Name: "Ada", Email: "grace@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = env.members.Update(ctx, 999, models.MemberRequest{Name: "Nobody", Email: "nobody@example.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemberService_SetStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.addMember(t, "ada@example.com")
	book := env.addBook(t, "Dune", 1)

	m, err := env.members.SetStatus(ctx, ada.ID, models.MembershipInactive)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipInactive, m.MembershipStatus)

	_, err = env.transactions.Borrow(ctx, models.BorrowRequest{BookID: book.ID, MemberID: ada.ID})
	assert.ErrorIs(t, err, ErrMemberInactive)

	stored, err := env.books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableCopies)

	m, err = env.members.SetStatus(ctx, ada.ID, models.MembershipActive)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, m.MembershipStatus)
	env.borrow(t, m, book)

	_, err = env.members.SetStatus(ctx, ada.ID, "SUSPENDED")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = env.members.SetStatus(ctx, 999, models.MembershipActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemberService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.addMember(t, "ada@example.com")
	tx := env.borrow(t, ada, env.addBook(t, "Dune", 1))

	assert.ErrorIs(t, env.members.Delete(ctx, ada.ID), ErrHasOpenLoans)

	env.clock.t = tx.DueDate.Add(2 * day)
	res, err := env.transactions.Return(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, res.LateFee)

	assert.ErrorIs(t, env.members.Delete(ctx, ada.ID), ErrHasPendingFines)

	_, err = env.fines.Pay(ctx, res.LateFee.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, env.members.Delete(ctx, ada.ID), ErrHasPaidFines)

	collected, err := env.fines.CollectedTotal(ctx, tx.BorrowDate, env.clock.t.Add(day))
	require.NoError(t, err)
	assert.Equal(t, "1.00", collected.Total.StringFixed(2))

	// once the payment is reversed and written off only cancelled history remains
	_, err = env.fines.Reverse(ctx, res.LateFee.ID)
	require.NoError(t, err)
	_, err = env.fines.Cancel(ctx, res.LateFee.ID)
	require.NoError(t, err)
	require.NoError(t, env.members.Delete(ctx, ada.ID))

	_, err = env.members.Get(ctx, ada.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	txs, err := env.transactions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
	fines, err := env.fines.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, fines)

	assert.ErrorIs(t, env.members.Delete(ctx, ada.ID), ErrNotFound)
}

func TestMemberService_CardPNG(t *testing.T) {
	env := newTestEnv(t)
	ada := env.addMember(t, "ada@example.com")

	img, err := env.members.CardPNG(context.Background(), ada.ID, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG\r\n\x1a\n")))

	_, err = env.members.CardPNG(context.Background(), 999, 256)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseMembershipStatus(t *testing.T) {
	status, err := ParseMembershipStatus("inactive")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipInactive, status)

	status, err = ParseMembershipStatus("ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, status)

	_, err = ParseMembershipStatus("banned")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
