package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/notify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Channel() string {
	return "email"
}

func (m *MockSender) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

const day = 24 * time.Hour

var testFineConfig = config.FineConfig{
	DailyRate:      decimal.RequireFromString("0.50"),
	MaxLateAmount:  decimal.Zero,
	TotalsCacheTTL: 5 * time.Minute,
}

// testEnv wires every service against a migrated temp-dir SQLite database and a shared fake clock
type testEnv struct {
	db            *sql.DB
	clock         *fakeClock
	sender        *MockSender
	members       *MemberService
	books         *BookService
	fines         *FineService
	transactions  *TransactionService
	notifications *NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, database.DriverSQLite))

	clock := &fakeClock{t: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	sender := &MockSender{}

	env := &testEnv{
		db:     db,
		clock:  clock,
		sender: sender,
	}
	env.members = NewMemberService(db, nil)
	env.books = NewBookService(db, nil)
	env.fines = NewFineService(db, nil, testFineConfig, nil)
	env.transactions = NewTransactionService(db, env.fines, 14, nil)
	env.notifications = NewNotificationService(db, nil, sender, 3, nil)

	env.members.now = clock.Now
	env.books.now = clock.Now
	env.fines.now = clock.Now
	env.transactions.now = clock.Now
	env.notifications.now = clock.Now
	return env
}

func (e *testEnv) addMember(t *testing.T, email string) *models.Member {
	t.Helper()
	m, err := e.members.Create(context.Background(), models.MemberRequest{
		Name:  "Member " + email,
		Email: email,
		Phone: "5551234567",
	})
	require.NoError(t, err)
	return m
}

func (e *testEnv) addBook(t *testing.T, title string, copies int) *models.Book {
	t.Helper()
	b, err := e.books.Create(context.Background(), models.BookRequest{
		Title:           title,
		Author:          "Frank Herbert",
		YearPublished:   1965,
		TotalCopies:     copies,
		AvailableCopies: copies,
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) borrow(t *testing.T, member *models.Member, book *models.Book) *models.Transaction {
	t.Helper()
	tx, err := e.transactions.Borrow(context.Background(), models.BorrowRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)
	return tx
}

// overdueLoan borrows a book and moves the clock the given number of days past its due date
func (e *testEnv) overdueLoan(t *testing.T, email string, days int) *models.Transaction {
	t.Helper()
	tx := e.borrow(t, e.addMember(t, email), e.addBook(t, "Dune "+email, 1))
	e.clock.t = tx.DueDate.Add(time.Duration(days) * day)
	return tx
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
