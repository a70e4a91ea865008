package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDueDateFor(t *testing.T) {
	borrow := time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC), DueDateFor(borrow, 14))
	assert.Equal(t, time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC), DueDateFor(borrow, 30))
	assert.Equal(t, DueDateFor(borrow, DefaultLoanPeriodDays), DueDateFor(borrow, 0))
}

func TestDeriveStatus(t *testing.T) {
	due := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)
	returned := due.Add(-time.Hour)

	tests := []struct {
		name string
		tx   Transaction
		now  time.Time
		want TransactionStatus
	}{
		{"before due", Transaction{Status: TransactionBorrowed, DueDate: due}, due.Add(-time.Minute), TransactionBorrowed},
		{"exactly due", Transaction{Status: TransactionBorrowed, DueDate: due}, due, TransactionBorrowed},
		{"past due", Transaction{Status: TransactionBorrowed, DueDate: due}, due.Add(time.Second), TransactionOverdue},
		{"overdue is sticky", Transaction{Status: TransactionOverdue, DueDate: due}, due.Add(-48 * time.Hour), TransactionOverdue},
		{"returned is final", Transaction{Status: TransactionReturned, DueDate: due, ReturnDate: &returned}, due.Add(240 * time.Hour), TransactionReturned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.tx, tt.now))
		})
	}
}

func TestOverdueDays(t *testing.T) {
	due := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)
	tx := Transaction{Status: TransactionOverdue, DueDate: due}

	assert.Equal(t, 0, OverdueDays(tx, due))
	assert.Equal(t, 0, OverdueDays(tx, due.Add(23*time.Hour)))
	assert.Equal(t, 1, OverdueDays(tx, due.Add(24*time.Hour)))
	assert.Equal(t, 5, OverdueDays(tx, due.Add(5*24*time.Hour+time.Hour)))
	assert.Equal(t, 0, OverdueDays(tx, due.Add(-72*time.Hour)))

	returned := due.Add(3 * 24 * time.Hour)
	tx.ReturnDate = &returned
	assert.Equal(t, 3, OverdueDays(tx, due.Add(30*24*time.Hour)), "counts up to the return date")
}
