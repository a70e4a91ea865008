package models

import (
	"time"
)

type TransactionStatus string

const (
	TransactionBorrowed TransactionStatus = "BORROWED"
	TransactionOverdue  TransactionStatus = "OVERDUE"
	TransactionReturned TransactionStatus = "RETURNED"

	// DefaultLoanPeriodDays applies when no loan period is configured
	DefaultLoanPeriodDays = 14
)

// Transaction is a single borrow of one book by one member
type Transaction struct {
	ID         int64             `json:"transactionId" db:"id"`
	BookID     int64             `json:"bookId" db:"book_id"`
	MemberID   int64             `json:"memberId" db:"member_id"`
	BorrowDate time.Time         `json:"borrowDate" db:"borrow_date"`
	DueDate    time.Time         `json:"dueDate" db:"due_date"`
	ReturnDate *time.Time        `json:"returnDate,omitempty" db:"return_date"`
	Status     TransactionStatus `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time         `json:"updatedAt" db:"updated_at"`
}

// IsOpen reports whether the book has not been returned yet
func (t Transaction) IsOpen() bool {
	return t.Status != TransactionReturned
}

// BorrowRequest is the payload for POST /transactions/borrow.
// BorrowDate is optional (YYYY-MM-DD) and defaults to today.
type BorrowRequest struct {
	BookID     int64  `json:"bookId" validate:"required,gt=0"`
	MemberID   int64  `json:"memberId" validate:"required,gt=0"`
	BorrowDate string `json:"borrowDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// DueDateFor returns the due date of a loan starting at borrow
func DueDateFor(borrow time.Time, loanDays int) time.Time {
	if loanDays <= 0 {
		loanDays = DefaultLoanPeriodDays
	}
	return borrow.AddDate(0, 0, loanDays)
}

// DeriveStatus is the one place where "overdue" is decided.
// RETURNED and OVERDUE are sticky; BORROWED becomes OVERDUE once now is past the due date.
func DeriveStatus(t Transaction, now time.Time) TransactionStatus {
	switch t.Status {
	case TransactionReturned, TransactionOverdue:
		return t.Status
	}
	if now.After(t.DueDate) {
		return TransactionOverdue
	}
	return TransactionBorrowed
}

// OverdueDays counts whole days elapsed past the due date. Returned loans count up to the
// return date.
func OverdueDays(t Transaction, now time.Time) int {
	end := now
	if t.ReturnDate != nil {
		end = *t.ReturnDate
	}
	if !end.After(t.DueDate) {
		return 0
	}
	return int(end.Sub(t.DueDate) / (24 * time.Hour))
}
