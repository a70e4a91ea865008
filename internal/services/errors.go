package services

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrMemberInactive    = errors.New("member is not active")
	ErrNoCopiesAvailable = errors.New("no copies available")
	ErrTransactionClosed = errors.New("transaction already returned")
	ErrInvalidAmount     = errors.New("invalid fine amount")
	ErrInvalidCopies     = errors.New("invalid copy counts")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrNotOverdue        = errors.New("transaction is not overdue")
	ErrDuplicateFine     = errors.New("an active late return fine already exists")
	ErrFinePaid          = errors.New("paid fines cannot be deleted")
	ErrHasOpenLoans      = errors.New("has books on loan")
	ErrHasPendingFines   = errors.New("has pending fines")
	ErrHasPaidFines      = errors.New("has paid fines on record")
	ErrSweepInProgress   = errors.New("fine sweep already in progress")
)

// isUniqueViolation recognizes unique constraint failures from both supported drivers
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
