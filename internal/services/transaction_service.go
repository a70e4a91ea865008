package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/models"
)

const transactionColumns = `id, book_id, member_id, borrow_date, due_date, return_date, status, created_at, updated_at`

type TransactionService struct {
	db       *sql.DB
	fines    *FineService
	loanDays int
	audit    *audit.Logger
	now      func() time.Time
}

func NewTransactionService(db *sql.DB, fines *FineService, loanDays int, auditLogger *audit.Logger) *TransactionService {
	if loanDays <= 0 {
		loanDays = models.DefaultLoanPeriodDays
	}
	return &TransactionService{
		db:       db,
		fines:    fines,
		loanDays: loanDays,
		audit:    auditLogger,
		now:      utcNow,
	}
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t        models.Transaction
		returned sql.NullTime
	)
	err := row.Scan(&t.ID, &t.BookID, &t.MemberID, &t.BorrowDate, &t.DueDate, &returned, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.BorrowDate = t.BorrowDate.UTC()
	t.DueDate = t.DueDate.UTC()
	t.ReturnDate = nullTimePtr(returned)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func queryTransactions(ctx context.Context, q queryer, query string, args ...any) ([]models.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func getTransaction(ctx context.Context, q queryer, id int64) (*models.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return t, err
}

// withDerivedStatus reports each loan's status as of now without writing it back
func (s *TransactionService) withDerivedStatus(txs []models.Transaction) []models.Transaction {
	now := s.now()
	for i := range txs {
		txs[i].Status = models.DeriveStatus(txs[i], now)
	}
	return txs
}

func (s *TransactionService) List(ctx context.Context) ([]models.Transaction, error) {
	txs, err := queryTransactions(ctx, s.db, `SELECT `+transactionColumns+` FROM transactions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return s.withDerivedStatus(txs), nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	t, err := getTransaction(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	t.Status = models.DeriveStatus(*t, s.now())
	return t, nil
}

func (s *TransactionService) ListByMember(ctx context.Context, memberID int64) ([]models.Transaction, error) {
	if _, err := getMember(ctx, s.db, memberID); err != nil {
		return nil, err
	}
	txs, err := queryTransactions(ctx, s.db, `SELECT `+transactionColumns+` FROM transactions WHERE member_id = $1 ORDER BY id`, memberID)
	if err != nil {
		return nil, err
	}
	return s.withDerivedStatus(txs), nil
}

func (s *TransactionService) ListByBook(ctx context.Context, bookID int64) ([]models.Transaction, error) {
	if _, err := getBook(ctx, s.db, bookID); err != nil {
		return nil, err
	}
	txs, err := queryTransactions(ctx, s.db, `SELECT `+transactionColumns+` FROM transactions WHERE book_id = $1 ORDER BY id`, bookID)
	if err != nil {
		return nil, err
	}
	return s.withDerivedStatus(txs), nil
}

// ListOverdue returns open loans that are overdue as of now, whether or not they were marked yet
func (s *TransactionService) ListOverdue(ctx context.Context) ([]models.Transaction, error) {
	open, err := queryTransactions(ctx, s.db, `SELECT `+transactionColumns+` FROM transactions WHERE status <> $1 ORDER BY due_date, id`,
		models.TransactionReturned)
	if err != nil {
		return nil, err
	}

	overdue := []models.Transaction{}
	for _, t := range s.withDerivedStatus(open) {
		if t.Status == models.TransactionOverdue {
			overdue = append(overdue, t)
		}
	}
	return overdue, nil
}

// Borrow lends one copy of a book to an active member. The copy counter is decremented with a
// conditional update so two borrowers can never take the last copy twice.
func (s *TransactionService) Borrow(ctx context.Context, req models.BorrowRequest) (*models.Transaction, error) {
	now := s.now()
	borrowDate := now
	if req.BorrowDate != "" {
		d, err := time.ParseInLocation("2006-01-02", req.BorrowDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("borrowDate: %w", err)
		}
		borrowDate = d
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	member, err := getMember(ctx, tx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if member.MembershipStatus != models.MembershipActive {
		return nil, fmt.Errorf("member %d: %w", member.ID, ErrMemberInactive)
	}

	if _, err := getBook(ctx, tx, req.BookID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies - 1, updated_at = $1
		WHERE id = $2 AND available_copies > 0`, now, req.BookID)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res, fmt.Errorf("book %d: %w", req.BookID, ErrNoCopiesAvailable)); err != nil {
		return nil, err
	}

	t := &models.Transaction{
		BookID:     req.BookID,
		MemberID:   req.MemberID,
		BorrowDate: borrowDate,
		DueDate:    models.DueDateFor(borrowDate, s.loanDays),
		Status:     models.TransactionBorrowed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.Status = models.DeriveStatus(*t, now)

	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions (book_id, member_id, borrow_date, due_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		t.BookID, t.MemberID, t.BorrowDate, t.DueDate, t.Status, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.LogCreate("transaction", t.ID, t.MemberID, "", map[string]string{
		"book_id":  fmt.Sprint(t.BookID),
		"due_date": t.DueDate.Format("2006-01-02"),
	})
	return t, nil
}

// ReturnResult is a closed loan plus the late fee assessed on it, if any
type ReturnResult struct {
	Transaction *models.Transaction `json:"transaction"`
	LateFee     *models.Fine        `json:"lateFee,omitempty"`
}

// Return closes a loan. When the book comes back late its LATE_RETURN fine is created or
// brought up to date in the same database transaction.
func (s *TransactionService) Return(ctx context.Context, id int64) (*ReturnResult, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := getTransaction(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == models.TransactionReturned {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrTransactionClosed)
	}
	previous := t.Status

	t.ReturnDate = &now
	outcome, fine, err := assessLateFee(ctx, tx, t, s.fines.Policy(), now)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE transactions SET status = $1, return_date = $2, updated_at = $3
		WHERE id = $4 AND status <> $1`, models.TransactionReturned, now, now, id)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res, fmt.Errorf("transaction %d: %w", id, ErrTransactionClosed)); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies + 1, updated_at = $1
		WHERE id = $2 AND available_copies < total_copies`, now, t.BookID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	t.Status = models.TransactionReturned
	t.UpdatedAt = now
	if outcome != lateUnchanged {
		s.fines.totals.invalidate(ctx)
	}
	s.audit.LogTransition("transaction", id, t.MemberID, string(previous), string(t.Status), "")

	result := &ReturnResult{Transaction: t}
	if fine != nil && fine.Status == models.FinePending {
		result.LateFee = fine
	}
	return result, nil
}

// UpdateOverdue marks every BORROWED loan past its due date as OVERDUE
func (s *TransactionService) UpdateOverdue(ctx context.Context) (int, error) {
	n, err := markOverdue(ctx, s.db, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit.LogOperation("MARK_OVERDUE", "transaction", 0, map[string]int{"marked": n})
	}
	return n, nil
}

// markOverdue persists the BORROWED -> OVERDUE edge for every loan DeriveStatus reports as overdue
func markOverdue(ctx context.Context, q queryer, now time.Time) (int, error) {
	borrowed, err := queryTransactions(ctx, q, `SELECT `+transactionColumns+` FROM transactions WHERE status = $1`,
		models.TransactionBorrowed)
	if err != nil {
		return 0, err
	}

	marked := 0
	for i := range borrowed {
		if models.DeriveStatus(borrowed[i], now) != models.TransactionOverdue {
			continue
		}
		res, err := q.ExecContext(ctx, `UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			models.TransactionOverdue, now, borrowed[i].ID, models.TransactionBorrowed)
		if err != nil {
			return marked, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			marked++
		}
	}
	if marked > 0 {
		log.Printf("[LEDGER] marked %d transactions overdue", marked)
	}
	return marked, nil
}

// setOverdue persists OVERDUE for a single loan when it is past due
func setOverdue(ctx context.Context, q queryer, t *models.Transaction, now time.Time) error {
	if t.Status != models.TransactionBorrowed || models.DeriveStatus(*t, now) != models.TransactionOverdue {
		return nil
	}
	if _, err := q.ExecContext(ctx, `UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		models.TransactionOverdue, now, t.ID, models.TransactionBorrowed); err != nil {
		return err
	}
	t.Status = models.TransactionOverdue
	t.UpdatedAt = now
	return nil
}
