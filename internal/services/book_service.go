package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/models"
)

const bookColumns = `id, title, author, genre, isbn, year_published, total_copies, available_copies, created_at, updated_at`

type BookService struct {
	db    *sql.DB
	audit *audit.Logger
	now   func() time.Time
}

func NewBookService(db *sql.DB, auditLogger *audit.Logger) *BookService {
	return &BookService{
		db:    db,
		audit: auditLogger,
		now:   utcNow,
	}
}

func scanBook(row rowScanner) (*models.Book, error) {
	var b models.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.ISBN, &b.YearPublished,
		&b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

// List returns the catalog ordered by id. A non-empty query matches title or author, case-insensitively.
func (s *BookService) List(ctx context.Context, query string) ([]models.Book, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + strings.ToLower(query) + "%"
		rows, err = s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books
			WHERE LOWER(title) LIKE $1 OR LOWER(author) LIKE $1
			ORDER BY id`, pattern)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []models.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

func (s *BookService) Get(ctx context.Context, id int64) (*models.Book, error) {
	return getBook(ctx, s.db, id)
}

func getBook(ctx context.Context, q queryer, id int64) (*models.Book, error) {
	b, err := scanBook(q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	return b, err
}

func (s *BookService) Create(ctx context.Context, req models.BookRequest) (*models.Book, error) {
	if req.AvailableCopies > req.TotalCopies {
		return nil, ErrInvalidCopies
	}

	now := s.now()
	b := &models.Book{
		Title:           strings.TrimSpace(req.Title),
		Author:          strings.TrimSpace(req.Author),
		Genre:           strings.TrimSpace(req.Genre),
		ISBN:            req.ISBN,
		YearPublished:   req.YearPublished,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.AvailableCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO books (title, author, genre, isbn, year_published, total_copies, available_copies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		b.Title, b.Author, b.Genre, b.ISBN, b.YearPublished, b.TotalCopies, b.AvailableCopies, b.CreatedAt, b.UpdatedAt).Scan(&b.ID)
	if err != nil {
		return nil, err
	}

	s.audit.LogCreate("book", b.ID, 0, "", map[string]string{"title": b.Title})
	return b, nil
}

// Update replaces the book's fields. Copies currently on loan must still fit: availableCopies
// may not exceed totalCopies minus the open loans of the book.
func (s *BookService) Update(ctx context.Context, id int64, req models.BookRequest) (*models.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := getBook(ctx, tx, id); err != nil {
		return nil, err
	}

	onLoan, err := countRows(ctx, tx, `SELECT COUNT(*) FROM transactions WHERE book_id = $1 AND status <> $2`,
		id, models.TransactionReturned)
	if err != nil {
		return nil, err
	}
	if req.AvailableCopies > req.TotalCopies-onLoan {
		return nil, fmt.Errorf("book %d has %d copies on loan: %w", id, onLoan, ErrInvalidCopies)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE books
		SET title = $1, author = $2, genre = $3, isbn = $4, year_published = $5,
			total_copies = $6, available_copies = $7, updated_at = $8
		WHERE id = $9`,
		strings.TrimSpace(req.Title), strings.TrimSpace(req.Author), strings.TrimSpace(req.Genre), req.ISBN,
		req.YearPublished, req.TotalCopies, req.AvailableCopies, s.now(), id)
	if err != nil {
		return nil, err
	}

	b, err := getBook(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return b, tx.Commit()
}

// Delete removes a book and its loan history. Books with copies on loan, or whose loans carry
// pending or paid fines, are kept.
func (s *BookService) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := getBook(ctx, tx, id); err != nil {
		return err
	}

	open, err := countRows(ctx, tx, `SELECT COUNT(*) FROM transactions WHERE book_id = $1 AND status <> $2`,
		id, models.TransactionReturned)
	if err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("book %d: %w", id, ErrHasOpenLoans)
	}
	if err := checkFineHolds(ctx, tx, "t.book_id = $1", id); err != nil {
		return fmt.Errorf("book %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit.LogOperation("DELETE", "book", id, nil)
	return nil
}
