package models

import "time"

// MinYearPublished is the earliest accepted publication year (printing press era)
const MinYearPublished = 1450

// Book is a catalog title with its copy counters
type Book struct {
	ID              int64     `json:"bookId" db:"id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	Genre           string    `json:"genre,omitempty" db:"genre"`
	ISBN            string    `json:"isbn,omitempty" db:"isbn"`
	YearPublished   int       `json:"yearPublished" db:"year_published"`
	TotalCopies     int       `json:"totalCopies" db:"total_copies"`
	AvailableCopies int       `json:"availableCopies" db:"available_copies"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// OnLoan is the number of copies currently lent out
func (b Book) OnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// BookRequest is the create/update payload for a book
type BookRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	Author          string `json:"author" validate:"required,max=255"`
	Genre           string `json:"genre,omitempty" validate:"max=80"`
	ISBN            string `json:"isbn,omitempty" validate:"omitempty,isbn"`
	YearPublished   int    `json:"yearPublished" validate:"required,gte=1450,notfuture_year"`
	TotalCopies     int    `json:"totalCopies" validate:"gte=0"`
	AvailableCopies int    `json:"availableCopies" validate:"gte=0,ltefield=TotalCopies"`
}
