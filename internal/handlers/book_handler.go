package handlers

import (
	"net/http"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type BookHandler struct {
	service   *services.BookService
	validator *services.ValidationHelper
}

func NewBookHandler(service *services.BookService) *BookHandler {
	return &BookHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListBooks lists the catalog
// @Summary List books
// @Description List all books, optionally filtered by a title/author search
// @Tags Books
// @Produce json
// @Param q query string false "Title or author contains"
// @Success 200 {array} models.Book
// @Failure 500 {object} services.ErrorResponse
// @Router /books [get]
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// GetBook returns one book
// @Summary Get book
// @Tags Books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} models.Book
// @Failure 404 {object} services.ErrorResponse
// @Router /books/{id} [get]
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	book, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// CreateBook adds a book to the catalog
// @Summary Create book
// @Tags Books
// @Accept json
// @Produce json
// @Param request body models.BookRequest true "Book"
// @Success 201 {object} models.Book
// @Failure 400 {object} services.ErrorResponse
// @Router /books [post]
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req models.BookRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	book, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// UpdateBook replaces a book's fields
// @Summary Update book
// @Tags Books
// @Accept json
// @Produce json
// @Param id path int true "Book ID"
// @Param request body models.BookRequest true "Book"
// @Success 200 {object} models.Book
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /books/{id} [put]
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.BookRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	book, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// DeleteBook removes a book with no copies on loan
// @Summary Delete book
// @Tags Books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /books/{id} [delete]
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
