package handlers

import (
	"net/http"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type TransactionHandler struct {
	service   *services.TransactionService
	validator *services.ValidationHelper
}

func NewTransactionHandler(service *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListTransactions lists all loans with their status as of now
// @Summary List transactions
// @Tags Transactions
// @Produce json
// @Success 200 {array} models.Transaction
// @Router /transactions [get]
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// GetTransaction returns one loan
// @Summary Get transaction
// @Tags Transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ListMemberTransactions lists one member's loans
// @Summary List member transactions
// @Tags Transactions
// @Produce json
// @Param id path int true "Member ID"
// @Success 200 {array} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/member/{id} [get]
func (h *TransactionHandler) ListMemberTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.service.ListByMember(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ListBookTransactions lists one book's loans
// @Summary List book transactions
// @Tags Transactions
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {array} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/book/{id} [get]
func (h *TransactionHandler) ListBookTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.service.ListByBook(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ListOverdue lists open loans past their due date
// @Summary List overdue transactions
// @Tags Transactions
// @Produce json
// @Success 200 {array} models.Transaction
// @Router /transactions/overdue [get]
func (h *TransactionHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ListOverdue(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Borrow lends a book to a member
// @Summary Borrow a book
// @Description Creates a loan due after the configured loan period. borrowDate (YYYY-MM-DD) defaults to now.
// @Tags Transactions
// @Accept json
// @Produce json
// @Param request body models.BorrowRequest true "Loan"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/borrow [post]
// @Router /transactions [post]
func (h *TransactionHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req models.BorrowRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	tx, err := h.service.Borrow(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// Return closes a loan
// @Summary Return a book
// @Description Closes the loan and assesses the late-return fine when the book is late
// @Tags Transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} services.ReturnResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{id}/return [put]
func (h *TransactionHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.service.Return(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateOverdue persists OVERDUE on every loan past due
// @Summary Mark overdue transactions
// @Tags Transactions
// @Produce json
// @Success 200 {object} object{marked=int}
// @Router /transactions/update-overdue [post]
func (h *TransactionHandler) UpdateOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UpdateOverdue(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
