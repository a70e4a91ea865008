package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type FineHandler struct {
	service *services.FineService
	now     func() time.Time
}

func NewFineHandler(service *services.FineService) *FineHandler {
	return &FineHandler{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ListFines lists every fine
// @Summary List fines
// @Tags Fines
// @Produce json
// @Success 200 {array} models.Fine
// @Router /fines [get]
func (h *FineHandler) ListFines(w http.ResponseWriter, r *http.Request) {
	fines, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fines)
}

// GetFine returns one fine
// @Summary Get fine
// @Tags Fines
// @Produce json
// @Param id path int true "Fine ID"
// @Success 200 {object} models.Fine
// @Failure 404 {object} services.ErrorResponse
// @Router /fines/{id} [get]
func (h *FineHandler) GetFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	fine, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fine)
}

// ListMemberFines lists one member's fines
// @Summary List member fines
// @Tags Fines
// @Produce json
// @Param id path int true "Member ID"
// @Success 200 {array} models.Fine
// @Failure 404 {object} services.ErrorResponse
// @Router /fines/member/{id} [get]
func (h *FineHandler) ListMemberFines(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	fines, err := h.service.ListByMember(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fines)
}

// ListPending lists PENDING fines with their total
// @Summary Pending fines
// @Tags Fines
// @Produce json
// @Success 200 {object} services.FineSummary
// @Router /fines/pending [get]
func (h *FineHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Pending(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// MemberPendingTotal sums one member's PENDING fines
// @Summary Member pending total
// @Tags Fines
// @Produce json
// @Param id path int true "Member ID"
// @Success 200 {object} models.FineTotal
// @Failure 404 {object} services.ErrorResponse
// @Router /fines/member/{id}/total [get]
func (h *FineHandler) MemberPendingTotal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	total, err := h.service.PendingTotal(r.Context(), &id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

// CollectedTotal sums PAID fines by payment date
// @Summary Collected total
// @Description Sum of PAID fines whose paidDate falls between from and to (inclusive days). Defaults to the current month.
// @Tags Fines
// @Produce json
// @Param from query string false "YYYY-MM-DD"
// @Param to query string false "YYYY-MM-DD"
// @Success 200 {object} models.FineTotal
// @Failure 400 {object} services.ErrorResponse
// @Router /fines/collected [get]
func (h *FineHandler) CollectedTotal(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			services.SendErrorResponse(w, "from must be YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		from = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			services.SendErrorResponse(w, "to must be YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		services.SendErrorResponse(w, "to must not be before from", http.StatusBadRequest, nil)
		return
	}

	total, err := h.service.CollectedTotal(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

// CreateFine opens a fine against a loan
// @Summary Create fine
// @Description LOST_ITEM and DAMAGED_ITEM need a positive amount. LATE_RETURN is priced from the overdue days and takes no amount.
// @Tags Fines
// @Produce json
// @Param transactionId path int true "Transaction ID"
// @Param fineType path string true "LATE_RETURN, LOST_ITEM or DAMAGED_ITEM"
// @Param amount query string false "Amount, e.g. 12.50"
// @Success 201 {object} models.Fine
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/{transactionId}/{fineType} [post]
func (h *FineHandler) CreateFine(w http.ResponseWriter, r *http.Request) {
	txID, ok := pathID(w, r, "transactionId")
	if !ok {
		return
	}
	fineType, ok := models.ParseFineType(chi.URLParam(r, "fineType"))
	if !ok {
		services.SendErrorResponse(w, "Invalid fine type", http.StatusBadRequest, nil)
		return
	}

	var amount *decimal.Decimal
	if raw := r.URL.Query().Get("amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
			return
		}
		amount = &d
	}

	fine, err := h.service.Create(r.Context(), txID, fineType, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fine)
}

// PayFine moves a PENDING fine to PAID
// @Summary Pay fine
// @Tags Fines
// @Produce json
// @Param id path int true "Fine ID"
// @Success 200 {object} models.Fine
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/{id}/pay [put]
func (h *FineHandler) PayFine(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Pay)
}

// CancelFine moves a PENDING fine to CANCELLED
// @Summary Cancel fine
// @Tags Fines
// @Produce json
// @Param id path int true "Fine ID"
// @Success 200 {object} models.Fine
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/{id}/cancel [put]
func (h *FineHandler) CancelFine(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

// ReverseFine moves a PAID fine back to PENDING
// @Summary Reverse payment
// @Tags Fines
// @Produce json
// @Param id path int true "Fine ID"
// @Success 200 {object} models.Fine
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/{id}/reverse [put]
func (h *FineHandler) ReverseFine(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reverse)
}

func (h *FineHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64) (*models.Fine, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	fine, err := apply(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fine)
}

// DeleteFine removes a PENDING or CANCELLED fine
// @Summary Delete fine
// @Tags Fines
// @Produce json
// @Param id path int true "Fine ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/{id} [delete]
func (h *FineHandler) DeleteFine(w http.ResponseWriter, r *http.Request) {
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

// UpdateFines runs the overdue reconciliation
// @Summary Run fine sweep
// @Description Marks past-due loans OVERDUE and creates or re-prices their LATE_RETURN fines. Re-fetch /fines to see the result.
// @Tags Fines
// @Produce json
// @Success 200 {object} services.SweepResult
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/update-fines [put]
func (h *FineHandler) UpdateFines(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.UpdateFines(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
