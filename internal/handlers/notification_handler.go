package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type NotificationHandler struct {
	service   *services.NotificationService
	validator *services.ValidationHelper
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListNotifications lists the notification log
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Success 200 {array} models.Notification
// @Router /notifications [get]
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetNotification returns one notification
// @Summary Get notification
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} models.Notification
// @Failure 404 {object} services.ErrorResponse
// @Router /notifications/{id} [get]
func (h *NotificationHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// @Summary List member notifications
// @Tags Notifications
// @Produce json
// @Param id path int true "Member ID"
// @Success 200 {array} models.Notification
// @Failure 404 {object} services.ErrorResponse
// @Router /notifications/member/{id} [get]
func (h *NotificationHandler) ListMemberNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.service.ListByMember(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// @Summary List notifications by delivery status
// @Tags Notifications
// @Produce json
// @Param status path string true "SENT or FAILED"
// @Success 200 {array} models.Notification
// @Failure 400 {object} services.ErrorResponse
// @Router /notifications/status/{status} [get]
func (h *NotificationHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListByStatus(r.Context(), chi.URLParam(r, "status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SendCustom sends a staff-written message to a member
// @Summary Send custom notification
// @Description Delivery failures are recorded on the returned notification with status FAILED
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body models.CustomNotificationRequest true "Message"
// @Success 201 {object} models.Notification
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /notifications/custom [post]
func (h *NotificationHandler) SendCustom(w http.ResponseWriter, r *http.Request) {
	var req models.CustomNotificationRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	n, err := h.service.SendCustom(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// ProcessFines notifies members with pending fines
// @Summary Process fine notices
// @Tags Notifications
// @Produce json
// @Success 200 {object} models.DispatchResult
// @Router /notifications/fines/process [post]
func (h *NotificationHandler) ProcessFines(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ProcessFines(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ProcessOverdue sends overdue and due-soon reminders
// @Summary Process loan reminders
// @Tags Notifications
// @Produce json
// @Success 200 {object} models.DispatchResult
// @Router /notifications/overdue/process [post]
func (h *NotificationHandler) ProcessOverdue(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ProcessOverdue(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// @Summary Notification statistics
// @Tags Notifications
// @Produce json
// @Success 200 {object} models.NotificationStats
// @Router /notifications/stats [get]
func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
