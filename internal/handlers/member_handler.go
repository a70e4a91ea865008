package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

const defaultCardSize = 256

type MemberHandler struct {
	service   *services.MemberService
	validator *services.ValidationHelper
}

func NewMemberHandler(service *services.MemberService) *MemberHandler {
	return &MemberHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListMembers lists all members
// @Summary List members
// @Tags Members
// @Produce json
// @Success 200 {array} models.Member
// @Router /members [get]
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// GetMember returns one member
// @Summary Get member
// @Tags Members
// @Produce json
// @Param id path int true "Member ID"
// @Success 200 {object} models.Member
// @Failure 404 {object} services.ErrorResponse
// @Router /members/{id} [get]
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	member, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// CreateMember registers a member
// @Summary Create member
// @Description Register a member. membershipStatus defaults to ACTIVE.
// @Tags Members
// @Accept json
// @Produce json
// @Param request body models.MemberRequest true "Member"
// @Success 201 {object} models.Member
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /members [post]
func (h *MemberHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req models.MemberRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	member, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// UpdateMember replaces a member's fields
// @Summary Update member
// @Tags Members
// @Accept json
// @Produce json
// @Param id path int true "Member ID"
// @Param request body models.MemberRequest true "Member"
// @Success 200 {object} models.Member
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /members/{id} [put]
func (h *MemberHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.MemberRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	member, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// SetMembershipStatus activates or deactivates a member
// @Summary Set membership status
// @Tags Members
// @Produce json
// @Param id path int true "Member ID"
// @Param status path string true "ACTIVE or INACTIVE"
// @Success 200 {object} models.Member
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /members/{id}/{status} [put]
func (h *MemberHandler) SetMembershipStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	status, err := services.ParseMembershipStatus(chi.URLParam(r, "status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	member, err := h.service.SetStatus(r.Context(), id, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// DeleteMember removes a member with no open loans or pending fines
// @Summary Delete member
// @Tags Members
// @Produce json
// @Param id path int true "Member ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /members/{id} [delete]
func (h *MemberHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
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

// GetMemberCard renders the member's library card
// @Summary Library card QR code
// @Tags Members
// @Produce png
// @Param id path int true "Member ID"
// @Param size query int false "Image size in pixels (64-1024)"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /members/{id}/card [get]
func (h *MemberHandler) GetMemberCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	size := defaultCardSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || h.validator.ValidateVar(n, "gte=64,lte=1024") != nil {
			services.SendErrorResponse(w, "size must be between 64 and 1024", http.StatusBadRequest, nil)
			return
		}
		size = n
	}

	img, err := h.service.CardPNG(r.Context(), id, size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img)
}
