package ticket_api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	tickets "ms-fulfillment/internal/tickets/service"
	"ms-fulfillment/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Logger: log}
}

// scanRequest carries the raw text read from the QR code.
type scanRequest struct {
	Payload string `json:"payload" validate:"required,max=4096"`
}

// artifactStatus is what support sees after a reissue. The signed payload is
// never returned; the owner fetches the image through /qr.
type artifactStatus struct {
	OrderItemID int64                  `json:"order_item_id"`
	OrderID     int64                  `json:"order_id"`
	Status      models.OrderItemStatus `json:"status"`
	IssuedAt    time.Time              `json:"issued_at,omitzero"`
	HasArtifact bool                   `json:"has_artifact"`
}

// Routes mounts the ticket endpoints. The QR image is owner-scoped; scanning
// needs a gate role and artifact maintenance needs support.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{itemID}/qr", h.GetQR)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, auth.RoleScanner, auth.RoleSupport))
		r.Post("/verify", h.Verify)
		r.Post("/checkin", h.CheckIn)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.Logger, auth.RoleSupport))
		r.Get("/pending", h.ListPending)
		r.Post("/{itemID}/reissue", h.Reissue)
		r.Post("/{itemID}/cancel", h.Cancel)
	})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	res, err := h.TicketService.Verify(r.Context(), []byte(req.Payload))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeVerdict(w, "Verified", res)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	res, err := h.TicketService.CheckIn(r.Context(), []byte(req.Payload))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !res.Valid {
		h.Logger.LogSecurity("CHECKIN_REJECTED", fmt.Sprintf("reason=%s scanner=%d", res.Reason, auth.UserID(r.Context())))
	}
	h.writeVerdict(w, "Checked in", res)
}

// writeVerdict always answers 200; the verdict is in the body.
func (h *Handler) writeVerdict(w http.ResponseWriter, okMessage string, res tickets.VerifyResult) {
	resp := utils.SuccessResponse(okMessage, res)
	if !res.Valid {
		resp = utils.ErrorResponse("ticket rejected", string(res.Reason))
		resp.Data = res
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetQR(w http.ResponseWriter, r *http.Request) {
	itemID, err := utils.URLParamInt64(r, "itemID")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	png, err := h.TicketService.GetArtifactImage(r.Context(), auth.UserID(r.Context()), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid limit", "VALIDATION"))
			return
		}
		limit = parsed
	}
	items, err := h.TicketService.ListPending(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pending artifacts", items))
}

func (h *Handler) Reissue(w http.ResponseWriter, r *http.Request) {
	itemID, err := utils.URLParamInt64(r, "itemID")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	item, err := h.TicketService.Reissue(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Logger.LogSecurity("ARTIFACT_REISSUED", fmt.Sprintf("item=%d by=%d", item.ID, auth.UserID(r.Context())))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Artifact reissued", artifactStatus{
		OrderItemID: item.ID,
		OrderID:     item.OrderID,
		Status:      item.Status,
		IssuedAt:    item.IssuedAt,
		HasArtifact: item.HasArtifact(),
	}))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	itemID, err := utils.URLParamInt64(r, "itemID")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	if err := h.TicketService.CancelItem(r.Context(), itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Item cancelled", nil))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tickets.ErrItemNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("order item not found", "ITEM_NOT_FOUND"))
	case errors.Is(err, tickets.ErrArtifactPending):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse(err.Error(), "ARTIFACT_PENDING"))
	case errors.Is(err, tickets.ErrItemCancelled):
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse(err.Error(), "CANCELLED"))
	default:
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal error", "INTERNAL"))
	}
}
