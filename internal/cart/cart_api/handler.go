package cart_api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/cart"
	"ms-fulfillment/internal/catalog"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/utils"
)

type Handler struct {
	CartService *cart.CartService
	Logger      *logger.Logger
}

type addItemRequest struct {
	EventID   int64           `json:"event_id" validate:"required,gt=0"`
	ItemKind  models.ItemKind `json:"item_kind" validate:"required,oneof=ticket ticket_priced_slot addon package appointment"`
	ItemRefID int64           `json:"item_ref_id" validate:"required,gt=0"`
	SlotRefID *int64          `json:"slot_ref_id,omitempty" validate:"omitempty,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gte=1,lte=100"`
}

type changeQuantityRequest struct {
	Delta int `json:"delta" validate:"required,ne=0,min=-1000,max=100"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.ListCart)
	r.Delete("/", h.ClearCart)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{lineID}", h.ChangeQuantity)
	r.Delete("/items/{lineID}", h.RemoveLine)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}

	ref, err := models.NewItemRef(req.ItemKind, &req.ItemRefID, req.SlotRefID)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}

	line, err := h.CartService.AddItem(r.Context(), auth.UserID(r.Context()), req.EventID, ref, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Item added to cart", line))
}

func (h *Handler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	lineID, err := utils.URLParamInt64(r, "lineID")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	var req changeQuantityRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}

	line, err := h.CartService.ChangeQuantity(r.Context(), auth.UserID(r.Context()), lineID, req.Delta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if line == nil {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Line removed", nil))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Quantity updated", line))
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := utils.URLParamInt64(r, "lineID")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	if err := h.CartService.RemoveLine(r.Context(), auth.UserID(r.Context()), lineID); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Line removed", nil))
}

func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	eventID, err := utils.QueryInt64(r, "event_id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	lines, err := h.CartService.ListLines(r.Context(), auth.UserID(r.Context()), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Cart retrieved", lines))
}

// ClearCart empties the whole cart ("clear and continue").
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.CartService.ClearAll(r.Context(), auth.UserID(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Cart cleared", nil))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *cart.ConflictError
	switch {
	case errors.As(err, &conflict):
		resp := utils.ErrorResponse(conflict.Error(), conflict.Code)
		resp.Details = map[string]interface{}{
			"conflicting_event_id": conflict.ConflictingEventID,
			"event_ids":            conflict.EventIDs,
		}
		utils.WriteJSON(w, http.StatusConflict, resp)
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, models.ErrUnknownItemKind):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
	case errors.Is(err, catalog.ErrItemNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse(err.Error(), "ITEM_NOT_FOUND"))
	case errors.Is(err, cart.ErrLineNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse(err.Error(), "LINE_NOT_FOUND"))
	case errors.Is(err, cart.ErrCartBusy):
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse(err.Error(), "CART_BUSY"))
	default:
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal error", "INTERNAL"))
	}
}
