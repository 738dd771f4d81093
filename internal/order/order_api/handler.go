package order_api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order"
	"ms-fulfillment/internal/utils"
)

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Logger: log}
}

type checkoutRequest struct {
	EventID          int64  `json:"event_id" validate:"required,gt=0"`
	PaymentMethod    string `json:"payment_method" validate:"omitempty,max=32"`
	DiscountCode     string `json:"discount_code" validate:"omitempty,max=64"`
	PaymentReference string `json:"payment_reference" validate:"omitempty,max=128"`
}

// snapshotRequest is a confirmed payment snapshot pushed by the payment
// service when it cannot publish to Kafka. Prices are trusted, so only
// callers with the service role reach it.
type snapshotRequest struct {
	UserID           int64                 `json:"user_id" validate:"required,gt=0"`
	EventID          int64                 `json:"event_id" validate:"required,gt=0"`
	PaymentReference string                `json:"payment_reference" validate:"required,max=128"`
	PaymentMethod    string                `json:"payment_method" validate:"omitempty,max=32"`
	Breakdown        models.Breakdown      `json:"breakdown"`
	Items            []models.SnapshotItem `json:"items" validate:"required,min=1,max=50,dive"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.ListOrders)
	r.Post("/checkout", h.Checkout)
	r.With(auth.RequireRole(h.Logger, auth.RoleService)).Post("/snapshot", h.FulfillSnapshot)
	r.Get("/{orderID}", h.GetOrder)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}

	res, err := h.OrderService.CreateOrderFromCart(r.Context(), order.CheckoutRequest{
		UserID:           auth.UserID(r.Context()),
		EventID:          req.EventID,
		PaymentMethod:    req.PaymentMethod,
		DiscountCode:     req.DiscountCode,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeFulfilled(w, res)
}

func (h *Handler) FulfillSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}

	res, err := h.OrderService.CreateOrderFromSnapshot(r.Context(), models.PaymentConfirmedEvent{
		UserID:           req.UserID,
		EventID:          req.EventID,
		PaymentReference: req.PaymentReference,
		PaymentMethod:    req.PaymentMethod,
		Breakdown:        req.Breakdown,
		Items:            req.Items,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeFulfilled(w, res)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListOrdersByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Orders retrieved", orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := utils.URLParamInt64(r, "orderID")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "VALIDATION"))
		return
	}
	o, err := h.OrderService.GetOrder(r.Context(), auth.UserID(r.Context()), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order retrieved", o))
}

// writeFulfilled answers 201 for a new order and 200 for a replay.
func (h *Handler) writeFulfilled(w http.ResponseWriter, res *order.FulfillResult) {
	if res.Replayed {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order already fulfilled", res))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Order fulfilled", res))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *order.FulfillmentError
	if !errors.As(err, &fe) {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal error", "INTERNAL"))
		return
	}
	if fe.Category == order.CategoryFatal {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		utils.WriteJSON(w, fe.HTTPStatus(), utils.ErrorResponse("order could not be fulfilled", fe.Code))
		return
	}
	utils.WriteJSON(w, fe.HTTPStatus(), utils.ErrorResponse(fe.Message, fe.Code))
}
