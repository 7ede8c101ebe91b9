package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/service"
)

// OrderHandler serves /admin/orders: the fulfillment queue as operators see
// it, plus the manual hold/release/fail controls.
type OrderHandler struct {
	fulfillment *service.FulfillmentService
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(fulfillment *service.FulfillmentService) *OrderHandler {
	return &OrderHandler{fulfillment: fulfillment}
}

// List godoc
// GET /admin/orders?page=1&limit=50
// Active (non-terminal) fulfillment orders, oldest first.
func (h *OrderHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	orders, err := h.fulfillment.ListActive(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, orders, len(orders), page, limit)
}

// Detail godoc
// GET /admin/orders/:id
func (h *OrderHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid order id")
		return
	}
	order, err := h.fulfillment.Get(c.Request.Context(), id)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "order not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, order)
}

// Hold godoc
// POST /admin/orders/:id/hold
// Freezes an order before it reaches the signer.  Allocated inventory stays
// locked to the order.
func (h *OrderHandler) Hold(c *gin.Context) {
	h.transition(c, h.fulfillment.Hold, "held")
}

// Release godoc
// POST /admin/orders/:id/release
// Returns a held order to the queue; it re-enters at the KYC gate.
func (h *OrderHandler) Release(c *gin.Context) {
	h.transition(c, h.fulfillment.Release, "released")
}

// Fail godoc
// POST /admin/orders/:id/fail
// Body: {"reason":"..."}
// Terminally fails an order and reverses its inventory allocations.
func (h *OrderHandler) Fail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid order id")
		return
	}
	var body struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BODY", "reason is required")
		return
	}

	if err := h.fulfillment.FailAndReverse(c.Request.Context(), id, body.Reason, adminActor(c)); err != nil {
		h.respondTransitionError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id, "status": "failed"})
}

func (h *OrderHandler) transition(
	c *gin.Context,
	op func(ctx context.Context, id uuid.UUID, actor string) error,
	result string,
) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid order id")
		return
	}
	if err := op(c.Request.Context(), id, adminActor(c)); err != nil {
		h.respondTransitionError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id, "status": result})
}

func (h *OrderHandler) respondTransitionError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "order not found")
	case errors.Is(err, domain.ErrOrderNotHoldable), errors.Is(err, domain.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "ERR_INVALID_STATE", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
	}
}
