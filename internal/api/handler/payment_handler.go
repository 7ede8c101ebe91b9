package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/api/middleware"
	"github.com/hashcard/treasury/internal/service"
)

// PaymentHandler exposes on-chain USDC payment verification for BUY_BTC
// swap orders.
type PaymentHandler struct {
	verifier *service.VerifierService
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(verifier *service.VerifierService) *PaymentHandler {
	return &PaymentHandler{verifier: verifier}
}

type verifyPaymentRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	TxHash  string `json:"tx_hash" binding:"required"`
}

// Verify handles POST /api/payments/verify.
//
// A negative chain decision (tx pending, wrong amount, too few
// confirmations) is not an HTTP failure: the caller gets the decision body
// and retries once the chain catches up.  Only requests the verifier could
// not evaluate at all map to error envelopes.
func (h *PaymentHandler) Verify(c *gin.Context) {
	if _, ok := middleware.CustomerID(c); !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required")
		return
	}

	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "order_id and tx_hash are required")
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid order id")
		return
	}

	result, err := h.verifier.Verify(c.Request.Context(), orderID, req.TxHash)
	if err != nil {
		if result != nil {
			// Decision made, payment not (yet) acceptable.  No state changed.
			respondSuccess(c, http.StatusOK, result)
			return
		}
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}
