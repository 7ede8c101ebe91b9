package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/api/middleware"
	"github.com/hashcard/treasury/internal/service"
)

// CardHandler exposes prepaid card activation and redemption.
type CardHandler struct {
	cards *service.CardService
}

// NewCardHandler creates a CardHandler.
func NewCardHandler(cards *service.CardService) *CardHandler {
	return &CardHandler{cards: cards}
}

type activateCardRequest struct {
	Code string `json:"code" binding:"required"`
}

// Activate handles POST /api/cards/activate (merchant point of sale).
func (h *CardHandler) Activate(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "merchant identity required")
		return
	}

	var req activateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "code is required")
		return
	}

	card, err := h.cards.Activate(c.Request.Context(), req.Code, merchantID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, card)
}

type redeemCardRequest struct {
	Code               string `json:"code" binding:"required"`
	DestinationAddress string `json:"destination_address"`
}

// Redeem handles POST /api/cards/redeem.  Creates a REDEMPTION fulfillment
// order for the card's face value; the BTC is delivered asynchronously by
// the settlement queue.
func (h *CardHandler) Redeem(c *gin.Context) {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required")
		return
	}

	var req redeemCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "code is required")
		return
	}

	order, err := h.cards.Redeem(c.Request.Context(), req.Code, customerID, req.DestinationAddress)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, order)
}
