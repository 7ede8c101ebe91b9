package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/api/middleware"
	"github.com/hashcard/treasury/internal/service"
	"github.com/shopspring/decimal"
)

// CashoutHandler exposes fiat cashout requests.
type CashoutHandler struct {
	cashouts *service.CashoutService
}

// NewCashoutHandler creates a CashoutHandler.
func NewCashoutHandler(cashouts *service.CashoutService) *CashoutHandler {
	return &CashoutHandler{cashouts: cashouts}
}

type createCashoutRequest struct {
	AmountUSD     decimal.Decimal `json:"amount_usd" binding:"required"`
	BankAccountID string          `json:"bank_account_id" binding:"required"`
}

// Create handles POST /api/cashouts.  The order lands in PENDING and waits
// for back-office review.
func (h *CashoutHandler) Create(c *gin.Context) {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required")
		return
	}

	var req createCashoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "amount_usd and bank_account_id are required")
		return
	}

	order, err := h.cashouts.Request(c.Request.Context(), customerID, req.AmountUSD, req.BankAccountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, order)
}

// Get handles GET /api/cashouts/:id.
func (h *CashoutHandler) Get(c *gin.Context) {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required")
		return
	}
	cashoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid cashout id")
		return
	}

	order, err := h.cashouts.Get(c.Request.Context(), cashoutID, customerID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, order)
}
