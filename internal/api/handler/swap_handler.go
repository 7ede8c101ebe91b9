package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/api/middleware"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/service"
	"github.com/shopspring/decimal"
)

// SwapHandler exposes customer swap order creation and lookup.
type SwapHandler struct {
	swaps *service.SwapService
}

// NewSwapHandler creates a SwapHandler.
func NewSwapHandler(swaps *service.SwapService) *SwapHandler {
	return &SwapHandler{swaps: swaps}
}

type createSwapRequest struct {
	Side               string          `json:"side" binding:"required"`
	USDCAmount         decimal.Decimal `json:"usdc_amount"`
	BTCAmount          decimal.Decimal `json:"btc_amount"`
	DestinationAddress string          `json:"destination_address"`
	SourceAddress      string          `json:"source_address"`
}

// Create handles POST /api/swaps.
func (h *SwapHandler) Create(c *gin.Context) {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required")
		return
	}

	var req createSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	order, err := h.swaps.Create(c.Request.Context(), domain.CreateSwapRequest{
		CustomerID:         customerID,
		Side:               domain.SwapSide(req.Side),
		USDCAmount:         req.USDCAmount,
		BTCAmount:          req.BTCAmount,
		DestinationAddress: req.DestinationAddress,
		SourceAddress:      req.SourceAddress,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, order.ToResponse())
}

// Get handles GET /api/swaps/:id.
func (h *SwapHandler) Get(c *gin.Context) {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required")
		return
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid order id")
		return
	}

	order, err := h.swaps.Get(c.Request.Context(), orderID, customerID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, order.ToResponse())
}

// List handles GET /api/swaps.
func (h *SwapHandler) List(c *gin.Context) {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required")
		return
	}
	limit, offset := pagination(c)

	orders, err := h.swaps.ListMine(c.Request.Context(), customerID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	resp := make([]domain.SwapOrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, o.ToResponse())
	}
	respondSuccess(c, http.StatusOK, resp)
}
