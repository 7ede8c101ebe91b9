package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/service"
)

// CashoutHandler serves /admin/cashouts: the manual review queue for fiat
// withdrawals.
type CashoutHandler struct {
	cashouts *service.CashoutService
}

// NewCashoutHandler creates a CashoutHandler.
func NewCashoutHandler(cashouts *service.CashoutService) *CashoutHandler {
	return &CashoutHandler{cashouts: cashouts}
}

// List godoc
// GET /admin/cashouts?status=pending&page=1&limit=50
func (h *CashoutHandler) List(c *gin.Context) {
	status := c.DefaultQuery("status", "")
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	orders, err := h.cashouts.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, orders, len(orders), page, limit)
}

type reviewCashoutRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// Review godoc
// POST /admin/cashouts/:id/review
// Body: {"approve":true,"note":"verified bank account"}
func (h *CashoutHandler) Review(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid cashout id")
		return
	}
	var req reviewCashoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BODY", "invalid request body")
		return
	}

	if err := h.cashouts.Review(c.Request.Context(), id, req.Approve, req.Note, adminActor(c)); err != nil {
		h.respondCashoutError(c, err)
		return
	}
	outcome := "rejected"
	if req.Approve {
		outcome = "approved"
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id, "status": outcome})
}

// Settle godoc
// POST /admin/cashouts/:id/settle
// Marks an approved cashout as paid over ACH.
func (h *CashoutHandler) Settle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid cashout id")
		return
	}

	if err := h.cashouts.Settle(c.Request.Context(), id, adminActor(c)); err != nil {
		h.respondCashoutError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id, "status": "settled"})
}

func (h *CashoutHandler) respondCashoutError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "cashout not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "ERR_INVALID_STATE", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
	}
}
