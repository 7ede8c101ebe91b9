package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/repository"
)

// AuditHandler serves /admin/audit: the append-only event trail.
type AuditHandler struct {
	auditRepo *repository.AuditRepository
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(auditRepo *repository.AuditRepository) *AuditHandler {
	return &AuditHandler{auditRepo: auditRepo}
}

// List godoc
// GET /admin/audit?type=order_transition&page=1&limit=50
func (h *AuditHandler) List(c *gin.Context) {
	eventType := c.DefaultQuery("type", "")
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	entries, err := h.auditRepo.List(c.Request.Context(), eventType, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, entries, len(entries), page, limit)
}
