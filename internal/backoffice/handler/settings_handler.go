package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/repository"
)

// SettingsHandler serves /admin/settings and the payout pause switch.
type SettingsHandler struct {
	settingsRepo *repository.SettingsRepository
	auditRepo    *repository.AuditRepository
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settingsRepo *repository.SettingsRepository, auditRepo *repository.AuditRepository) *SettingsHandler {
	return &SettingsHandler{settingsRepo: settingsRepo, auditRepo: auditRepo}
}

// List godoc
// GET /admin/settings
func (h *SettingsHandler) List(c *gin.Context) {
	settings, err := h.settingsRepo.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, settings)
}

type setSettingRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value" binding:"required"`
}

// Set godoc
// PUT /admin/settings
// Body: {"key":"DAILY_BUY_LIMIT_USD","value":"25000"}
func (h *SettingsHandler) Set(c *gin.Context) {
	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BODY", "key and value are required")
		return
	}
	if err := h.setAndAudit(c, req.Key, req.Value); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"key": req.Key, "value": req.Value})
}

// PausePayouts godoc
// POST /admin/payouts/pause
// The queue processor reads PAYOUTS_PAUSED at the start of each run, so the
// switch takes effect within one processing cycle.
func (h *SettingsHandler) PausePayouts(c *gin.Context) {
	if err := h.setAndAudit(c, domain.SettingPayoutsPaused, "true"); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"payouts_paused": true})
}

// ResumePayouts godoc
// POST /admin/payouts/resume
func (h *SettingsHandler) ResumePayouts(c *gin.Context) {
	if err := h.setAndAudit(c, domain.SettingPayoutsPaused, "false"); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"payouts_paused": false})
}

func (h *SettingsHandler) setAndAudit(c *gin.Context, key, value string) error {
	ctx := c.Request.Context()
	if err := h.settingsRepo.Set(ctx, key, value); err != nil {
		return err
	}
	// Audit append is best effort here; the setting write already committed.
	_ = h.auditRepo.Append(ctx, &domain.AuditLogEntry{
		EventID:   fmt.Sprintf("setting:%s:%d", key, time.Now().UnixNano()),
		EventType: domain.AuditSettingChanged,
		Actor:     adminActor(c),
		Detail:    fmt.Sprintf("%s=%s", key, value),
	})
	return nil
}
