package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/config"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/hashcard/treasury/internal/service"
	"github.com/shopspring/decimal"
)

// TreasuryHandler serves /admin/treasury endpoints: lot top-ups, inventory
// stats, and receiving-wallet rotation.
type TreasuryHandler struct {
	inventory  *service.InventoryService
	walletRepo *repository.WalletRepository
	cfg        *config.Config
}

// NewTreasuryHandler creates a TreasuryHandler.
func NewTreasuryHandler(
	inventory *service.InventoryService,
	walletRepo *repository.WalletRepository,
	cfg *config.Config,
) *TreasuryHandler {
	return &TreasuryHandler{inventory: inventory, walletRepo: walletRepo, cfg: cfg}
}

type topUpRequest struct {
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Source     string          `json:"source"`
	ReceivedAt *time.Time      `json:"received_at"`
	HoldHours  *int            `json:"hold_hours"`
}

// TopUp godoc
// POST /admin/treasury/topup
// Body: {"amount":"1.5","source":"exchange","received_at":"...","hold_hours":24}
func (h *TreasuryHandler) TopUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BODY", "amount is required")
		return
	}

	source := domain.LotSource(req.Source)
	if req.Source == "" {
		source = domain.LotSourceManual
	}
	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}
	hold := h.cfg.Treasury.DefaultHoldDuration
	if req.HoldHours != nil {
		hold = time.Duration(*req.HoldHours) * time.Hour
	}

	lot, err := h.inventory.TopUp(c.Request.Context(), req.Amount, source, receivedAt, hold, adminActor(c))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			respondError(c, http.StatusUnprocessableEntity, "ERR_INVALID_LOT", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusCreated, lot)
}

// Lots godoc
// GET /admin/treasury/lots?page=1&limit=50
func (h *TreasuryHandler) Lots(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	lots, err := h.inventory.ListLots(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, lots, len(lots), page, limit)
}

// Stats godoc
// GET /admin/treasury/stats
func (h *TreasuryHandler) Stats(c *gin.Context) {
	stats, err := h.inventory.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, stats)
}

// Wallets godoc
// GET /admin/treasury/wallets
func (h *TreasuryHandler) Wallets(c *gin.Context) {
	wallets, err := h.walletRepo.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, wallets)
}

type rotateWalletRequest struct {
	Chain   string `json:"chain" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// RotateWallet godoc
// POST /admin/treasury/wallets
// Deactivates the current wallet for the chain and activates the new address.
func (h *TreasuryHandler) RotateWallet(c *gin.Context) {
	var req rotateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BODY", "chain and address are required")
		return
	}
	chain := domain.Chain(req.Chain)
	if !chain.IsValid() {
		respondError(c, http.StatusUnprocessableEntity, "ERR_INVALID_CHAIN", "chain must be bitcoin or ethereum")
		return
	}

	wallet, err := h.walletRepo.Activate(c.Request.Context(), chain, req.Address)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusCreated, wallet)
}
