package backoffice

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/backoffice/handler"
	"github.com/hashcard/treasury/internal/config"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/hashcard/treasury/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	InventorySvc   *service.InventoryService
	FulfillmentSvc *service.FulfillmentService
	CashoutSvc     *service.CashoutService
	ProcessorSvc   *service.ProcessorService
	WalletRepo     *repository.WalletRepository
	SettingsRepo   *repository.SettingsRepository
	AuditRepo      *repository.AuditRepository
	Cfg            *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine on the backoffice port.
// The admin surface never faces the public internet: an IP whitelist plus a
// static bearer token gate every route.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	treasuryH := handler.NewTreasuryHandler(deps.InventorySvc, deps.WalletRepo, deps.Cfg)
	settingsH := handler.NewSettingsHandler(deps.SettingsRepo, deps.AuditRepo)
	orderH := handler.NewOrderHandler(deps.FulfillmentSvc)
	cashoutH := handler.NewCashoutHandler(deps.CashoutSvc)
	auditH := handler.NewAuditHandler(deps.AuditRepo)
	processorH := handler.NewProcessorHandler(deps.ProcessorSvc)

	tokenMW := adminTokenMiddleware(deps.Cfg.Server.AdminToken)

	// Prometheus scrape endpoint; protected by the IP whitelist only, so the
	// scraper does not need the operator token.
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin")
	admin.Use(tokenMW)
	{
		// Treasury inventory
		t := admin.Group("/treasury")
		{
			t.POST("/topup", treasuryH.TopUp)
			t.GET("/lots", treasuryH.Lots)
			t.GET("/stats", treasuryH.Stats)
			t.GET("/wallets", treasuryH.Wallets)
			t.POST("/wallets", treasuryH.RotateWallet)
		}

		// Operational settings
		admin.GET("/settings", settingsH.List)
		admin.PUT("/settings", settingsH.Set)
		admin.POST("/payouts/pause", settingsH.PausePayouts)
		admin.POST("/payouts/resume", settingsH.ResumePayouts)

		// Fulfillment queue
		o := admin.Group("/orders")
		{
			o.GET("", orderH.List)
			o.GET("/:id", orderH.Detail)
			o.POST("/:id/hold", orderH.Hold)
			o.POST("/:id/release", orderH.Release)
			o.POST("/:id/fail", orderH.Fail)
		}

		// Cashout review
		co := admin.Group("/cashouts")
		{
			co.GET("", cashoutH.List)
			co.POST("/:id/review", cashoutH.Review)
			co.POST("/:id/settle", cashoutH.Settle)
		}

		// Audit trail
		admin.GET("/audit", auditH.List)

		// Manual processor run
		admin.POST("/processor/run", processorH.Run)
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowed[clientIP] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "access denied: your IP is not whitelisted",
				"code":    "ERR_IP_BLOCKED",
			})
			return
		}
		c.Next()
	}
}

// ── Admin token middleware ────────────────────────────────────────────────────

// adminTokenMiddleware requires Authorization: Bearer <token> with the static
// operator token.  An empty configured token disables the check (development);
// Validate() refuses an empty token in production.
func adminTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"code":    "ERR_UNAUTHORIZED",
			})
			return
		}

		got := strings.TrimPrefix(header, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
				"code":    "ERR_UNAUTHORIZED",
			})
			return
		}
		c.Next()
	}
}
