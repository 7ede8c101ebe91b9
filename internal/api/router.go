package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/api/handler"
	"github.com/hashcard/treasury/internal/api/middleware"
	"github.com/hashcard/treasury/internal/config"
	"github.com/hashcard/treasury/internal/service"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	CardSvc     *service.CardService
	SwapSvc     *service.SwapService
	VerifierSvc *service.VerifierService
	CashoutSvc  *service.CashoutService
	Cfg         *config.Config
}

// SetupRouter creates and configures the customer-facing Gin engine with all
// routes, middleware, CORS, and rate limiting rules.  Authentication proper
// lives in the platform gateway; this service checks the shared API key and
// trusts the identity headers the gateway injects.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	cardH := handler.NewCardHandler(deps.CardSvc)
	swapH := handler.NewSwapHandler(deps.SwapSvc)
	paymentH := handler.NewPaymentHandler(deps.VerifierSvc)
	cashoutH := handler.NewCashoutHandler(deps.CashoutSvc)

	// ── Gateway key (shared) ─────────────────────────────────────────────────
	keyMW := middleware.APIKeyMiddleware(deps.Cfg.Server.APIKey)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	cardRL := middleware.RateLimitMiddleware(5)    // activation/redemption is rare
	verifyRL := middleware.RateLimitMiddleware(10) // chain lookups are expensive
	generalRL := middleware.RateLimitMiddleware(30)

	api := r.Group("/api")
	api.Use(keyMW)
	{
		// ── Prepaid cards ─────────────────────────────────────────────────────
		cards := api.Group("/cards")
		cards.Use(cardRL)
		{
			cards.POST("/activate", cardH.Activate)
			cards.POST("/redeem", cardH.Redeem)
		}

		// ── Swap orders ───────────────────────────────────────────────────────
		swaps := api.Group("/swaps")
		swaps.Use(generalRL)
		{
			swaps.POST("", swapH.Create)
			swaps.GET("", swapH.List)
			swaps.GET("/:id", swapH.Get)
		}

		// ── Payment verification ──────────────────────────────────────────────
		payments := api.Group("/payments")
		payments.Use(verifyRL)
		{
			payments.POST("/verify", paymentH.Verify)
		}

		// ── Cashouts ──────────────────────────────────────────────────────────
		cashouts := api.Group("/cashouts")
		cashouts.Use(generalRL)
		{
			cashouts.POST("", cashoutH.Create)
			cashouts.GET("/:id", cashoutH.Get)
		}
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			// Production: allow only hashcard.com (and www.)
			allowed := map[string]bool{
				"https://hashcard.com":     true,
				"https://www.hashcard.com": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Customer-ID, X-Merchant-ID, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
