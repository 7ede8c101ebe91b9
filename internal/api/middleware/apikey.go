package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header names used by the platform gateway.  Authentication proper lives in
// the gateway; this service only checks the shared key and trusts the
// customer/merchant identity headers the gateway injects.
const (
	HeaderAPIKey     = "X-API-Key"
	HeaderCustomerID = "X-Customer-ID"
	HeaderMerchantID = "X-Merchant-ID"

	ctxCustomerID = "customer_id"
	ctxMerchantID = "merchant_id"
)

// APIKeyMiddleware rejects requests without the shared platform key.  An
// empty configured key disables the check (development).
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" && c.GetHeader(HeaderAPIKey) != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid or missing API key",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		if id, err := uuid.Parse(c.GetHeader(HeaderCustomerID)); err == nil {
			c.Set(ctxCustomerID, id)
		}
		if id, err := uuid.Parse(c.GetHeader(HeaderMerchantID)); err == nil {
			c.Set(ctxMerchantID, id)
		}
		c.Next()
	}
}

// CustomerID returns the gateway-asserted customer id for this request.
func CustomerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxCustomerID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// MerchantID returns the gateway-asserted merchant id for this request.
func MerchantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxMerchantID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
