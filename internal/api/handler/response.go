package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashcard/treasury/internal/domain"
)

// pagination reads ?limit= and ?offset= with sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondDomainError maps a domain error onto the right HTTP status and
// envelope.  Unknown errors become an opaque 500 so internals never leak.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "CONFLICT", err.Error())
	case domain.IsRetryable(err):
		// Expected pending conditions: the client retries later.
		respondError(c, http.StatusAccepted, "PENDING", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrMissingDestination),
		errors.Is(err, domain.ErrBelowMinCashout),
		errors.Is(err, domain.ErrDailyLimitExceeded),
		errors.Is(err, domain.ErrKYCNotApproved):
		respondError(c, http.StatusUnprocessableEntity, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrTxReverted),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrRecipientMismatch):
		respondError(c, http.StatusUnprocessableEntity, "VERIFICATION_FAILED", err.Error())
	case errors.Is(err, domain.ErrPayoutsPaused):
		respondError(c, http.StatusServiceUnavailable, "PAYOUTS_PAUSED", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
