package httpapi

import (
	"errors"
	"net/http"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/screening"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	quotaHint     = "The AI provider account has no remaining quota or billing is not enabled. Check usage and limits with the provider."
	rateLimitHint = "The AI provider is throttling requests. Retry in a minute."
)

// respondError maps err onto a status code and a JSON body.
func (s *Server) respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(headerRequestID)),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	var verr *screening.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field}
	case errors.Is(err, extract.ErrUnsupportedType), errors.Is(err, extract.ErrNoText):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, screening.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": "Not found"}
	case errors.Is(err, ai.ErrQuotaExceeded):
		return http.StatusPaymentRequired, gin.H{"error": err.Error(), "hint": quotaHint}
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusTooManyRequests, gin.H{"error": err.Error(), "hint": rateLimitHint}
	case errors.Is(err, ai.ErrMissingCredentials):
		return http.StatusServiceUnavailable, gin.H{"error": "AI provider is not configured"}
	case errors.Is(err, ai.ErrTimeout):
		return http.StatusGatewayTimeout, gin.H{"error": "AI evaluation timed out"}
	case errors.Is(err, ai.ErrProvider):
		return http.StatusBadGateway, gin.H{"error": "AI evaluation failed", "hint": "Check backend logs for details."}
	default:
		return http.StatusInternalServerError, gin.H{"error": "Internal server error"}
	}
}
