package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// HeaderOfficer carries the authenticated officer identity resolved by
	// the portal front tier.
	HeaderOfficer = "X-Officer-ID"

	contextOfficerIDKey = "officer_id"
)

// OfficerRequired resolves the calling officer from the portal header and
// stores the parsed ID on the request context.
func (s *Server) OfficerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOfficer))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextOfficerIDKey, id)
		c.Next()
	}
}

func officerFromContext(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(contextOfficerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok
}

// LookupRateLimit throttles lookup submissions per officer. Without Redis
// the limiter is nil and every request passes.
func (s *Server) LookupRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		officerID, ok := officerFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		res, err := s.lookupLimiter.Allow(c.Request.Context(), officerID)
		if err != nil {
			s.log.Warn("lookup rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			retryAfter := int(res.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many lookup requests",
			}})
			return
		}

		c.Next()
	}
}

// RequestLogMiddleware emits one structured line per API request.
func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
