package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/security"
)

const (
	ContextSecurityAlert = "security_alert"

	inspectTimeout = 2 * time.Second
)

// RequestInspector is satisfied by *security.Monitor.
type RequestInspector interface {
	Inspect(ctx context.Context, info security.RequestInfo) (security.Verdict, error)
}

// SecurityMonitor rejects requests from blocked IPs with 403 and records an
// incident for requests matching a threat pattern. Matching requests are not
// rejected; the alert is left on the context.
func SecurityMonitor(inspector RequestInspector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}
		info := security.RequestInfo{
			IP:        c.ClientIP(),
			Method:    r.Method,
			Path:      r.URL.Path,
			RawQuery:  r.URL.RawQuery,
			UserAgent: r.UserAgent(),
			Headers:   headers,
		}

		ctx, cancel := context.WithTimeout(r.Context(), inspectTimeout)
		verdict, err := inspector.Inspect(ctx, info)
		cancel()
		if err != nil {
			logger.Error("security inspection failed", zap.String("path", info.Path), zap.Error(err))
		}
		if verdict.Blocked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		if verdict.Alert != nil {
			c.Set(ContextSecurityAlert, verdict.Alert)
		}
		c.Next()
	}
}
