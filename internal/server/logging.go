package server

import (
	"net/http"
	"time"

	"cardshop/internal/auth"
	"cardshop/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLoggingMiddleware logs one line per request. Authenticated calls
// carry user_id; purchase and webhook routes carry purchase_id and provider.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithFields(requestFields(c, time.Since(start))).Log(requestLevel(c.Writer.Status()), "HTTP request")
	}
}

func requestFields(c *gin.Context, latency time.Duration) map[string]interface{} {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}

	fields := map[string]interface{}{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"route":      route,
		"status":     c.Writer.Status(),
		"latency_ms": latency.Milliseconds(),
		"client_ip":  c.ClientIP(),
		"user_agent": c.Request.UserAgent(),
	}

	if userID, ok := auth.GetUserID(c); ok {
		fields["user_id"] = userID
	}
	if id := c.Param("id"); id != "" {
		fields["purchase_id"] = id
	}
	if provider := c.Query("provider"); provider != "" {
		fields["provider"] = provider
	}
	if len(c.Errors) > 0 {
		fields["errors"] = c.Errors.String()
	}
	return fields
}

func requestLevel(status int) logrus.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return logrus.ErrorLevel
	case status >= http.StatusBadRequest:
		return logrus.WarnLevel
	}
	return logrus.InfoLevel
}
