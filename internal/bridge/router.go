package bridge

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine exposing Registry over HTTP: connect
// and disconnect, start/close a shell, send input, and stream output
// over a WebSocket.
func NewRouter(registry *Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(noCacheMiddleware())
	r.Use(processingTimeMiddleware())
	r.Use(logrusMiddleware())

	h := NewHandlers(registry)

	r.POST("/connections", h.HandleConnect)
	r.GET("/connections/:id", h.HandleGetConnection)
	r.DELETE("/connections/:id", h.HandleDisconnect)

	r.POST("/connections/:id/shells", h.HandleStartShell)
	r.POST("/connections/:id/shells/:channelId/input", h.HandleSendData)
	r.DELETE("/connections/:id/shells/:channelId", h.HandleCloseShell)
	r.GET("/connections/:id/shells/:channelId/stream", h.HandleShellStream)

	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Writer.Header().Set("Pragma", "no-cache")
		c.Writer.Header().Set("Expires", "0")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}

// processingTimeWriter wraps gin's ResponseWriter to add a
// Server-Timing header for DevTools-visible request latency.
type processingTimeWriter struct {
	gin.ResponseWriter
	startTime     time.Time
	headerWritten bool
}

func (w *processingTimeWriter) writeServerTimingHeader() {
	if w.headerWritten {
		return
	}
	latency := float64(time.Since(w.startTime).Nanoseconds()) / 1e6
	w.Header().Set("Server-Timing", fmt.Sprintf("total;dur=%.2f", latency))
	w.headerWritten = true
}

func (w *processingTimeWriter) WriteHeader(statusCode int) {
	w.writeServerTimingHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *processingTimeWriter) Write(data []byte) (int, error) {
	w.writeServerTimingHeader()
	return w.ResponseWriter.Write(data)
}

func (w *processingTimeWriter) WriteHeaderNow() {
	w.writeServerTimingHeader()
	w.ResponseWriter.WriteHeaderNow()
}

func processingTimeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ptw := &processingTimeWriter{ResponseWriter: c.Writer, startTime: time.Now()}
		c.Writer = ptw
		c.Next()
	}
}

// sensitiveQueryParams are redacted from request logs before the path
// is written out.
var sensitiveQueryParams = []string{
	"password", "passwd", "pwd",
	"key", "keypem", "private_key",
	"token", "secret", "authorization", "auth",
}

func redactSecrets(pathWithQuery string) string {
	parts := strings.SplitN(pathWithQuery, "?", 2)
	if len(parts) != 2 {
		return pathWithQuery
	}
	basePath, queryString := parts[0], parts[1]

	values, err := url.ParseQuery(queryString)
	if err != nil {
		return redactQueryPatterns(pathWithQuery)
	}

	redacted := false
	for key := range values {
		for _, param := range sensitiveQueryParams {
			if strings.EqualFold(key, param) {
				values.Set(key, "[REDACTED]")
				redacted = true
				break
			}
		}
	}
	if !redacted {
		return pathWithQuery
	}
	return basePath + "?" + values.Encode()
}

func redactQueryPatterns(pathWithQuery string) string {
	result := pathWithQuery
	for _, param := range sensitiveQueryParams {
		pattern := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(param) + `=)[^&\s]*`)
		result = pattern.ReplaceAllString(result, "${1}[REDACTED]")
	}
	return result
}

func logrusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path += "?" + c.Request.URL.RawQuery
		}
		sanitizedPath := redactSecrets(path)

		start := time.Now()
		c.Next()
		latency := int(math.Ceil(float64(time.Since(start).Nanoseconds()) / 1e6))

		status := c.Writer.Status()
		msg := fmt.Sprintf("%s %s %d %dms", c.Request.Method, sanitizedPath, status, latency)
		switch {
		case status >= http.StatusInternalServerError:
			logrus.Error(msg)
		case status >= http.StatusBadRequest:
			logrus.Warn(msg)
		default:
			logrus.Info(msg)
		}
	}
}
