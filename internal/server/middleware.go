package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rileyhilliard/gpustat/internal/logger"
)

// RequestLogger logs one line per request. Errors are logged as warnings so
// they show up without debug enabled.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start).Round(time.Millisecond)
		if status >= http.StatusBadRequest {
			log.Warn("%s %s %d %s %s", c.Request.Method, c.Request.URL.Path, status, latency, c.ClientIP())
			return
		}
		log.Debug("%s %s %d %s %s", c.Request.Method, c.Request.URL.Path, status, latency, c.ClientIP())
	}
}

// CORS allows browser dashboards served from the given origins. A pattern
// may end with a single "*" to match any suffix, e.g. http://localhost:*.
func CORS(patterns []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return originAllowed(patterns, origin)
		},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	})
}

func originAllowed(patterns []string, origin string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(origin, prefix) {
				return true
			}
			continue
		}
		if origin == pattern {
			return true
		}
	}
	return false
}
