package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// ConnectionCounter reports how many connections are open.
type ConnectionCounter interface {
	Size() int
}

// statusHandler serves GET / from the status cache.
type statusHandler struct {
	cache *statusCache
}

// Get returns the status of every configured host, in configured order.
func (h *statusHandler) Get(ctx *gin.Context) {
	result := h.cache.Get(ctx.Request.Context())

	if h.cache.ttl > 0 {
		ctx.Header("Cache-Control", fmt.Sprintf("max-age=%d", int(h.cache.ttl.Seconds())))
	} else {
		ctx.Header("Cache-Control", "no-store")
	}
	ctx.JSON(http.StatusOK, result)
}

type healthHandler struct {
	connections ConnectionCounter
}

func (h *healthHandler) Check(ctx *gin.Context) {
	n := 0
	if h.connections != nil {
		n = h.connections.Size()
	}
	ctx.JSON(http.StatusOK, HealthResponse{Status: "ok", Connections: n})
}
