package main

import (
	"net/http"
	"time"

	"github.com/danmuck/jsonwire/internal/endpoint"
	"github.com/danmuck/jsonwire/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// adminRouter exposes the operational surface next to the protocol port:
// health, live connection ids, and prometheus metrics.
func adminRouter(ep *endpoint.Endpoint, name string, corsOrigins []string, started time.Time) *gin.Engine {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"name":   name,
			"uptime": time.Since(started).String(),
		})
	})

	r.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"connections": ep.Connections(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
