package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syuchan1005/CardNotifier/internal/handler"
	"github.com/syuchan1005/CardNotifier/pkg/otel"
	"github.com/syuchan1005/CardNotifier/pkg/trace"
)

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Handlers struct {
	Inbound      *handler.InboundHandler
	Alias        *handler.AliasHandler
	Notification *handler.NotificationHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, checks map[string]ReadinessCheck) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyz(checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.Inbound != nil {
		r.POST("/email/inbound", h.Inbound.ReceiveEmail)
	}

	api := r.Group("/api")
	if h.Notification != nil {
		api.GET("/notification", h.Notification.PublicKey)
		api.POST("/notification", h.Notification.Subscribe)
	}
	if h.Alias != nil {
		api.GET("/aliases", h.Alias.ListAliases)
		api.POST("/aliases", h.Alias.CreateAlias)
		api.DELETE("/aliases/:id", h.Alias.DeleteAlias)
	}

	return &Router{Engine: r}
}

func readyz(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// TraceMiddleware propagates or assigns the X-Trace-ID header.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, id := trace.Ensure(c.Request.Context(), c.GetHeader(trace.HeaderName))
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, id)
		c.Next()
	}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
