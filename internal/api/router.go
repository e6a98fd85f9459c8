package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"webpush-demo-backend/config"
	"webpush-demo-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// Broadcast and registry dump are open unless a secret is configured.
	admin := mw.AdminAuth(cfg.AdminJWTSecret)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/push", handler.ReceiveSubscription)
		api.DELETE("/push", handler.DeleteSubscription)
		api.GET("/push", admin, handler.Broadcast)
		api.GET("/db", admin, handler.GetDB)
		api.GET("/vapid_public_key", caching, handler.GetVAPIDPublicKey)
	}

	r.GET("/health", handler.Health)

	return r
}
