package api

import (
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"fleet-tracking-backend/config"
	"fleet-tracking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	r := gin.New()
	r.Use(mw.Logger(), gin.Recovery())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	// Device listings change every poll, keep them briefly.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)
	invalidate := mw.InvalidateCache(cacheStore)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/devices", caching, handler.GetDevices)
		api.GET("/devices/:device_id", caching, handler.GetDevice)
		api.PATCH("/devices/:device_id", invalidate, handler.PatchDevice)

		api.POST("/sessions", handler.OpenSession)
		api.GET("/sessions/:id", handler.GetSession)
		api.DELETE("/sessions/:id", handler.CloseSession)
		api.POST("/sessions/:id/edit", handler.BeginEdit)
		api.PUT("/sessions/:id/edit", invalidate, handler.SaveEdit)
		api.DELETE("/sessions/:id/edit", handler.CancelEdit)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
