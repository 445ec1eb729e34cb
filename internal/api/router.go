package api

import "github.com/gin-gonic/gin"

// RegisterHealthCheck attaches the /v1/health endpoint directly to the engine (no auth).
func (h *Handler) RegisterHealthCheck(r *gin.Engine) {
	r.GET("/v1/health", h.healthCheck)
}

// RegisterRoutes attaches the admin routes to the given group, normally
// /admin/api.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	rt := g.Group("/routes")
	rt.GET("", h.listRoutes)
	rt.POST("", h.createRoute)
	rt.POST("/refresh", h.refreshRoutes)
	rt.PUT("/:id", h.updateRoute)
	rt.DELETE("/:id", h.deleteRoute)
	rt.POST("/:id/toggle", h.toggleRoute)

	g.GET("/endpoints", h.listEndpoints)
	g.GET("/table", h.showTable)

	g.GET("/settings/permalink", h.getPermalink)
	g.PUT("/settings/permalink", h.putPermalink)

	g.POST("/cache/clear", h.clearCache)

	pl := g.Group("/plugins")
	pl.GET("", h.listPlugins)
	pl.POST("/:id/enable", h.enablePlugin)
	pl.POST("/:id/disable", h.disablePlugin)
	pl.POST("/:id/reload", h.reloadPlugin)
}
