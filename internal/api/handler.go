package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"open-blog/internal/cache"
	"open-blog/internal/database"
	"open-blog/internal/permalink"
	"open-blog/internal/plugins"
	"open-blog/internal/rewrite"
	"open-blog/internal/routing"
	"open-blog/models"
)

// SettingStore persists site settings.
type SettingStore interface {
	GetSetting(key string) (string, bool, error)
	PutSetting(key, value string) error
}

// Deps are the components the admin API drives.
type Deps struct {
	Routes   *rewrite.Service
	Engine   *rewrite.Engine
	Table    *routing.Table
	Codec    *permalink.Codec
	Settings SettingStore
	Cache    *cache.Manager
	Plugins  *plugins.Manager
	Log      *logrus.Entry
}

// Handler holds dependencies for all API handlers.
type Handler struct {
	routes   *rewrite.Service
	engine   *rewrite.Engine
	table    *routing.Table
	codec    *permalink.Codec
	settings SettingStore
	cache    *cache.Manager
	plugins  *plugins.Manager
	log      *logrus.Entry
}

// New creates a Handler.
func New(d Deps) *Handler {
	return &Handler{
		routes:   d.Routes,
		engine:   d.Engine,
		table:    d.Table,
		codec:    d.Codec,
		settings: d.Settings,
		cache:    d.Cache,
		plugins:  d.Plugins,
		log:      d.Log,
	}
}

// healthCheck handles GET /v1/health. It is mounted outside /admin/api
// and left out of the admin API document.
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"generation": h.table.Generation(),
		"rewrite":    h.engine.State().String(),
	})
}

// listEndpoints handles GET /endpoints.
// @Summary      List overridable endpoints
// @Description  Built-in endpoints with their template and current override path.
// @Tags         routes
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /endpoints [get]
func (h *Handler) listEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": h.routes.Endpoints()})
}

// showTable handles GET /table.
// @Summary      Show the route table
// @Description  Every rule of the published generation in match order.
// @Tags         routes
// @Produce      json
// @Success      200  {object}  models.TableResponse
// @Security     ApiKeyAuth
// @Router       /table [get]
func (h *Handler) showTable(c *gin.Context) {
	resp := models.TableResponse{
		Generation: h.table.Generation(),
		State:      h.engine.State().String(),
		Rules:      []models.RuleResponse{},
	}
	for _, r := range h.table.Rules() {
		resp.Rules = append(resp.Rules, models.RuleResponse{
			Endpoint: r.Endpoint,
			Pattern:  r.Pattern,
			Methods:  r.Methods,
			Kind:     r.Kind.String(),
			Owner:    r.Owner,
			Defaults: r.Defaults,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// getPermalink handles GET /settings/permalink.
// @Summary      Get the permalink pattern
// @Tags         settings
// @Produce      json
// @Success      200  {object}  models.PermalinkSetting
// @Security     ApiKeyAuth
// @Router       /settings/permalink [get]
func (h *Handler) getPermalink(c *gin.Context) {
	c.JSON(http.StatusOK, models.PermalinkSetting{Pattern: h.codec.Pattern()})
}

// putPermalink handles PUT /settings/permalink.
// @Summary      Change the permalink pattern
// @Description  Validates, stores and applies a new article URL pattern. Tokens: {id} {encodeid} {category} {year} {month} {day}.
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        body  body      models.PermalinkSetting  true  "New pattern"
// @Success      200   {object}  models.PermalinkSetting
// @Failure      400   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /settings/permalink [put]
func (h *Handler) putPermalink(c *gin.Context) {
	var req models.PermalinkSetting
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	norm, _, err := permalink.ParsePattern(req.Pattern)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.settings.PutSetting(database.SettingArticleURLPattern, norm); err != nil {
		internalError(c, err)
		return
	}
	if err := h.codec.SetPattern(norm); err != nil {
		writeError(c, err)
		return
	}
	h.log.WithField("pattern", norm).Info("permalink pattern changed")
	c.JSON(http.StatusOK, models.PermalinkSetting{Pattern: norm})
}

// clearCache handles POST /cache/clear.
// @Summary      Clear cache entries
// @Description  Deletes one key, every key containing a prefix (pattern ending in *), or everything when the pattern is empty.
// @Tags         system
// @Accept       json
// @Produce      json
// @Param        body  body      models.ClearCacheRequest  false  "Key or pattern"
// @Success      200   {object}  models.ClearCacheResponse
// @Failure      400   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /cache/clear [post]
func (h *Handler) clearCache(c *gin.Context) {
	var req models.ClearCacheRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	var removed int
	if req.Pattern == "" {
		removed = h.cache.Len()
		h.cache.Clear()
	} else {
		removed = h.cache.Delete(req.Pattern)
	}
	h.log.WithFields(logrus.Fields{"pattern": req.Pattern, "removed": removed}).Info("cache cleared")
	c.JSON(http.StatusOK, models.ClearCacheResponse{Removed: removed})
}
