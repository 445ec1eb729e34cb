package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listPlugins handles GET /plugins.
// @Summary      List plugins
// @Tags         plugins
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /plugins [get]
func (h *Handler) listPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": h.plugins.List()})
}

// enablePlugin handles POST /plugins/:id/enable.
// @Summary      Enable a plugin
// @Tags         plugins
// @Produce      json
// @Param        id   path      string  true  "Plugin ID"
// @Success      200  {object}  map[string]string  "status: enabled"
// @Failure      404  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /plugins/{id}/enable [post]
func (h *Handler) enablePlugin(c *gin.Context) {
	h.pluginAction(c, h.plugins.Enable, "enabled")
}

// disablePlugin handles POST /plugins/:id/disable.
// @Summary      Disable a plugin
// @Description  Removes every route the plugin registered.
// @Tags         plugins
// @Produce      json
// @Param        id   path      string  true  "Plugin ID"
// @Success      200  {object}  map[string]string  "status: disabled"
// @Failure      404  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /plugins/{id}/disable [post]
func (h *Handler) disablePlugin(c *gin.Context) {
	h.pluginAction(c, h.plugins.Disable, "disabled")
}

// reloadPlugin handles POST /plugins/:id/reload.
// @Summary      Reload a plugin
// @Tags         plugins
// @Produce      json
// @Param        id   path      string  true  "Plugin ID"
// @Success      200  {object}  map[string]string  "status: reloaded"
// @Failure      404  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /plugins/{id}/reload [post]
func (h *Handler) reloadPlugin(c *gin.Context) {
	h.pluginAction(c, h.plugins.Reload, "reloaded")
}

func (h *Handler) pluginAction(c *gin.Context, action func(string) error, status string) {
	if err := action(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
