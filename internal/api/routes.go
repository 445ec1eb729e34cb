package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"open-blog/internal/rewrite"
	"open-blog/models"
)

func routeID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		badRequest(c, "invalid route id")
		return 0, false
	}
	return uint(id), true
}

// listRoutes handles GET /routes.
// @Summary      List routes
// @Description  All stored override routes, active or not.
// @Tags         routes
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "List of routes"
// @Failure      500  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /routes [get]
func (h *Handler) listRoutes(c *gin.Context) {
	routes, err := h.routes.ListRoutes()
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// createRoute handles POST /routes.
// @Summary      Create a route
// @Description  Serve a built-in endpoint at a new path. While the route is active the endpoint's original path answers 404.
// @Tags         routes
// @Accept       json
// @Produce      json
// @Param        body  body      models.CreateRouteRequest  true  "Route"
// @Success      201   {object}  database.Route
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /routes [post]
func (h *Handler) createRoute(c *gin.Context) {
	var req models.CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rt, err := h.routes.AddRoute(req.Path, req.OriginalEndpoint, req.Description, active)
	if err != nil {
		// ErrRefreshFailed lands here as a 500: the route is stored but the
		// live table still holds the previous generation.
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rt)
}

// updateRoute handles PUT /routes/:id.
// @Summary      Update a route
// @Tags         routes
// @Accept       json
// @Produce      json
// @Param        id    path      int                        true  "Route ID"
// @Param        body  body      models.UpdateRouteRequest  true  "Fields to change"
// @Success      200   {object}  database.Route
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /routes/{id} [put]
func (h *Handler) updateRoute(c *gin.Context) {
	id, ok := routeID(c)
	if !ok {
		return
	}
	var req models.UpdateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	rt, err := h.routes.UpdateRoute(id, rewrite.RouteUpdate{
		Path:             req.Path,
		OriginalEndpoint: req.OriginalEndpoint,
		Description:      req.Description,
		IsActive:         req.IsActive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rt)
}

// deleteRoute handles DELETE /routes/:id.
// @Summary      Delete a route
// @Description  Removes the route; its endpoint is served at the original path again.
// @Tags         routes
// @Produce      json
// @Param        id   path      int  true  "Route ID"
// @Success      200  {object}  map[string]string  "status: deleted"
// @Failure      404  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /routes/{id} [delete]
func (h *Handler) deleteRoute(c *gin.Context) {
	id, ok := routeID(c)
	if !ok {
		return
	}
	if err := h.routes.DeleteRoute(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// toggleRoute handles POST /routes/:id/toggle.
// @Summary      Toggle a route
// @Description  Flip the route's active flag.
// @Tags         routes
// @Produce      json
// @Param        id   path      int  true  "Route ID"
// @Success      200  {object}  database.Route
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /routes/{id}/toggle [post]
func (h *Handler) toggleRoute(c *gin.Context) {
	id, ok := routeID(c)
	if !ok {
		return
	}
	rt, err := h.routes.ToggleRoute(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rt)
}

// refreshRoutes handles POST /routes/refresh.
// @Summary      Rebuild the route table
// @Description  Reinstall every active route now, ignoring the debounce window.
// @Tags         routes
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /routes/refresh [post]
func (h *Handler) refreshRoutes(c *gin.Context) {
	if err := h.routes.Refresh(); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed", "generation": h.table.Generation()})
}
