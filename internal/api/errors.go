package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"open-blog/internal/permalink"
	"open-blog/internal/plugins"
	"open-blog/internal/rewrite"
)

// errorResponse is the standard error body returned by all API endpoints.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// badRequest writes a 400 response with code BAD_REQUEST and the provided message.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: msg})
}

// notFound writes a 404 response with code NOT_FOUND for the given resource name.
func notFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: resource + " not found"})
}

// conflict writes a 409 response with code CONFLICT.
func conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, errorResponse{Code: "CONFLICT", Message: msg})
}

// internalError writes a 500 response with code INTERNAL_ERROR.
func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: err.Error()})
}

// writeError maps domain errors to their HTTP status.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rewrite.ErrRouteNotFound):
		notFound(c, "route")
	case errors.Is(err, plugins.ErrUnknownPlugin):
		notFound(c, "plugin")
	case errors.Is(err, rewrite.ErrPathExists), errors.Is(err, rewrite.ErrEndpointBusy):
		conflict(c, err.Error())
	case errors.Is(err, rewrite.ErrUnknownEndpoint),
		errors.Is(err, rewrite.ErrInvalidPath),
		errors.Is(err, permalink.ErrInvalidPattern):
		badRequest(c, err.Error())
	default:
		internalError(c, err)
	}
}
