package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/service"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, service.ErrNoMedia):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSearchDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes a JSON error and records err on the context for the
// request logger.
func abortWithError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		_ = c.Error(err)
		body["error"] = message + ": " + err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}
