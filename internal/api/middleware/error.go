package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"iquitos-ems/internal/api/models"
)

// ErrorHandler turns panics into the JSON error envelope.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		msg := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			msg = s
		}
		log.Error().Str("component", "api").Str("path", c.Request.URL.Path).Str("panic", fmt.Sprint(recovered)).Msg("recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INTERNAL_ERROR",
				Message: msg,
			},
		})
	})
}

// NotFound answers unknown routes with the error envelope.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "no route for " + c.Request.Method + " " + c.Request.URL.Path,
			},
		})
	}
}
