package handlers

import (
	"github.com/gin-gonic/gin"

	"iquitos-ems/internal/api/models"
)

func writeError(c *gin.Context, status int, code, message string, details map[string]any) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
