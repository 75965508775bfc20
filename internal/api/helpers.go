package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"battle-arena/internal/apperr"
)

// writeErr maps domain failures to their HTTP shape. Anything that is not an
// apperr is an internal fault and stays opaque to the client.
func writeErr(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		c.JSON(ae.HTTP, gin.H{"error": ae.Message, "code": ae.Code})
		return
	}
	c.JSON(500, gin.H{"error": "internal error", "code": apperr.CodeInternal})
}
