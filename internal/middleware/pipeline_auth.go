package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	apperrors "creditflow/internal/errors"
)

// PipelineAuthMiddleware creates a Gin middleware that checks the X-API-Key
// header against the configured bcrypt hash of the pipeline key.
func PipelineAuthMiddleware(apiKeyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKeyHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "Pipeline endpoints are not configured", "code": "PIPELINE_NOT_CONFIGURED"})
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" || bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(key)) != nil {
			c.AbortWithStatusJSON(apperrors.ErrInvalidAPIKey.StatusCode,
				gin.H{"error": apperrors.ErrInvalidAPIKey.Message, "code": apperrors.ErrInvalidAPIKey.Code})
			return
		}
		c.Next()
	}
}
