package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultAPIKeyHeader is the header checked when none is configured.
const DefaultAPIKeyHeader = "x-api-key"

const apiKeyRejectedMessage = "Unauthorized access: Invalid or missing API key."

// APIKeyMiddleware admits a request only when header carries exactly apiKey.
// An empty apiKey rejects every request, so a missing secret never opens the API.
func APIKeyMiddleware(header, apiKey string) gin.HandlerFunc {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	expected := []byte(apiKey)

	return func(c *gin.Context) {
		provided := c.GetHeader(header)
		if apiKey == "" || provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message": apiKeyRejectedMessage,
			})
			return
		}
		c.Next()
	}
}
