package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxRequestBodySize limits request bodies to 1 MiB. Webhook payloads
// are small JSON documents; anything larger is not a legitimate
// delivery.
func MaxRequestBodySize() gin.HandlerFunc {
	const maxBodySize = 1 << 20 // 1 MiB
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
