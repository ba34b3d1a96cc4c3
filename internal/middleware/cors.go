package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS answers cross-origin requests for the configured origins. origins is consulted on
// every request so a config reload takes effect immediately. A "*" entry allows any origin.
func CORS(origins func() []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed, ok := allowOrigin(origins(), origin); ok {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func allowOrigin(allowed []string, origin string) (string, bool) {
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" {
			return "*", true
		}
		if origin != "" && strings.EqualFold(a, origin) {
			return origin, true
		}
	}
	return "", false
}
