package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the origins listed in ALLOWED_ORIGINS
// (comma-separated). With no list configured every origin is allowed,
// which is only intended for development.
func CORSMiddleware() gin.HandlerFunc {
	allowed := strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allow := os.Getenv("ALLOWED_ORIGINS") == ""
		for _, o := range allowed {
			if strings.TrimSpace(o) == origin && origin != "" {
				allow = true
				break
			}
		}
		if allow && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		} else if allow {
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
