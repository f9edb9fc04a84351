package middleware

import "github.com/gin-gonic/gin"

// CacheControlMiddleware marks a response cacheable for the given number of
// seconds. Applied to the stats endpoint, which tolerates short staleness.
func CacheControlMiddleware(seconds string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "private, max-age="+seconds)
		c.Next()
	}
}
