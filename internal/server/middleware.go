package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderActor = "X-Actor"

	defaultMaxBodyBytes = 1 << 20
)

// MaxBodyBytes caps request bodies. Oversized bodies fail binding as invalid requests.
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// NoCache marks responses as uncacheable by intermediaries. Flag state changes at any time.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

func param(c *gin.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		AbortWithError(c, invalidRequestError())
		return false
	}
	return true
}
