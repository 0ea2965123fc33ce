package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunReconcile runs one repair pass synchronously and reports what it fixed.
func (s *Server) RunReconcile(c *gin.Context) {
	if s.reconciler == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	summary, err := s.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"data": summary, "errors": []string{err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}
