package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/smallbiznis/flagship/internal/evaluation"
)

func (s *Server) Evaluate(c *gin.Context) {
	var req evaluation.Request
	if !bindJSON(c, &req) {
		return
	}

	result, err := s.evaluationSvc.Evaluate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// EvaluateAll answers with every decided flag. Flags that could not be decided
// are listed under "errors" next to the partial data.
func (s *Server) EvaluateAll(c *gin.Context) {
	var req evaluation.BatchRequest
	if !bindJSON(c, &req) {
		return
	}

	results, err := s.evaluationSvc.EvaluateAll(c.Request.Context(), req)
	if err != nil {
		var merr *multierror.Error
		if !errors.As(err, &merr) || results == nil {
			AbortWithError(c, err)
			return
		}
		messages := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			messages = append(messages, e.Error())
		}
		c.JSON(http.StatusOK, gin.H{"data": results, "errors": messages})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
}
