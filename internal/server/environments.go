package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
)

type createEnvironmentRequest struct {
	Name string `json:"name"`
}

func (s *Server) ListEnvironments(c *gin.Context) {
	envs, err := s.environmentSvc.List(c.Request.Context(), param(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": envs})
}

func (s *Server) CreateEnvironment(c *gin.Context) {
	var req createEnvironmentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.environmentSvc.Create(c.Request.Context(), envdomain.CreateRequest{
		AppID: param(c, "id"),
		Name:  req.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetEnvironmentByID(c *gin.Context) {
	env, err := s.environmentSvc.GetByID(c.Request.Context(), param(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": env})
}

func (s *Server) DeleteEnvironment(c *gin.Context) {
	resp, err := s.environmentSvc.Delete(c.Request.Context(), envdomain.DeleteRequest{ID: param(c, "id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
