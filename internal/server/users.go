package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/flagship/internal/user/domain"
)

type identifyUserRequest struct {
	ExternalID string         `json:"external_id"`
	Metadata   map[string]any `json:"metadata"`
}

type updateUserRequest struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.userSvc.ListByApp(c.Request.Context(), param(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *Server) IdentifyUser(c *gin.Context) {
	var req identifyUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.userSvc.Identify(c.Request.Context(), userdomain.IdentifyRequest{
		AppID:      param(c, "id"),
		ExternalID: req.ExternalID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) GetUserByExternalID(c *gin.Context) {
	user, err := s.userSvc.GetByExternalID(c.Request.Context(), param(c, "id"), param(c, "externalId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) GetUserByID(c *gin.Context) {
	user, err := s.userSvc.GetByID(c.Request.Context(), param(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsActive == nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "is_active is required"))
		return
	}

	user, err := s.userSvc.SetActive(c.Request.Context(), userdomain.SetActiveRequest{
		ID:       param(c, "id"),
		IsActive: *req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}
