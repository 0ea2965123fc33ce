package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
)

type createAppRequest struct {
	Name string `json:"name"`
}

type updateAppRequest struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) ListApps(c *gin.Context) {
	apps, err := s.appSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": apps})
}

// CreateApp answers 201 only when Production was provisioned with the app.
// A missing Production is reported as an invariant violation; the app stays and is repaired later.
func (s *Server) CreateApp(c *gin.Context) {
	var req createAppRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.appSvc.Create(c.Request.Context(), appdomain.CreateRequest{Name: req.Name})
	if err != nil {
		if errors.Is(err, appdomain.ErrProductionProvisionFailed) && resp != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"data": resp,
				"error": errorPayload{
					Type:    "invariant_violation",
					Message: appdomain.ErrProductionProvisionFailed.Error(),
				},
			})
			_ = c.Error(err)
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetAppByID(c *gin.Context) {
	app, err := s.appSvc.GetByID(c.Request.Context(), param(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": app})
}

func (s *Server) UpdateApp(c *gin.Context) {
	var req updateAppRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsActive == nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "is_active is required"))
		return
	}

	app, err := s.appSvc.SetActive(c.Request.Context(), appdomain.SetActiveRequest{
		ID:       param(c, "id"),
		IsActive: *req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": app})
}

func (s *Server) EnsureProduction(c *gin.Context) {
	env, err := s.appSvc.EnsureProduction(c.Request.Context(), param(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": env})
}
