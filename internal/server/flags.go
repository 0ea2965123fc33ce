package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
)

type createFlagRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Type        flagdomain.FlagType     `json:"type"`
	EnumValues  []string                `json:"enum_values"`
	Defaults    flagdomain.SettingInput `json:"defaults"`
}

type updateFlagRequest struct {
	Description *string  `json:"description"`
	EnumValues  []string `json:"enum_values"`
}

type listFlagsQuery struct {
	UserID string `form:"user_id"`
}

func (s *Server) ListFlags(c *gin.Context) {
	flags, err := s.flagSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": flags})
}

// ListAppFlags lists an app's flags, narrowed to those naming user_id in a list when given.
func (s *Server) ListAppFlags(c *gin.Context) {
	var query listFlagsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var (
		flags []flagdomain.Flag
		err   error
	)
	if query.UserID != "" {
		flags, err = s.flagSvc.ListTargetingUser(c.Request.Context(), param(c, "id"), query.UserID)
	} else {
		flags, err = s.flagSvc.ListByApp(c.Request.Context(), param(c, "id"))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": flags})
}

func (s *Server) CreateFlag(c *gin.Context) {
	var req createFlagRequest
	if !bindJSON(c, &req) {
		return
	}

	flag, err := s.flagSvc.Create(c.Request.Context(), flagdomain.CreateRequest{
		AppID:       param(c, "id"),
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		EnumValues:  req.EnumValues,
		Defaults:    req.Defaults,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": flag})
}

func (s *Server) GetFlagByName(c *gin.Context) {
	flag, err := s.flagSvc.GetByName(c.Request.Context(), param(c, "id"), param(c, "name"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": flag})
}

func (s *Server) GetFlagByID(c *gin.Context) {
	flag, err := s.flagSvc.GetByID(c.Request.Context(), param(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": flag})
}

func (s *Server) UpdateFlag(c *gin.Context) {
	var req updateFlagRequest
	if !bindJSON(c, &req) {
		return
	}

	flag, err := s.flagSvc.Update(c.Request.Context(), flagdomain.UpdateRequest{
		ID:          param(c, "id"),
		Description: req.Description,
		EnumValues:  req.EnumValues,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": flag})
}

func (s *Server) DeleteFlag(c *gin.Context) {
	if err := s.flagSvc.Delete(c.Request.Context(), flagdomain.DeleteRequest{ID: param(c, "id")}); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ToggleFlag(c *gin.Context) {
	flag, err := s.flagSvc.Toggle(c.Request.Context(), flagdomain.ToggleRequest{
		FlagID:        param(c, "id"),
		EnvironmentID: param(c, "envId"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": flag})
}

func (s *Server) UpdateFlagSetting(c *gin.Context) {
	var setting flagdomain.SettingInput
	if !bindJSON(c, &setting) {
		return
	}

	flag, err := s.flagSvc.UpdateSetting(c.Request.Context(), flagdomain.UpdateSettingRequest{
		FlagID:        param(c, "id"),
		EnvironmentID: param(c, "envId"),
		Setting:       setting,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": flag})
}
