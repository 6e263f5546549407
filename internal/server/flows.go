package server

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/pkg/api"
)

var (
	ErrListFlows     = errors.New("failed to list flows")
	ErrSaveFlow      = errors.New("failed to save flow")
	ErrGetFlow       = errors.New("failed to get flow")
	ErrDeleteFlow    = errors.New("failed to delete flow")
	ErrActivateFlow  = errors.New("failed to activate flow")
	ErrGetActiveFlow = errors.New("failed to get active flow")
)

var invalidFlowIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

func (s *Server) listFlows(c *gin.Context) {
	tenantID := api.TenantID(c.Param("tenantID"))

	flows, err := s.flows.List(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrListFlows, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.FlowsListResponse{
		Flows: flows,
		Count: len(flows),
	})
}

func (s *Server) saveFlow(c *gin.Context) {
	tenantID := api.TenantID(c.Param("tenantID"))

	var def api.FlowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	def.ID = sanitizeFlowID(string(def.ID))
	if def.ID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  "Valid Flow ID is required",
			Status: http.StatusBadRequest,
		})
		return
	}
	def.TenantID = tenantID

	if err := def.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusBadRequest,
		})
		return
	}
	if err := s.engine.CheckScripts(&def); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusBadRequest,
		})
		return
	}

	if err := s.flows.Save(c.Request.Context(), &def); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrSaveFlow, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, api.FlowSavedResponse{
		FlowID: def.ID,
	})
}

func (s *Server) getFlow(c *gin.Context) {
	tenantID := api.TenantID(c.Param("tenantID"))
	flowID := api.FlowID(c.Param("flowID"))

	def, err := s.flows.Get(c.Request.Context(), tenantID, flowID)
	if err == nil {
		c.JSON(http.StatusOK, def)
		return
	}

	if errors.Is(err, flow.ErrFlowNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetFlow, err),
		Status: http.StatusInternalServerError,
	})
}

func (s *Server) deleteFlow(c *gin.Context) {
	tenantID := api.TenantID(c.Param("tenantID"))
	flowID := api.FlowID(c.Param("flowID"))

	err := s.flows.Delete(c.Request.Context(), tenantID, flowID)
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	if errors.Is(err, flow.ErrFlowNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrDeleteFlow, err),
		Status: http.StatusInternalServerError,
	})
}

func (s *Server) activateFlow(c *gin.Context) {
	tenantID := api.TenantID(c.Param("tenantID"))
	flowID := api.FlowID(c.Param("flowID"))

	err := s.flows.Activate(c.Request.Context(), tenantID, flowID)
	if err == nil {
		c.JSON(http.StatusOK, api.FlowActivatedResponse{
			FlowID:   flowID,
			TenantID: tenantID,
		})
		return
	}

	if errors.Is(err, flow.ErrFlowNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrActivateFlow, err),
		Status: http.StatusInternalServerError,
	})
}

func (s *Server) getActiveFlow(c *gin.Context) {
	tenantID := api.TenantID(c.Param("tenantID"))

	def, err := s.flows.Active(c.Request.Context(), tenantID)
	if err == nil {
		c.JSON(http.StatusOK, def)
		return
	}

	if errors.Is(err, flow.ErrNoActiveFlow) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetActiveFlow, err),
		Status: http.StatusInternalServerError,
	})
}

func sanitizeFlowID(id string) api.FlowID {
	id = strings.ToLower(id)
	sanitized := invalidFlowIDChars.ReplaceAllString(id, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return api.FlowID(strings.Trim(sanitized, "-"))
}
