package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/botflow/engine/pkg/api"
)

var (
	ErrInvalidJSON = errors.New("invalid JSON in request body")
)

// handleEvent accepts one inbound delivery from the messaging transport and
// queues it for processing. Deliveries without an event ID get one minted so
// duplicate suppression still applies downstream
func (s *Server) handleEvent(c *gin.Context) {
	var ev api.InboundEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	if ev.TenantID == "" || ev.UserID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  "tenant_id and user_id are required",
			Status: http.StatusBadRequest,
		})
		return
	}

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	s.engine.Submit(&ev)

	c.JSON(http.StatusAccepted, api.EventAcceptedResponse{
		EventID: ev.EventID,
	})
}
