package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botflow/engine/pkg/api"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status: "ok",
	})
}
