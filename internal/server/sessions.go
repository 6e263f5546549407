package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botflow/engine/pkg/api"
)

var (
	ErrGetSession    = errors.New("failed to get session")
	ErrResetSession  = errors.New("failed to reset session")
	ErrDeleteSession = errors.New("failed to delete session")
)

func (s *Server) getSession(c *gin.Context) {
	key := sessionParam(c)

	sess, err := s.sessions.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrGetSession, err),
			Status: http.StatusInternalServerError,
		})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("session not found: %s", key),
			Status: http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, sess)
}

// resetSession returns the session to idle and clears its variables
// without discarding it
func (s *Server) resetSession(c *gin.Context) {
	key := sessionParam(c)

	sess, err := s.sessions.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrResetSession, err),
			Status: http.StatusInternalServerError,
		})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("session not found: %s", key),
			Status: http.StatusNotFound,
		})
		return
	}

	sess.Reset()
	if err := s.sessions.Save(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrResetSession, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c *gin.Context) {
	key := sessionParam(c)

	if err := s.sessions.Delete(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrDeleteSession, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.Status(http.StatusNoContent)
}

func sessionParam(c *gin.Context) api.SessionKey {
	return api.SessionKey{
		Tenant: api.TenantID(c.Param("tenantID")),
		User:   api.UserID(c.Param("userID")),
	}
}
