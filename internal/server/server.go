package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/botflow/engine/internal/engine"
	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/internal/session"
	"github.com/botflow/engine/pkg/util"
)

// Server implements the HTTP API for flow management, event intake, and
// trace streaming
type Server struct {
	engine   *engine.Engine
	flows    *flow.Registry
	sessions *session.Store
	sockets  util.Set[*Client]
	mu       sync.Mutex
}

// NewServer creates a new HTTP API server
func NewServer(
	eng *engine.Engine, flows *flow.Registry, sessions *session.Store,
) *Server {
	return &Server{
		engine:   eng,
		flows:    flows,
		sessions: sessions,
		sockets:  util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	// Inbound event intake
	router.POST("/event", s.handleEvent)

	// Trace stream
	router.GET("/ws", s.handleWebSocket)

	// Tenant-scoped endpoints
	tenant := router.Group("/tenant/:tenantID")
	{
		// Flow catalog
		tenant.GET("/flow", s.listFlows)
		tenant.POST("/flow", s.saveFlow)
		tenant.GET("/flow/active", s.getActiveFlow)
		tenant.GET("/flow/:flowID", s.getFlow)
		tenant.DELETE("/flow/:flowID", s.deleteFlow)
		tenant.POST("/flow/:flowID/activate", s.activateFlow)

		// Sessions
		tenant.GET("/session/:userID", s.getSession)
		tenant.POST("/session/:userID/reset", s.resetSession)
		tenant.DELETE("/session/:userID", s.deleteSession)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
