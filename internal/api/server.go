package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"echo-manor/internal/director"
	"echo-manor/internal/generation"
	"echo-manor/internal/psyche"
	"echo-manor/internal/session"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Server exposes the session boundary over HTTP and WebSocket.
type Server struct {
	manager *session.Manager
	logger  *log.Logger

	// WebSocket upgrader
	upgrader websocket.Upgrader
}

// NewServer wraps the session manager in an HTTP surface.
func NewServer(manager *session.Manager, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The host client terminates auth in front of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the gin handler tree.
func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	engine.GET("/healthz", s.handleHealthz)

	api := engine.Group("/api")
	{
		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions/:id/state", s.handleState)
		api.POST("/sessions/:id/actions", s.handleAction)
		api.POST("/sessions/:id/triggers", s.handleTrigger)
		api.POST("/sessions/:id/generate", s.handleGenerate)
		api.POST("/sessions/:id/analyze", s.handleAnalyze)
		api.GET("/sessions/:id/events", s.handleEvents)
		api.GET("/sessions/:id/save", s.handleGetSave)
		api.PUT("/sessions/:id/save", s.handlePutSave)
		api.DELETE("/sessions/:id", s.handleDeleteSession)
	}

	return engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.manager.Count()})
}

type createSessionRequest struct {
	Seed int64 `json:"seed"`
}

type createSessionResponse struct {
	SessionID string         `json:"session_id"`
	State     director.State `json:"state"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	sess, err := s.manager.Create(req.Seed)
	if err != nil {
		s.logger.Printf("[API] create session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return
	}

	c.JSON(http.StatusOK, createSessionResponse{
		SessionID: sess.ID,
		State:     sess.Director.State(),
	})
}

// lookup resolves the :id parameter or writes the 404 itself.
func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) handleState(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Director.State())
}

type actionRequest struct {
	ChoiceType string `json:"choice_type" binding:"required"`
	Target     string `json:"target"`
	Room       string `json:"room"`
	Theme      string `json:"theme"`
}

func (s *Server) handleAction(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "choice_type required"})
		return
	}

	sess.Director.OnPlayerAction(director.Action{
		ChoiceType: req.ChoiceType,
		Target:     req.Target,
		Room:       req.Room,
		Theme:      req.Theme,
	})

	c.JSON(http.StatusOK, sess.Director.State())
}

type triggerRequest struct {
	Name      string  `json:"name" binding:"required"`
	Intensity float64 `json:"intensity"`
}

func (s *Server) handleTrigger(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	sess.Director.OnTrigger(req.Name, req.Intensity)
	c.JSON(http.StatusOK, sess.Director.State())
}

type generateRequest struct {
	Prompt           string   `json:"prompt" binding:"required"`
	ContextType      string   `json:"context_type"`
	RequiredElements []string `json:"required_elements"`
	MaxTokens        int      `json:"max_tokens"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt required"})
		return
	}

	res, err := sess.Director.Orchestrator().Generate(c.Request.Context(), generation.Request{
		Prompt:           req.Prompt,
		ContextType:      generation.ContextType(req.ContextType),
		RequiredElements: req.RequiredElements,
		MaxTokens:        req.MaxTokens,
	})
	if err != nil {
		c.JSON(generateStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

// generateStatus maps pipeline failures onto HTTP statuses the host can
// act on: retry later, fix the request, or give up.
func generateStatus(err error) int {
	var vErr *generation.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generation.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, generation.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleAnalyze(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	if err := sess.Director.AnalyzeProfile(c.Request.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, psyche.ErrMalformedAnalysis) || errors.Is(err, psyche.ErrAnalysisRange) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sess.Director.State())
}

func (s *Server) handleGetSave(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Director.Profile().Snapshot())
}

func (s *Server) handlePutSave(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	var snap psyche.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot"})
		return
	}

	sess.Director.Profile().Restore(snap)
	c.JSON(http.StatusOK, sess.Director.State())
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.manager.Stop(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// handleEvents upgrades to WebSocket and streams content events.
func (s *Server) handleEvents(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("[API] websocket upgrade failed: %v", err)
		return
	}

	s.logger.Printf("[API] event stream opened for session %s", sess.ID)
	s.streamEvents(sess, conn)
	s.logger.Printf("[API] event stream closed for session %s", sess.ID)
}

// streamEvents runs the write pump: content events out, periodic pings
// to keep the connection alive. The reader is drained only to notice
// the client going away.
func (s *Server) streamEvents(sess *session.Session, conn *websocket.Conn) {
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-sess.Done():
			return
		case ev := <-sess.Director.Events():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Printf("[API] event write failed for session %s: %v", sess.ID, err)
				return
			}
		case <-ticker.C:
			conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
		}
	}
}
