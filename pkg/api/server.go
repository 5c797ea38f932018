package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/notebridge/marksync/pkg/agent"
	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/metrics"
	"github.com/notebridge/marksync/pkg/types"
)

// RedactedToken replaces profile tokens on config reads. A PUT that
// carries it back keeps the stored token, so a read-modify-write round
// trip does not wipe credentials.
const RedactedToken = "<redacted>"

// Server is the localhost control surface: the ops the popup UI and
// the CLI invoke, plus /metrics and /healthz.
type Server struct {
	agent  *agent.Agent
	http   *http.Server
	logger zerolog.Logger
}

// NewServer builds the server and its routes.
func NewServer(a *agent.Agent) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		agent:  a,
		logger: log.WithComponent("api"),
	}

	router := gin.New()
	router.Use(s.requestLog(), gin.Recovery())

	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.POST("/sync", s.postSync)
		v1.GET("/config", s.getConfig)
		v1.PUT("/config", s.putConfig)
		v1.GET("/events", s.getEvents)
		v1.DELETE("/events", s.clearEvents)

		v1.GET("/bookmarks", s.getTree)
		v1.POST("/bookmarks", s.createBookmark)
		v1.GET("/bookmarks/:id", s.getBookmark)
		v1.GET("/bookmarks/:id/children", s.getChildren)
		v1.PATCH("/bookmarks/:id", s.updateBookmark)
		v1.POST("/bookmarks/:id/move", s.moveBookmark)
		v1.DELETE("/bookmarks/:id", s.removeBookmark)
	}

	s.http = &http.Server{Handler: router}
	return s
}

// Start serves the control API; it blocks until Stop.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info().Str("addr", addr).Msg("Control API listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("Request handled")
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.agent.Status())
}

func (s *Server) postSync(c *gin.Context) {
	s.agent.Sync()
	c.JSON(http.StatusAccepted, gin.H{"status": "sync_triggered"})
}

func (s *Server) getConfig(c *gin.Context) {
	cfg := s.agent.Config()
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Token != "" {
			cfg.Profiles[i].Token = RedactedToken
		}
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) putConfig(c *gin.Context) {
	var cfg types.BridgeConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config payload"})
		return
	}

	current := s.agent.Config()
	stored := make(map[string]string, len(current.Profiles))
	for _, p := range current.Profiles {
		stored[p.ClientID] = p.Token
	}
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Token == RedactedToken {
			cfg.Profiles[i].Token = stored[cfg.Profiles[i].ClientID]
		}
	}

	if err := s.agent.SetConfig(&cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) getEvents(c *gin.Context) {
	events := s.agent.Events()
	if events == nil {
		events = []types.DebugEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) clearEvents(c *gin.Context) {
	s.agent.ClearEvents()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) getTree(c *gin.Context) {
	root, err := s.agent.Tree().GetTree()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, root)
}

func (s *Server) getBookmark(c *gin.Context) {
	node, err := s.agent.Tree().Get(c.Param("id"))
	if err != nil {
		s.treeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (s *Server) getChildren(c *gin.Context) {
	children, err := s.agent.Tree().GetChildren(c.Param("id"))
	if err != nil {
		s.treeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"children": children})
}

// CreateBookmarkRequest creates a bookmark (or, with an empty url, a
// folder) under a parent.
type CreateBookmarkRequest struct {
	ParentID string `json:"parentId" binding:"required"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Index    *int   `json:"index"`
}

func (s *Server) createBookmark(c *gin.Context) {
	var req CreateBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parentId is required"})
		return
	}
	node, err := s.agent.Tree().Create(req.ParentID, req.Title, req.URL, req.Index)
	if err != nil {
		s.treeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// UpdateBookmarkRequest rewrites title and/or url; absent fields are
// left untouched.
type UpdateBookmarkRequest struct {
	Title *string `json:"title"`
	URL   *string `json:"url"`
}

func (s *Server) updateBookmark(c *gin.Context) {
	var req UpdateBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload"})
		return
	}
	node, err := s.agent.Tree().Update(c.Param("id"), req.Title, req.URL)
	if err != nil {
		s.treeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// MoveBookmarkRequest reparents and/or repositions a node.
type MoveBookmarkRequest struct {
	ParentID string `json:"parentId" binding:"required"`
	Index    *int   `json:"index"`
}

func (s *Server) moveBookmark(c *gin.Context) {
	var req MoveBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parentId is required"})
		return
	}
	node, err := s.agent.Tree().Move(c.Param("id"), req.ParentID, req.Index)
	if err != nil {
		s.treeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (s *Server) removeBookmark(c *gin.Context) {
	id := c.Param("id")
	var err error
	if c.Query("recursive") == "true" {
		err = s.agent.Tree().RemoveTree(id)
	} else {
		err = s.agent.Tree().Remove(id)
	}
	if err != nil {
		s.treeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (s *Server) treeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bookmarks.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bookmarks.ErrNotFolder),
		errors.Is(err, bookmarks.ErrNotEmpty),
		errors.Is(err, bookmarks.ErrIsRoot),
		errors.Is(err, bookmarks.ErrCycle):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
