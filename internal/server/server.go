// Package server exposes conversations over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// Catalog is the tool registry as seen by the API.
type Catalog interface {
	All() []engine.ToolDefinition
	Sync(ctx context.Context) ([]engine.ToolDefinition, error)
}

// OrchestratorFactory builds the orchestrator for a new session.
type OrchestratorFactory func(state *engine.ConversationState) (*engine.Orchestrator, error)

// Server holds one orchestrator per session. Sessions live in memory.
type Server struct {
	newOrchestrator OrchestratorFactory
	catalog         Catalog

	mu       sync.RWMutex
	sessions map[string]*engine.Orchestrator
}

func New(factory OrchestratorFactory, catalog Catalog) *Server {
	return &Server{
		newOrchestrator: factory,
		catalog:         catalog,
		sessions:        make(map[string]*engine.Orchestrator),
	}
}

// Router returns the gin engine serving the v1 API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", s.handleCreateSession)
		v1.POST("/sessions/:id/query", s.handleQuery)
		v1.GET("/sessions/:id/history", s.handleHistory)
		v1.DELETE("/sessions/:id/history", s.handleClearHistory)
		v1.GET("/tools", s.handleListTools)
		v1.POST("/tools/sync", s.handleSyncTools)
	}
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("👂 Listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) session(c *gin.Context) (*engine.Orchestrator, bool) {
	s.mu.RLock()
	o, ok := s.sessions[c.Param("id")]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	}
	return o, ok
}

type createSessionResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	o, err := s.newOrchestrator(engine.NewConversationState())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = o
	s.mu.Unlock()
	c.JSON(http.StatusCreated, createSessionResponse{ID: id})
}

type queryRequest struct {
	Query string `json:"query" binding:"required"`
}

type queryResponse struct {
	Text              string                `json:"text"`
	Status            engine.Status         `json:"status"`
	Rounds            int                   `json:"rounds"`
	Usage             engine.Usage          `json:"usage"`
	RoundMetrics      []engine.RoundMetrics `json:"round_metrics"`
	ToolsOffered      []string              `json:"tools_offered"`
	RetrievalFallback bool                  `json:"retrieval_fallback"`
	Termination       string                `json:"termination,omitempty"`
	SessionTotals     engine.Usage          `json:"session_totals"`
}

func (s *Server) handleQuery(c *gin.Context) {
	o, ok := s.session(c)
	if !ok {
		return
	}
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	resp, err := o.HandleQuery(c.Request.Context(), req.Query)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	out := queryResponse{
		Text:              resp.Text,
		Status:            resp.Status,
		Rounds:            resp.Rounds,
		Usage:             resp.Usage,
		RoundMetrics:      resp.RoundMetrics,
		ToolsOffered:      resp.ToolsOffered,
		RetrievalFallback: resp.RetrievalFallback,
		SessionTotals:     o.State().Totals(),
	}
	if resp.Termination != nil {
		out.Termination = resp.Termination.Error()
	}
	c.JSON(http.StatusOK, out)
}

// statusFor maps orchestrator errors onto HTTP status codes.
func statusFor(err error) int {
	var inferenceErr *engine.InferenceError
	switch {
	case errors.Is(err, engine.ErrQueryInProgress):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &inferenceErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type historyResponse struct {
	Messages []engine.ChatMessage `json:"messages"`
	Totals   engine.Usage         `json:"totals"`
}

func (s *Server) handleHistory(c *gin.Context) {
	o, ok := s.session(c)
	if !ok {
		return
	}
	st := o.State()
	messages := st.History()
	if messages == nil {
		messages = []engine.ChatMessage{}
	}
	c.JSON(http.StatusOK, historyResponse{Messages: messages, Totals: st.Totals()})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	o, ok := s.session(c)
	if !ok {
		return
	}
	if err := o.Clear(); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toolInfos(defs []engine.ToolDefinition) []toolInfo {
	out := make([]toolInfo, len(defs))
	for i, d := range defs {
		out[i] = toolInfo{Name: d.Name, Description: d.Description}
	}
	return out
}

func (s *Server) handleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": toolInfos(s.catalog.All())})
}

func (s *Server) handleSyncTools(c *gin.Context) {
	tools, err := s.catalog.Sync(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": len(tools), "tools": toolInfos(tools)})
}
