package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/logtally/internal/model"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 500
)

// Server provides a read-only HTTP API over the session history.
type Server struct {
	addr      string
	store     model.HistoryQuerier
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store model.HistoryQuerier) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/sessions", s.handleSessions)
	api.GET("/sessions/:id", s.handleSession)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the active listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	fileCount, err := s.store.FileCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"file_count": fileCount,
	})
}

type sessionJSON struct {
	ID        string    `json:"id"`
	Requests  int       `json:"requests"`
	Files     int       `json:"files"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at"`
	LastAt    time.Time `json:"last_at"`
}

func (s *Server) handleSessions(c *gin.Context) {
	limit := defaultSessionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSessionLimit)
	}

	sessions, err := s.store.RecentSessions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	out := make([]sessionJSON, 0, len(sessions))
	for _, si := range sessions {
		out = append(out, sessionJSON{
			ID:        si.SessionID,
			Requests:  si.Requests,
			Files:     si.Files,
			Total:     si.Total,
			StartedAt: si.StartedAt,
			LastAt:    si.LastAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

type fileJSON struct {
	Request   int            `json:"request"`
	Name      string         `json:"name"`
	Format    string         `json:"format,omitempty"`
	GroupBy   string         `json:"group_by,omitempty"`
	CountType string         `json:"count_type,omitempty"`
	Status    string         `json:"status"`
	Total     int            `json:"total"`
	Counts    map[string]int `json:"counts"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *Server) handleSession(c *gin.Context) {
	id := c.Param("id")

	files, err := s.store.SessionFiles(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session files"})
		return
	}
	if len(files) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	rows, err := s.store.SessionAggregates(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session aggregates"})
		return
	}

	type fileKey struct {
		request int
		name    string
	}
	counts := make(map[fileKey]map[string]int)
	for _, row := range rows {
		k := fileKey{row.RequestNo, row.FileName}
		if counts[k] == nil {
			counts[k] = make(map[string]int)
		}
		counts[k][row.Key] = row.Count
	}

	out := make([]fileJSON, 0, len(files))
	for _, f := range files {
		fc := counts[fileKey{f.RequestNo, f.FileName}]
		if fc == nil {
			fc = map[string]int{}
		}
		out = append(out, fileJSON{
			Request:   f.RequestNo,
			Name:      f.FileName,
			Format:    string(f.Format),
			GroupBy:   string(f.GroupBy),
			CountType: string(f.Count),
			Status:    f.Status,
			Total:     f.Total,
			Counts:    fc,
			CreatedAt: f.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "files": out})
}
