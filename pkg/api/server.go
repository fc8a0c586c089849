// Package api serves the status of one device or of a whole simulated
// warehouse over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
)

// Source is what the server reports on
type Source interface {
	IDs() []aggregate.DeviceID
	State(id aggregate.DeviceID) (*state.DeviceState, bool)
	GetStats() map[string]interface{}
}

// Device adapts a single device to a Source
type Device struct {
	St    *state.DeviceState
	Stats func() map[string]interface{}
}

func (d Device) IDs() []aggregate.DeviceID {
	return []aggregate.DeviceID{d.St.ID()}
}

func (d Device) State(id aggregate.DeviceID) (*state.DeviceState, bool) {
	if id != d.St.ID() {
		return nil, false
	}
	return d.St, true
}

func (d Device) GetStats() map[string]interface{} {
	if d.Stats == nil {
		return d.St.GetStats()
	}
	return d.Stats()
}

// Server is the HTTP status surface
type Server struct {
	port    int
	source  Source
	router  *gin.Engine
	server  *http.Server
	started time.Time
}

// NewServer creates a server for source. Metrics are gathered from g, or
// from the default registry when g is nil.
func NewServer(source Source, g prometheus.Gatherer, port int) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger))

	s := &Server{
		port:    port,
		source:  source,
		router:  r,
		started: time.Now(),
	}
	s.server = &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metrics http.Handler = promhttp.Handler()
	if g != nil {
		metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	s.setupRoutes(metrics)
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/state", s.handleStates)
	s.router.GET("/state/:id", s.handleState)
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/metrics", gin.WrapH(metrics))
}

// Handler returns the router, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called
func (s *Server) Start() error {
	log.Info().Str("component", "api").Int("port", s.port).Msg("server started")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting for requests in flight
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Str("component", "api").Int("port", s.port).Msg("stopping server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"devices": len(s.source.IDs()),
		"uptime":  time.Since(s.started).String(),
	})
}

func (s *Server) handleStates(c *gin.Context) {
	ids := s.source.IDs()
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.source.State(id); ok {
			out = append(out, st.GetStats())
		}
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

func (s *Server) handleState(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device id"})
		return
	}
	st, ok := s.source.State(aggregate.DeviceID(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, st.Snapshot())
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.GetStats())
}
