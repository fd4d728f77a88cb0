package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/ucan/internal/observability"
	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/dispatch"
	"github.com/danmuck/ucan/internal/protocol/handshake"
	"github.com/danmuck/ucan/internal/ucan"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Node is what the admin surface inspects.
type Node interface {
	Name() string
	Handle() *ucan.Handle
	Vars() *binding.Vars
}

type Server struct {
	node     Node
	router   *gin.Engine
	appeared time.Time
}

func New(node Node, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, "/health", "/ready", "/metrics"))
	r.Use(observability.RequestMetricsMiddleware(nodeLabel(node)))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{node: node, router: r, appeared: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin: listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("ucan.admin.serve listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/ready", s.ready)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/clients", s.clients)
	s.router.GET("/frames", s.frames)
	s.router.GET("/values", s.values)
	s.router.PUT("/values/:name", s.setValue)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.appeared).String(),
		"service": s.node.Name(),
		"version": version,
	})
}

func (s *Server) ready(c *gin.Context) {
	state, reason := s.node.Handle().State()
	body := gin.H{
		"ready":   state == ucan.StateStarted,
		"state":   state.String(),
		"service": s.node.Name(),
	}
	if reason != nil {
		body["reason"] = reason.Error()
	}
	status := http.StatusOK
	if state != ucan.StateStarted {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}

func (s *Server) clients(c *gin.Context) {
	reg := s.node.Handle().Registry()
	if reg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": protocol.ErrNotReady.Error()})
		return
	}
	clients := reg.Clients()
	out := make([]clientInfo, 0, len(clients))
	for _, cs := range clients {
		out = append(out, clientInfo{
			ID:           observability.NodeLabel(cs.ID),
			Status:       cs.Status,
			LastResponse: cs.LastResponse,
			Responded:    cs.Responded,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"role":    reg.Role().String(),
		"self_id": observability.NodeLabel(reg.SelfID()),
		"clients": out,
		"now":     s.node.Handle().Now(),
	})
}

type clientInfo struct {
	ID           string           `json:"id"`
	Status       handshake.Status `json:"status"`
	LastResponse handshake.Tick   `json:"last_response"`
	Responded    bool             `json:"responded"`
}

type frameInfo struct {
	ID    string `json:"id"`
	Len   uint8  `json:"len"`
	Bytes string `json:"bytes"`
}

func (s *Server) frames(c *gin.Context) {
	tx, rx := s.node.Handle().Tables()
	if tx == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": protocol.ErrNotReady.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tx": describe(tx),
		"rx": describe(rx),
	})
}

// describe renders each entry with its current payload.
func describe(t *dispatch.Table) []frameInfo {
	entries := t.Entries()
	out := make([]frameInfo, 0, len(entries))
	for i := range entries {
		f := entries[i].Read()
		out = append(out, frameInfo{
			ID:    observability.NodeLabel(f.ID),
			Len:   f.Len,
			Bytes: fmt.Sprintf("% X", f.Payload()),
		})
	}
	return out
}

func (s *Server) values(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"values": s.node.Vars().Snapshot()})
}

type setValueRequest struct {
	Value *uint32 `json:"value" binding:"required"`
}

func (s *Server) setValue(c *gin.Context) {
	name := c.Param("name")
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.node.Vars().Set(name, *req.Value); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, binding.ErrVarUnknown) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("name", name).Uint32("value", *req.Value).Msg("ucan.admin value set")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "name": name, "value": *req.Value})
}

func nodeLabel(node Node) string {
	if reg := node.Handle().Registry(); reg != nil {
		return observability.NodeLabel(reg.SelfID())
	}
	return strings.TrimSpace(node.Name())
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
