package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/fracpack/internal/auth"
	"github.com/danmuck/fracpack/internal/config"
	"github.com/danmuck/fracpack/internal/observability"
	"github.com/danmuck/fracpack/internal/registry"
)

const version = "0.1.0"

// Server exposes a schema registry and the codec over HTTP.
type Server struct {
	Name            string
	Addr            string
	Appeared        time.Time
	Registry        *registry.Registry
	Strict          bool
	MaxMessageBytes int64

	router  *gin.Engine
	http    *http.Server
	ready   atomic.Bool
	writers auth.Validator
}

func New(cfg config.ServiceConfig, reg *registry.Registry) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:            cfg.Name,
		Addr:            cfg.Addr,
		Appeared:        time.Now(),
		Registry:        reg,
		Strict:          cfg.Strict,
		MaxMessageBytes: cfg.MaxMessageBytes,
		router:          r,
	}
	if len(cfg.AdminTokens) > 0 {
		s.writers = auth.Tokens(cfg.AdminTokens)
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// SetReady controls the /ready probe.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Serve listens on Addr until Shutdown is called.
func (s *Server) Serve() error {
	s.SetReady(true)
	log.Info().Str("service", s.Name).Str("addr", s.Addr).Msg("fracd listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	return s.http.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
