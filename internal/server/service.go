package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/fracpack/internal/config"
	"github.com/danmuck/fracpack/internal/registry"
)

const shutdownTimeout = 10 * time.Second

// Service runs fracd as a standalone process: it loads the registry from the
// snapshot and schema directory, serves HTTP and writes the snapshot back on
// shutdown.
type Service struct {
	cfg    config.ServiceConfig
	reg    *registry.Registry
	server *Server
}

func NewService(cfg config.ServiceConfig) (*Service, error) {
	if err := config.ValidateServiceConfig(cfg); err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	reg := registry.New(cfg.Customs(), policy)
	return &Service{cfg: cfg, reg: reg, server: New(cfg, reg)}, nil
}

func (s *Service) Server() *Server {
	return s.server
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.bootstrap(); err != nil {
		return err
	}
	return s.serve(ctx)
}

func (s *Service) bootstrap() error {
	if s.cfg.Snapshot != "" {
		err := s.reg.LoadFile(s.cfg.Snapshot)
		switch {
		case err == nil:
			log.Info().Str("snapshot", s.cfg.Snapshot).Int("schemas", len(s.reg.Names())).Msg("snapshot loaded")
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("snapshot", s.cfg.Snapshot).Msg("no snapshot yet")
		default:
			return fmt.Errorf("load snapshot: %w", err)
		}
	}
	if s.cfg.SchemaDir != "" {
		n, err := s.reg.LoadDir(s.cfg.SchemaDir)
		switch {
		case err == nil:
			log.Info().Str("dir", s.cfg.SchemaDir).Int("documents", n).Msg("schemas loaded")
		case errors.Is(err, os.ErrNotExist):
			log.Warn().Str("dir", s.cfg.SchemaDir).Msg("schema dir missing")
		default:
			return fmt.Errorf("load schemas: %w", err)
		}
	}
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Str("service", s.cfg.Name).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	if saveErr := s.saveSnapshot(); saveErr != nil {
		err = errors.Join(err, saveErr)
	}
	if serveErr := <-errCh; serveErr != nil {
		err = errors.Join(err, serveErr)
	}
	return err
}

func (s *Service) saveSnapshot() error {
	if s.cfg.Snapshot == "" {
		return nil
	}
	if err := s.reg.SaveFile(s.cfg.Snapshot); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	log.Info().Str("snapshot", s.cfg.Snapshot).Msg("snapshot saved")
	return nil
}
