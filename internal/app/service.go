// Package app assembles the API process: HTTP server, lease sweeper and
// their shared dependencies.
package app

import (
	"context"
	"errors"
	stdhttp "net/http"

	"asset-pipeline/internal/config"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/http"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/queue"
	"asset-pipeline/internal/repository/postgres"
)

const serverAddrPrefix = ":"

type Service struct {
	config    *config.Config
	log       *logger.Logger
	db        *postgres.DB
	server    *http.Server
	sweeper   *queue.Sweeper
	closeLock func() error
}

// Run serves HTTP and sweeps expired leases until ctx is cancelled, then
// shuts the server down within the configured timeout.
func (s *Service) Run(ctx context.Context) error {
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go s.sweeper.Run(sweepCtx)

	serverErr := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "port", s.config.Server.Port)
		if err := s.server.Start(serverAddrPrefix + s.config.Server.Port); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.log.Info("server exited gracefully")
	return nil
}

func (s *Service) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx)
}

func (s *Service) SweepOnce(ctx context.Context) (job.SweepResult, error) {
	return s.sweeper.SweepOnce(ctx)
}

func (s *Service) Close() {
	if s.closeLock != nil {
		if err := s.closeLock(); err != nil {
			s.log.Warn("failed to close redis client", "error", err)
		}
	}
	s.db.Close()
}
