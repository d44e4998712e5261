// Package retention runs the background sweep that enforces
// config.RetentionConfig: hard-deleting soft-deleted plan/deliverable rows
// past their grace period, and trimming the Observability Bus's durable
// sink past its TTL.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentgov/pipeline/pkg/config"
)

// Purger is the subset of the Artifact Store the sweep needs. Declared
// here, implemented by *pkg/store.Store directly.
type Purger interface {
	PurgeSoftDeleted(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeObservabilityEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// Service periodically enforces retention policy. All operations are
// idempotent and safe to run from multiple replicas.
type Service struct {
	cfg    config.RetentionConfig
	purger Purger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new retention service. Start does nothing if
// cfg.Enabled is false.
func NewService(cfg config.RetentionConfig, purger Purger) *Service {
	return &Service{cfg: cfg, purger: purger}
}

// Start launches the background sweep loop. A no-op if the service is
// disabled or already started.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.Enabled || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("retention service started",
		"deleted_retention", s.cfg.DeletedRetention,
		"observability_ttl", s.cfg.ObservabilityTTL,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.purgeSoftDeleted(ctx)
	s.purgeObservabilityEvents(ctx)
}

func (s *Service) purgeSoftDeleted(ctx context.Context) {
	count, err := s.purger.PurgeSoftDeleted(ctx, time.Now().Add(-s.cfg.DeletedRetention))
	if err != nil {
		slog.Error("retention: purging soft-deleted artifacts failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: purged soft-deleted artifacts", "count", count)
	}
}

func (s *Service) purgeObservabilityEvents(ctx context.Context) {
	count, err := s.purger.PurgeObservabilityEvents(ctx, time.Now().Add(-s.cfg.ObservabilityTTL))
	if err != nil {
		slog.Error("retention: purging observability events failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: purged observability events", "count", count)
	}
}
