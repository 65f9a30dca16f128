package scheduler

import (
	"context"
	"fmt"

	"nflpred/pipeline/internal/config"
	"nflpred/pipeline/internal/features"
	"nflpred/pipeline/internal/syncer"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs the weekly pipeline: stage-to-prod sync, then modeling
// table assembly. Weekly because provider stat corrections land through the
// week; the Tuesday default catches the Monday night final.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *syncer.Orchestrator
	assembler    *features.Assembler
	cron         *cron.Cron
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.Config, orchestrator *syncer.Orchestrator, assembler *features.Assembler) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		assembler:    assembler,
		cron:         cron.New(),
	}
}

// Start registers the weekly job and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.WeeklySyncCron, func() {
		if err := s.RunPipeline(ctx); err != nil {
			log.Error().Err(err).Msg("Weekly pipeline run failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule weekly pipeline: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.WeeklySyncCron).
		Msg("Weekly pipeline scheduled")

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	log.Info().Msg("Scheduler stopped")
}

// RunPipeline executes one full sync + assemble cycle
func (s *Scheduler) RunPipeline(ctx context.Context) error {
	log.Info().Msg("Pipeline run starting")

	if _, err := s.orchestrator.Sync(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if _, err := s.assembler.Assemble(ctx, nil); err != nil {
		return fmt.Errorf("assembly failed: %w", err)
	}

	log.Info().Msg("Pipeline run complete")
	return nil
}
