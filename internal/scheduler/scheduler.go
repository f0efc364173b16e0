// Package scheduler wires up the cron job that periodically triggers an
// ingestion run.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/ingest"
)

// Scheduler wraps robfig/cron and manages the ingestion loop.
type Scheduler struct {
	cron *cron.Cron
	orch *ingest.Orchestrator
	cfg  ingest.Config
	spec string // cron spec, e.g. "@every 6h"
}

// New creates a Scheduler that fires every intervalHours hours.
func New(orch *ingest.Orchestrator, cfg ingest.Config, intervalHours int) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cron.DefaultLogger)),
		orch: orch,
		cfg:  cfg,
		spec: fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the scheduler. Also runs one ingestion
// immediately so the tables are populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)

	// Run immediately on startup (non-blocking)
	go s.runOnce(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// runOnce executes a single ingestion run and logs its outcome.
func (s *Scheduler) runOnce(ctx context.Context) {
	log.Println("[scheduler] Ingestion cycle started")

	sum, err := s.orch.Run(ctx, s.cfg)
	if err != nil {
		log.Printf("[scheduler] Run error: %v", err)
		return
	}
	if sum.Aborted {
		log.Printf("[scheduler] Run aborted: %s", sum.Reason)
		return
	}

	log.Println("[scheduler] Ingestion cycle complete")
}
