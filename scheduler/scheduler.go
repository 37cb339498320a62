package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"pfsync/config"
	"pfsync/services"
)

// Scheduler drives periodic sync runs. It shares the RunGuard with the
// HTTP server, so a scheduled tick that lands during a manual run is
// skipped rather than stacked.
type Scheduler struct {
	cfg    *config.SchedulerConfig
	sync   *services.SyncService
	guard  *services.RunGuard
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
}

func New(cfg *config.SchedulerConfig, sync *services.SyncService, guard *services.RunGuard) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		sync:   sync,
		guard:  guard,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.runOnce(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runOnce(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}

	log.Println("No schedule configured, sync runs only on manual triggers")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.guard.TryAcquire() {
		log.Println("Scheduled sync skipped, another run is in progress")
		return
	}
	defer s.guard.Release()

	report, err := s.sync.Run(ctx)
	if err != nil {
		log.Printf("Scheduled sync error: %v", err)
		return
	}
	log.Printf("Scheduled sync done: %d processed, %d created, %d updated, %d skipped, %d failed in %dms",
		report.Processed, report.Created, report.Updated, report.Skipped, report.Failed, report.DurationMS)
}
