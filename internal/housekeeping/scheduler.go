// Package housekeeping runs the periodic, best-effort maintenance job that
// keeps the engine cache and manifest alias index fresh: recycling DB
// engines past the 1h pool recycle window, and re-deriving the manifest
// in case the file changed on disk. It is purely operational, never
// load-bearing for a single turn's correctness.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/shaharia-lab/tag-backend/internal/manifest"
	"github.com/shaharia-lab/tag-backend/internal/schema"
)

// Interval is how often the housekeeping job runs.
const Interval = 30 * time.Minute

// ManifestLoader reloads the schema manifest from disk, returning a fresh
// Catalog. Production wiring supplies a closure over manifest.Load and
// manifest.New.
type ManifestLoader func() *manifest.Catalog

// Scheduler runs the housekeeping job on a gocron schedule.
type Scheduler struct {
	cron      gocron.Scheduler
	inspector *schema.Inspector
	reload    ManifestLoader
	setCatalog func(*manifest.Catalog)
	logger    *slog.Logger
}

// New builds a Scheduler. inspector's engine cache is recycled every tick;
// reload re-reads the manifest file and setCatalog installs the result as
// the process-wide catalog (swapped atomically by the caller).
func New(inspector *schema.Inspector, reload ManifestLoader, setCatalog func(*manifest.Catalog), logger *slog.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	return &Scheduler{cron: cron, inspector: inspector, reload: reload, setCatalog: setCatalog, logger: logger}, nil
}

// Start registers the recurring job and starts the gocron scheduler.
func (s *Scheduler) Start(_ context.Context) error {
	_, err := s.cron.NewJob(gocron.DurationJob(Interval), gocron.NewTask(s.runOnce))
	if err != nil {
		return fmt.Errorf("scheduling housekeeping job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("housekeeping scheduler started", "interval", Interval)
	return nil
}

// Stop shuts down the gocron scheduler.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// runOnce recycles stale engines and reloads the manifest. Failures are
// logged, never propagated.
func (s *Scheduler) runOnce() {
	if s.inspector != nil {
		s.inspector.RecycleStale()
	}
	if s.reload == nil || s.setCatalog == nil {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Warn("housekeeping: manifest reload panicked", "recover", r)
			}
		}()
		catalog := s.reload()
		if catalog != nil {
			s.setCatalog(catalog)
			s.logger.Info("housekeeping: manifest alias index refreshed")
		}
	}()
}
