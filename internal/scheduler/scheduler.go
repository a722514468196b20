package scheduler

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"marketdata/internal/cache"
)

// Scheduler runs the cache maintenance tasks on cron schedules: the
// expired-entry sweep (which also cleans orphaned payload files) and a
// periodic stats log line.
type Scheduler struct {
	Cron  *cron.Cron
	Cache *cache.Cache
}

// NewScheduler creates a maintenance scheduler for the given cache.
func NewScheduler(c *cache.Cache) *Scheduler {
	return &Scheduler{
		Cron:  cron.New(cron.WithSeconds()),
		Cache: c,
	}
}

// RegisterAll registers the sweep and stats tasks.
func (s *Scheduler) RegisterAll(sweepCron, statsCron string) error {
	if _, err := s.Cron.AddFunc(sweepCron, s.sweepTask); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	if _, err := s.Cron.AddFunc(statsCron, s.statsTask); err != nil {
		return fmt.Errorf("register stats task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] maintenance scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] maintenance scheduler stopped")
}

func (s *Scheduler) sweepTask() {
	if n := s.Cache.EvictExpired(); n > 0 {
		log.Printf("[INFO] maintenance sweep removed %d expired entries", n)
	}
}

func (s *Scheduler) statsTask() {
	st := s.Cache.Stats()
	log.Printf("[INFO] cache stats: %d entries, %d bytes, %d hits, %d misses, %d evictions",
		st.Entries, st.TotalSize, st.Hits, st.Misses, st.Evictions)
}
