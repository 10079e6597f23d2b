package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"sheetrelay/gateway/models"
)

// EvictFunc is called for every job the sweeper removes.
type EvictFunc func(job models.Job)

// Sweeper periodically evicts jobs older than the retention window.
type Sweeper struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	logger    *logrus.Logger
	onEvict   []EvictFunc
}

// NewSweeper creates a sweeper over store.
func NewSweeper(store *Store, retention, interval time.Duration, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// OnEvict registers a hook run after each eviction.
func (s *Sweeper) OnEvict(fn EvictFunc) {
	s.onEvict = append(s.onEvict, fn)
}

// SweepOnce evicts every expired job and returns how many were removed.
func (s *Sweeper) SweepOnce() int {
	cutoff := s.store.Now().Add(-s.retention)
	removed := s.store.Sweep(cutoff)
	for _, job := range removed {
		s.logger.WithFields(logrus.Fields{
			"job_id": job.ID,
			"status": job.Status,
			"age":    s.store.Now().Sub(job.UploadedAt).Round(time.Second).String(),
		}).Info("Cleaned up expired job")
		for _, fn := range s.onEvict {
			fn(job)
		}
	}
	return len(removed)
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Infof("Expiry sweeper started (retention %s, interval %s)", s.retention, s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if n := s.SweepOnce(); n > 0 {
				s.logger.Infof("Expiry sweep removed %d job(s), %d remaining", n, s.store.Len())
			}
		}
	}
}
