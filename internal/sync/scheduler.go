package sync

import (
	"context"
	gosync "sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one scheduled unit of work, usually an account sync.
type Job func(ctx context.Context) error

// Scheduler drives periodic syncs. A job whose previous run is still
// going is skipped, never overlapped: concurrent syncs of the same
// account are out of contract.
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Entry

	mu      gosync.Mutex
	running map[string]bool
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     logger.WithField("component", "scheduler"),
		running: make(map[string]bool),
	}
}

// Add registers the job under the given cron spec.
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		if s.running[name] {
			s.mu.Unlock()
			s.log.WithField("job", name).Warn("previous run still in progress, skipping")
			return
		}
		s.running[name] = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			delete(s.running, name)
			s.mu.Unlock()
		}()

		if err := job(context.Background()); err != nil {
			s.log.WithError(err).WithField("job", name).Error("scheduled sync failed")
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
