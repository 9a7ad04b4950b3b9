package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrInvalidInterval = errors.New("job interval must be positive")

type job struct {
	entry cron.EntryID
	timer *time.Timer
}

// Scheduler runs recurring jobs on cron and one-shot jobs on timers. Jobs are addressed by an
// opaque id that can be passed to Cancel.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu       sync.Mutex
	jobs     map[string]job
	stopOnce sync.Once
	stopped  bool
}

// New creates a stopped scheduler. Recurring jobs never overlap themselves: a run that is
// still going when the next one is due makes cron skip the next one.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		jobs:   make(map[string]job),
	}
}

// Start begins running registered jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop cancels pending one-shot jobs and waits for running recurring jobs. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		for id, j := range s.jobs {
			if j.timer != nil {
				j.timer.Stop()
				delete(s.jobs, id)
			}
		}
		s.mu.Unlock()

		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.logger.Info("scheduler stopped")
	})
}

// Every runs fn every interval until cancelled
func (s *Scheduler) Every(interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.cron.AddFunc("@every "+interval.String(), fn)
	if err != nil {
		return "", fmt.Errorf("schedule every %s: %w", interval, err)
	}
	id := uuid.NewString()
	s.jobs[id] = job{entry: entry}
	s.logger.Debug("recurring job registered", zap.String("job_id", id), zap.Duration("interval", interval))
	return id, nil
}

// At runs fn once at when. A job whose time has passed runs immediately. A job that has run is
// deregistered.
func (s *Scheduler) At(when time.Time, fn func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	if s.stopped {
		s.logger.Warn("scheduler stopped, one-shot job dropped", zap.String("job_id", id))
		return id
	}

	delay := max(time.Until(when), 0)
	s.jobs[id] = job{timer: time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, pending := s.jobs[id]
		delete(s.jobs, id)
		s.mu.Unlock()
		if pending {
			fn()
		}
	})}
	s.logger.Debug("one-shot job registered", zap.String("job_id", id), zap.Time("at", when))
	return id
}

// Cancel removes a job. It reports false when the id is unknown or the job already ran.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	delete(s.jobs, id)
	if j.timer != nil {
		j.timer.Stop()
	} else {
		s.cron.Remove(j.entry)
	}
	return true
}

// Pending returns the number of registered jobs
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// cronLogger routes cron's own logging to zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
