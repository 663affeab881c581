package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Func is a scheduled job.
type Func func(ctx context.Context)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used to report recovered job panics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

type job struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler runs named periodic and one-shot jobs.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	wg      sync.WaitGroup
	stopped bool
	logger  *slog.Logger

	// root parents every job so Stop also reaches one-shot jobs already running
	root     context.Context
	stopRoot context.CancelFunc
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	root, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:     make(map[string]*job),
		logger:   slog.New(slog.DiscardHandler),
		root:     root,
		stopRoot: stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every runs fn every interval until cancelled. The first run happens after one interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	j, err := s.add(name)
	if err != nil {
		return err
	}

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run(j.ctx, name, fn)
			case <-j.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// After runs fn once after delay unless cancelled first.
func (s *Scheduler) After(name string, delay time.Duration, fn Func) error {
	if delay < 0 {
		return ErrInvalidInterval
	}
	j, err := s.add(name)
	if err != nil {
		return err
	}

	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			s.release(name, j)
			s.run(j.ctx, name, fn)
		case <-j.ctx.Done():
		}
	}()
	return nil
}

// Cancel stops the named job. It reports whether the job existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	j.cancel()
	delete(s.jobs, name)
	return true
}

// Has reports whether the named job is pending or periodic.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every job and waits for running ones. Safe to call twice.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.stopped = true
	s.stopRoot()
	for name, j := range s.jobs {
		j.cancel()
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) add(name string) (*job, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	if prev, ok := s.jobs[name]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(s.root)
	j := &job{ctx: ctx, cancel: cancel}
	s.jobs[name] = j
	s.wg.Add(1)
	return j, nil
}

// release forgets a finished one-shot job unless it was already replaced.
func (s *Scheduler) release(name string, j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[name] == j {
		delete(s.jobs, name)
	}
}

func (s *Scheduler) run(ctx context.Context, name string, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked",
				slog.String("job", name),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(ctx)
}
