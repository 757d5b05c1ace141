// Package jobs runs in-process background work: a bounded queue drained by
// one worker plus fixed-interval schedules. Every run is counted and audited.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"carepay/internal/platform/metrics"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	queueSize = 128
)

type RunFunc func(context.Context) (any, error)

type Auditor interface {
	Record(ctx context.Context, tableName, recordID, action string, changes any)
}

type Service struct {
	Audit   Auditor
	Metrics *metrics.Metrics

	queue     chan job
	schedules []schedule
	wg        sync.WaitGroup
}

type job struct {
	Type string
	Run  RunFunc
}

type schedule struct {
	job
	interval time.Duration
}

func New(auditor Auditor, m *metrics.Metrics) *Service {
	return &Service{
		Audit:   auditor,
		Metrics: m,
		queue:   make(chan job, queueSize),
	}
}

// Every registers a job to be enqueued each interval once Start runs. A
// non-positive interval disables it.
func (s *Service) Every(jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		slog.Info("job schedule disabled", "jobType", jobType)
		return
	}
	s.schedules = append(s.schedules, schedule{job: job{Type: jobType, Run: run}, interval: interval})
}

// Start launches the worker and schedulers. They stop when ctx is done;
// Wait blocks until they have.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
	for _, sched := range s.schedules {
		sched := sched
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.schedule(ctx, sched)
		}()
	}
}

func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	started := time.Now()
	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	s.Metrics.RecordJobRun(j.Type, status)

	changes := map[string]any{
		"status":     status,
		"durationMs": time.Since(started).Milliseconds(),
		"details":    details,
	}
	if err != nil {
		changes["error"] = err.Error()
	}
	if s.Audit != nil {
		s.Audit.Record(ctx, "jobs", j.Type, "run", changes)
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, sched schedule) {
	ticker := time.NewTicker(sched.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sched.Type, sched.Run)
		}
	}
}
