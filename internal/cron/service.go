package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ErrLeaseLost aborts a cycle when another worker took over the lock.
var ErrLeaseLost = errors.New("cron lease lost")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the registered marketplace jobs on a fixed cadence, one
// worker instance at a time. The lease is extended before each job so a
// slow cycle keeps ownership.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// cycleReport summarises one pass over the registry.
type cycleReport struct {
	ran    int
	failed int
	rows   int64
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !held {
		s.logg.Debug(ctx, "cron lease held by another worker")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lease release failed", err)
		}
	}()

	var report cycleReport
	for i, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := s.keepLease(ctx); err != nil {
				return err
			}
		}
		rows, ok := s.runJob(ctx, job)
		report.ran++
		report.rows += rows
		if !ok {
			report.failed++
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_ran":    report.ran,
		"jobs_failed": report.failed,
		"rows":        report.rows,
	}), "cron cycle finished")
	return nil
}

func (s *Service) keepLease(ctx context.Context) error {
	ok, err := s.lock.Extend(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.IncLeaseLost()
		return ErrLeaseLost
	}
	return nil
}

// runJob reports the rows the job touched and whether it succeeded. A
// failing job never stops the cycle.
func (s *Service) runJob(ctx context.Context, job Job) (int64, bool) {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	start := time.Now()
	rows, err := job.Run(jobCtx)
	elapsed := time.Since(start)

	s.metrics.ObserveRun(name, elapsed, rows, err)
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms":   elapsed.Milliseconds(),
		"rows_affected": rows,
	})
	if err != nil {
		s.logg.Error(jobCtx, fmt.Sprintf("cron job %s failed", name), err)
		return rows, false
	}
	if rows > 0 {
		s.logg.Info(jobCtx, "cron job done")
	} else {
		s.logg.Debug(jobCtx, "cron job done")
	}
	return rows, true
}
