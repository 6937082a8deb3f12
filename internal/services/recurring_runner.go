package services

import (
	"context"
	"errors"
	"log/slog"

	"household/internal/core"
	"household/internal/lock"
	"household/internal/metrics"
)

// ErrRunInProgress is returned when another generation run holds the lock.
var ErrRunInProgress = errors.New("recurring generation already running")

// Generator is the run-level contract shared by the worker and the HTTP trigger.
type Generator interface {
	Generate(ctx context.Context, today core.Date) (GenerateResult, error)
}

// RecurringRunner serializes generation runs behind a RunLock.
type RecurringRunner struct {
	generator Generator
	lock      lock.RunLock
	key       string
	metrics   *metrics.Metrics
}

func NewRecurringRunner(generator Generator, l lock.RunLock, m *metrics.Metrics) *RecurringRunner {
	return &RecurringRunner{
		generator: generator,
		lock:      l,
		key:       lock.RecurringRunKey("generate"),
		metrics:   m,
	}
}

// Run executes one generation pass unless another is already in flight.
func (r *RecurringRunner) Run(ctx context.Context, today core.Date) (GenerateResult, error) {
	release, err := r.lock.Acquire(ctx, r.key)
	if errors.Is(err, lock.ErrNotAcquired) {
		slog.WarnContext(ctx, "Skipping recurring run, another run holds the lock", "today", today.String())
		r.metrics.ObserveRun("skipped", 0, 0, 0)
		return GenerateResult{Errors: []string{}}, ErrRunInProgress
	}
	if err != nil {
		return GenerateResult{Errors: []string{}}, err
	}
	defer release()

	return r.generator.Generate(ctx, today)
}
