package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"household/internal/core"
	"household/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxPerRun caps how many occurrences one rule may materialize in a
// single run.
const DefaultMaxPerRun = 100

// RuleSource lists the rules a run should consider.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]core.RecurringRule, error)
}

// OccurrenceWriter persists occurrence n of a rule and advances its counter
// from n to n+1 in one atomic step.
type OccurrenceWriter interface {
	GenerateOccurrence(ctx context.Context, rule core.RecurringRule, n int, date core.Date) (core.Transaction, error)
}

type RecurringStore interface {
	RuleSource
	OccurrenceWriter
}

// TransactionPublisher announces newly stored transactions.
type TransactionPublisher interface {
	PublishTransactionSync(ctx context.Context, t core.Transaction) error
}

type GeneratorConfig struct {
	MaxPerRun   int
	Concurrency int
}

// GenerateResult is the outcome of one run. Errors holds one
// "<ruleID>: <detail>" entry per abandoned rule, in listing order.
type GenerateResult struct {
	Generated int      `json:"generated"`
	Errors    []string `json:"errors"`
}

// RecurringGenerator materializes due occurrences of active rules.
type RecurringGenerator struct {
	store     RecurringStore
	publisher TransactionPublisher
	metrics   *metrics.Metrics
	cfg       GeneratorConfig
}

// NewRecurringGenerator builds a generator. publisher and m may be nil.
func NewRecurringGenerator(store RecurringStore, publisher TransactionPublisher, m *metrics.Metrics, cfg GeneratorConfig) *RecurringGenerator {
	if cfg.MaxPerRun <= 0 {
		cfg.MaxPerRun = DefaultMaxPerRun
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &RecurringGenerator{
		store:     store,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
	}
}

type ruleOutcome struct {
	generated int
	err       error
}

// Generate materializes every occurrence due on or before today.
//
// Each rule resumes from its stored occurrence counter and advances it by one
// per stored transaction, so repeated runs with the same today are no-ops. A
// failing occurrence abandons only its own rule for this run; the rule retries
// from the same counter next time. Only a failure to list rules aborts the run.
func (g *RecurringGenerator) Generate(ctx context.Context, today core.Date) (GenerateResult, error) {
	start := time.Now()
	result := GenerateResult{Errors: []string{}}

	rules, err := g.store.ListActiveRules(ctx)
	if err != nil {
		g.metrics.ObserveRun("failed", 0, 0, time.Since(start))
		return result, fmt.Errorf("list active rules: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring rules",
		"total_active", len(rules),
		"today", today.String(),
		"concurrency", g.cfg.Concurrency)

	outcomes := make([]ruleOutcome, len(rules))
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for i, rule := range rules {
		i, rule := i, rule
		eg.Go(func() error {
			n, err := g.processRule(ctx, rule, today)
			outcomes[i] = ruleOutcome{generated: n, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	for i, o := range outcomes {
		result.Generated += o.generated
		if o.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rules[i].ID, o.err))
		}
	}

	status := "ok"
	if len(result.Errors) > 0 {
		status = "partial"
	}
	elapsed := time.Since(start)
	g.metrics.ObserveRun(status, result.Generated, len(result.Errors), elapsed)

	slog.InfoContext(ctx, "Recurring generation complete",
		"generated", result.Generated,
		"errors", len(result.Errors),
		"rules", len(rules),
		"duration", elapsed)

	return result, nil
}

// processRule walks one rule forward from its counter. It returns how many
// occurrences were stored before stopping and the error that stopped it, if any.
func (g *RecurringGenerator) processRule(ctx context.Context, rule core.RecurringRule, today core.Date) (int, error) {
	generated := 0
	n := rule.OccurrenceCount

	for i := 0; i < g.cfg.MaxPerRun; i++ {
		due := core.DueDate(rule.StartDate, rule.Frequency, n)
		if due.After(today) {
			return generated, nil
		}
		if rule.EndDate != nil && due.After(*rule.EndDate) {
			return generated, nil
		}
		if rule.MaxOccurrences != nil && n >= *rule.MaxOccurrences {
			return generated, nil
		}
		if err := ctx.Err(); err != nil {
			return generated, err
		}

		// The atomic step must finish once started, even if the run is cancelled.
		tx, err := g.store.GenerateOccurrence(context.WithoutCancel(ctx), rule, n, due)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to generate occurrence",
				"rule_id", rule.ID,
				"occurrence", n,
				"due", due.String(),
				"error", err)
			return generated, err
		}

		generated++
		n++
		g.publish(ctx, tx)
	}

	slog.WarnContext(ctx, "Per-run ceiling reached",
		"rule_id", rule.ID,
		"ceiling", g.cfg.MaxPerRun,
		"next_occurrence", n)
	return generated, nil
}

func (g *RecurringGenerator) publish(ctx context.Context, tx core.Transaction) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.PublishTransactionSync(ctx, tx); err != nil {
		// The transaction is stored; the mirror sweep picks it up later.
		slog.ErrorContext(ctx, "Failed to publish generated transaction",
			"transaction_id", tx.ID,
			"error", err)
	}
}
