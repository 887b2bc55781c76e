package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mealwise"
	"mealwise/agents"
	"mealwise/workerpool"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultHistoryDays = 14

// fanOut submits one job per secondary agent to the pool. It never blocks:
// when the queue is full the job is dropped and counted. History is loaded
// once and shared by every job for the meal.
func (o *Orchestrator) fanOut(requestID string, meal mealwise.Meal, profile mealwise.Profile) {
	if o.deps.Pool == nil || len(o.deps.Secondary) == 0 {
		return
	}

	now := o.now()
	loadHistory := sync.OnceValues(func() (agents.History, error) {
		return o.loadHistory(meal, now)
	})

	for _, agent := range o.deps.Secondary {
		ok, err := o.deps.Pool.TrySubmit(func(ctx context.Context) {
			o.runSecondary(ctx, requestID, agent, meal, profile, now, loadHistory)
		})
		if ok {
			continue
		}
		o.metrics.secondaryDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("agent", agent.Name())))
		if errors.Is(err, workerpool.ErrClosed) {
			slog.Warn("ORCHESTRATOR: Pool closed, secondary agent skipped", "agent", agent.Name(), "request_id", requestID)
			continue
		}
		slog.Warn("ORCHESTRATOR: Secondary queue full, job dropped", "agent", agent.Name(), "request_id", requestID)
	}
}

func (o *Orchestrator) loadHistory(meal mealwise.Meal, now time.Time) (agents.History, error) {
	if o.deps.Store == nil || meal.UserID == "" {
		return agents.NewHistory([]mealwise.Meal{meal}, nil, now), nil
	}

	days := o.cfg.HistoryDays
	if days <= 0 {
		days = defaultHistoryDays
	}
	since := now.AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(context.Background(), o.storeTimeout())
	defer cancel()

	meals, err := o.deps.Store.LoadRecentMeals(ctx, meal.UserID, since)
	if err != nil {
		return agents.History{}, fmt.Errorf("failed to load meals: %w", err)
	}
	feedback, err := o.deps.Store.LoadFeedback(ctx, meal.UserID, since)
	if err != nil {
		return agents.History{}, fmt.Errorf("failed to load feedback: %w", err)
	}

	// The meal may not have been persisted.
	found := false
	for _, m := range meals {
		if m.ID == meal.ID {
			found = true
			break
		}
	}
	if !found {
		meals = append(meals, meal)
	}
	return agents.NewHistory(meals, feedback, now), nil
}

func (o *Orchestrator) storeTimeout() time.Duration {
	if o.cfg.StoreTimeout > 0 {
		return o.cfg.StoreTimeout
	}
	return 5 * time.Second
}

func (o *Orchestrator) runSecondary(
	ctx context.Context,
	requestID string,
	agent agents.SecondaryAgent,
	meal mealwise.Meal,
	profile mealwise.Profile,
	now time.Time,
	loadHistory func() (agents.History, error),
) {
	name := agent.Name()
	attrs := metric.WithAttributes(attribute.String("agent", name))
	o.metrics.secondaryRuns.Add(ctx, 1, attrs)

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Secondary."+name)
	defer span.End()

	if o.cfg.SecondaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.SecondaryTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := func() (res agents.SecondaryResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("secondary agent %s panicked: %v", name, r)
			}
		}()
		history, err := loadHistory()
		if err != nil {
			return res, err
		}
		return agent.Analyze(ctx, agents.SecondaryInput{
			Meal:    meal,
			History: history,
			Profile: profile,
			Now:     now,
		})
	}()

	rec := mealwise.StageRecord{
		RequestID:  requestID,
		Stage:      "secondary." + name,
		Timestamp:  o.now(),
		Input:      meal.ID,
		LatencyMs:  time.Since(start).Milliseconds(),
		Confidence: res.Confidence,
	}
	if err != nil {
		o.metrics.secondaryFailures.Add(ctx, 1, attrs)
		span.RecordError(err)
		rec.Error = err.Error()
		slog.Warn("ORCHESTRATOR: Secondary agent failed", "agent", name, "request_id", requestID, "error", err)
	} else {
		rec.Output = res.Output
		slog.Debug("ORCHESTRATOR: Secondary agent finished", "agent", name, "request_id", requestID, "confidence", res.Confidence)
	}
	if err := o.deps.Sink.Record(ctx, rec); err != nil {
		slog.Warn("ORCHESTRATOR: Trace sink failed", "stage", rec.Stage, "error", err)
	}

	if drift, ok := res.Output.(agents.DriftResult); ok && err == nil && drift.Notable() {
		o.notifyDrift(ctx, meal.UserID, drift)
	}
}

func (o *Orchestrator) notifyDrift(ctx context.Context, userID string, drift agents.DriftResult) {
	if o.deps.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("Pattern shift for user %s: %s (severity %.2f over %d days). %s",
		userID, drift.Type, drift.Severity, drift.DaysObserved, drift.Suggestion)
	if err := o.deps.Notifier.PostMessage(ctx, o.deps.NotifyChannel, msg); err != nil {
		slog.Warn("ORCHESTRATOR: Failed to post drift notification", "user_id", userID, "error", err)
		return
	}
	o.metrics.driftNotified.Add(ctx, 1)
}
