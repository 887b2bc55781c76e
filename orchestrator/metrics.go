package orchestrator

import (
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the orchestrator's instruments. Creation errors are ignored.
type metrics struct {
	runs              metric.Int64Counter
	runsCompleted     metric.Int64Counter
	runsFailed        metric.Int64Counter
	runsCancelled     metric.Int64Counter
	degradedStages    metric.Int64Counter
	stageDuration     metric.Float64Histogram
	analysisDuration  metric.Float64Histogram
	confidence        metric.Float64Histogram
	foodsDetected     metric.Int64Histogram
	secondaryRuns     metric.Int64Counter
	secondaryFailures metric.Int64Counter
	secondaryDropped  metric.Int64Counter
	driftNotified     metric.Int64Counter
}

func newMetrics(meter metric.Meter) *metrics {
	m := &metrics{}
	m.runs, _ = meter.Int64Counter("analyses_total",
		metric.WithDescription("Total number of meal analyses started"))
	m.runsCompleted, _ = meter.Int64Counter("analyses_completed_total",
		metric.WithDescription("Total number of meal analyses that reached Responded"))
	m.runsFailed, _ = meter.Int64Counter("analyses_failed_total",
		metric.WithDescription("Total number of meal analyses that ended in Failed"))
	m.runsCancelled, _ = meter.Int64Counter("analyses_cancelled_total",
		metric.WithDescription("Total number of meal analyses abandoned by the caller"))
	m.degradedStages, _ = meter.Int64Counter("stages_degraded_total",
		metric.WithDescription("Total number of stage failures replaced by a safe default"))

	m.stageDuration, _ = meter.Float64Histogram("stage_duration_seconds",
		metric.WithDescription("Duration of individual pipeline stages in seconds"))
	m.analysisDuration, _ = meter.Float64Histogram("analysis_duration_seconds",
		metric.WithDescription("Total duration of a meal analysis in seconds"))
	m.confidence, _ = meter.Float64Histogram("analysis_confidence",
		metric.WithDescription("Overall confidence of completed analyses"))
	m.foodsDetected, _ = meter.Int64Histogram("foods_detected",
		metric.WithDescription("Number of foods detected per analysis"))

	m.secondaryRuns, _ = meter.Int64Counter("secondary_agent_runs_total",
		metric.WithDescription("Total number of secondary agent runs"))
	m.secondaryFailures, _ = meter.Int64Counter("secondary_agent_failures_total",
		metric.WithDescription("Total number of secondary agent runs that failed"))
	m.secondaryDropped, _ = meter.Int64Counter("secondary_jobs_dropped_total",
		metric.WithDescription("Total number of secondary agent jobs dropped because the queue was full"))
	m.driftNotified, _ = meter.Int64Counter("drift_notifications_total",
		metric.WithDescription("Total number of drift notifications posted"))
	return m
}
