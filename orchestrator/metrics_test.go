package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"mealwise"
	"mealwise/agents"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				if len(attrs) == 0 || dp.Attributes.Equals(&want) {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func TestAnalyzeMeal_Instrumentation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	f := newFixture(t)
	f.gen.WithError(agents.WellnessSchemaName, errors.New("throttled"))
	o, err := New(f.deps, mealwise.PipelineConfig{}, WithClock(func() time.Time { return testNow }),
		WithMeter(mp.Meter("test")), WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
	require.NoError(t, err)
	require.Equal(t, string(StateResponded), resp.State)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(1), counterValue(t, rm, "analyses_total", attribute.String("kind", "photo")))
	assert.Equal(t, int64(1), counterValue(t, rm, "analyses_completed_total"))
	assert.Equal(t, int64(1), counterValue(t, rm, "stages_degraded_total", attribute.String("stage", "wellness")))
	assert.Zero(t, counterValue(t, rm, "stages_degraded_total", attribute.String("stage", "vision")))
	assert.Zero(t, counterValue(t, rm, "analyses_failed_total"))

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "Orchestrator.AnalyzeMeal")
	for _, stage := range []string{"vision", "nutrition", "personalization", "wellness"} {
		assert.Contains(t, names, "Orchestrator.Stage."+stage)
	}
}
