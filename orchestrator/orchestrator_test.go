package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"mealwise"
	"mealwise/agents"
	"mealwise/fooddata"
	"mealwise/provider/mock"
	"mealwise/storage"
	"mealwise/workerpool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)

type fakeResolver struct {
	names map[string]mealwise.NutritionEstimate
	codes map[string]mealwise.NutritionEstimate
}

func (f *fakeResolver) Lookup(_ context.Context, q fooddata.Query) (mealwise.NutritionEstimate, error) {
	if est, ok := f.names[q.Name]; ok && q.Name != "" {
		return est, nil
	}
	if est, ok := f.codes[q.Barcode]; ok && q.Barcode != "" {
		return est, nil
	}
	return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("fake", q.Key())
}

func per100g(kcal float64) mealwise.NutritionEstimate {
	return mealwise.NutritionEstimate{
		Calories: mealwise.Band(kcal, 0.1),
		Macros: mealwise.Macros{
			Protein: mealwise.Band(kcal/20, 0.1),
			Carbs:   mealwise.Band(kcal/10, 0.1),
			Fat:     mealwise.Band(kcal/50, 0.1),
		},
		Source:   mealwise.SourcePrimary,
		PerGrams: 100,
	}
}

func newResolver() *fakeResolver {
	return &fakeResolver{
		names: map[string]mealwise.NutritionEstimate{
			"grilled chicken breast": per100g(165),
			"brown rice":             per100g(112),
			"steamed broccoli":       per100g(35),
		},
		codes: map[string]mealwise.NutritionEstimate{
			"0123456789012": {
				Name:     "Granola Bar",
				Calories: mealwise.Range{Min: 190, Max: 210},
				Macros:   mealwise.Macros{Protein: mealwise.Range{Min: 4, Max: 5}},
				Source:   mealwise.SourceFallback,
				Serving:  "1 bar (40 g)",
			},
		},
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []mealwise.StageRecord
}

func (s *recordingSink) Record(_ context.Context, rec mealwise.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) stage(name string) (mealwise.StageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Stage == name {
			return r, true
		}
	}
	return mealwise.StageRecord{}, false
}

type fakeSlack struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeSlack) PostMessage(_ context.Context, _ string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

type fixture struct {
	gen      *mock.LLMClient
	resolver *fakeResolver
	store    *storage.MemoryStore
	archive  *storage.MemoryArchive
	sink     *recordingSink
	guard    *agents.Guardrail
	deps     Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gen:      mock.NewLLMClient(),
		resolver: newResolver(),
		store:    storage.NewMemoryStore(),
		archive:  storage.NewMemoryArchive(),
		sink:     &recordingSink{},
		guard:    agents.MustDefaultGuardrail(),
	}
	f.deps = Deps{
		Vision:          agents.NewVision(f.gen),
		Nutrition:       agents.NewNutrition(f.resolver, 0),
		Personalization: agents.NewPersonalization(f.store, agents.DefaultPolicy{}),
		Wellness:        agents.NewWellness(f.gen, f.guard),
		Guardrail:       f.guard,
		Store:           f.store,
		Archive:         f.archive,
		Sink:            f.sink,
	}
	return f
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(f.deps, mealwise.PipelineConfig{
		VisionTimeout: time.Second,
		TextTimeout:   time.Second,
		LookupTimeout: time.Second,
		StoreTimeout:  time.Second,
		HistoryDays:   14,
	}, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return o
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func photoRequest(t *testing.T) mealwise.AnalysisRequest {
	return mealwise.AnalysisRequest{
		UserID:     "u1",
		Image:      pngImage(t),
		ImageMIME:  "image/png",
		Context:    mealwise.ContextHomemade,
		ReceivedAt: testNow,
	}
}

func TestNew_RequiresAgents(t *testing.T) {
	f := newFixture(t)
	deps := f.deps
	deps.Wellness = nil

	_, err := New(deps, mealwise.PipelineConfig{})
	assert.ErrorContains(t, err, "wellness")
}

func TestAnalyzeMeal(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
	require.NoError(t, err)

	assert.Equal(t, string(StateResponded), resp.State)
	assert.Equal(t, []string{
		"Received", "VisionDone", "PhotoBranch", "NutritionDone",
		"PersonalizationDone", "WellnessDone", "Aggregated", "Persisted", "Responded",
	}, resp.Path)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, resp.MealID)
	assert.False(t, resp.Degraded)
	assert.Empty(t, resp.DegradedStages)
	assert.Equal(t, mealwise.Disclaimer, resp.Disclaimer)

	require.True(t, resp.Vision.Success)
	assert.Len(t, resp.Vision.Get().Foods, 3)
	require.True(t, resp.Nutrition.Success)
	assert.True(t, resp.Nutrition.Get().IsValid())
	assert.Greater(t, resp.Nutrition.Get().Calories.Min, 0.0)
	require.True(t, resp.Personalization.Success)
	require.True(t, resp.Wellness.Success)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, resp.Personalization.Get().BalanceStatus.Emoji(), resp.Emoji)
	assert.Greater(t, resp.Confidence, 0.5)

	meals, err := f.store.LoadRecentMeals(context.Background(), "u1", testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Equal(t, resp.MealID, meals[0].ID)
	assert.Equal(t, "images/"+resp.MealID, meals[0].ImageKey)
	assert.Equal(t, resp.Nutrition.Get().Calories, meals[0].Nutrition.Calories)

	assert.Equal(t, []string{"images/" + resp.MealID, "traces/" + resp.MealID + ".json"}, f.archive.Keys())

	for _, stage := range []string{"vision", "nutrition", "personalization", "wellness"} {
		rec, ok := f.sink.stage(stage)
		require.True(t, ok, "missing trace record for %s", stage)
		assert.Equal(t, resp.RequestID, rec.RequestID)
		assert.Empty(t, rec.Error)
	}
	vision, _ := f.sink.stage("vision")
	assert.Contains(t, vision.Input, "image(", "raw image bytes never reach the trace")
}

func TestAnalyzeMeal_WellnessFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.gen.WithError(agents.WellnessSchemaName, errors.New("throttled"))
	o := f.orchestrator(t)

	resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
	require.NoError(t, err)

	assert.Equal(t, string(StateResponded), resp.State)
	assert.False(t, resp.Wellness.Success)
	assert.Equal(t, mealwise.ErrProvider, resp.Wellness.Error)
	assert.True(t, resp.Degraded)
	assert.Equal(t, []string{"wellness"}, resp.DegradedStages)
	assert.Equal(t, f.guard.Fallback(), resp.Message)
	assert.NotEmpty(t, resp.Emoji)
	assert.True(t, resp.Nutrition.Success, "earlier stages are kept")

	rec, ok := f.sink.stage("wellness")
	require.True(t, ok)
	assert.Contains(t, rec.Error, "ProviderError")
}

func TestAnalyzeMeal_VisionFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.gen.WithError(agents.VisionSchemaName, errors.New("model unavailable"))
	o := f.orchestrator(t)

	resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
	require.NoError(t, err)

	assert.Equal(t, string(StateResponded), resp.State)
	assert.False(t, resp.Vision.Success)
	assert.Contains(t, resp.DegradedStages, "vision")
	assert.True(t, resp.Ambiguous)
	assert.Less(t, resp.Confidence, 0.4)
	assert.Equal(t, degradedMessage, resp.Message, "coaching on unknown foods is not shown")
	assert.Empty(t, resp.Suggestions)
}

func TestAnalyzeMeal_UndecodableImage(t *testing.T) {
	tests := []struct {
		name  string
		image []byte
	}{
		{name: "text", image: []byte("definitely not an image")},
		{name: "truncated png", image: pngImage(t)[:12]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.orchestrator(t)
			req := photoRequest(t)
			req.Image = tt.image

			resp, err := o.AnalyzeMeal(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, string(StateFailed), resp.State)
			assert.Equal(t, []string{"Received", "Failed"}, resp.Path)
			assert.Equal(t, imageErrorMessage, resp.Message)
			assert.Zero(t, resp.Confidence)
			assert.Equal(t, mealwise.ErrDecode, resp.Vision.Error)
			assert.Equal(t, mealwise.Disclaimer, resp.Disclaimer)
			assert.Zero(t, f.gen.Calls(agents.VisionSchemaName), "no agent runs after a decode failure")

			meals, err := f.store.LoadRecentMeals(context.Background(), "u1", time.Time{})
			require.NoError(t, err)
			assert.Empty(t, meals)
		})
	}
}

func TestAnalyzeBarcode(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	resp, err := o.AnalyzeMeal(context.Background(), mealwise.AnalysisRequest{
		UserID:     "u1",
		Barcode:    "0123456789012",
		ReceivedAt: testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, string(StateResponded), resp.State)
	assert.Equal(t, []string{
		"Received", "BarcodeBranch", "NutritionDone", "PersonalizationDone",
		"WellnessDone", "Aggregated", "Persisted", "Responded",
	}, resp.Path)
	assert.Zero(t, f.gen.Calls(agents.VisionSchemaName))

	foods := resp.Vision.Get().Foods
	require.Len(t, foods, 1)
	assert.Equal(t, "Granola Bar", foods[0].Name)
	assert.True(t, foods[0].Synthetic)

	est := resp.Nutrition.Get()
	assert.Equal(t, mealwise.Range{Min: 190, Max: 210}, est.Calories)
	assert.Equal(t, mealwise.Range{Min: 4, Max: 5}, est.Macros.Protein)
	assert.Equal(t, mealwise.SourceSyntheticBarcode, est.Source)
	assert.Equal(t, []string{"traces/" + resp.MealID + ".json"}, f.archive.Keys(), "no image is archived")
}

func TestAnalyzeBarcode_Unknown(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	resp, err := o.AnalyzeBarcode(context.Background(), mealwise.AnalysisRequest{UserID: "u1", Barcode: "999", ReceivedAt: testNow})
	require.NoError(t, err)

	assert.Equal(t, string(StateResponded), resp.State)
	assert.False(t, resp.Nutrition.Success)
	assert.Equal(t, mealwise.ErrNotFound, resp.Nutrition.Error)
	assert.Contains(t, resp.DegradedStages, "nutrition")
	assert.Empty(t, resp.Vision.Get().Foods)
	assert.Equal(t, 1.0, resp.Vision.Get().AmbiguityScore)
	assert.True(t, resp.Ambiguous)
	assert.Less(t, resp.Confidence, 0.05)
	assert.Equal(t, degradedMessage, resp.Message)
	assert.Empty(t, resp.Suggestions)
}

func TestAnalyzeMeal_ImageWithBarcode(t *testing.T) {
	tests := []struct {
		name         string
		barcode      string
		wantPath     []string
		wantFoods    []string
		wantDegraded []string
	}{
		{
			name:      "request barcode used when the photo shows none",
			barcode:   "0123456789012",
			wantPath:  []string{"Received", "VisionDone", "BarcodeBranch", "NutritionDone"},
			wantFoods: []string{"Granola Bar"},
		},
		{
			name:         "unknown request barcode falls back to the photo",
			barcode:      "999",
			wantPath:     []string{"Received", "VisionDone", "BarcodeBranch", "PhotoBranch", "NutritionDone"},
			wantFoods:    []string{"grilled chicken breast", "brown rice", "steamed broccoli"},
			wantDegraded: []string{"barcode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.orchestrator(t)
			req := photoRequest(t)
			req.Barcode = tt.barcode

			resp, err := o.AnalyzeMeal(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, string(StateResponded), resp.State)
			assert.Equal(t, tt.wantPath, resp.Path[:len(tt.wantPath)])
			assert.Equal(t, 1, f.gen.Calls(agents.VisionSchemaName))
			var names []string
			for _, food := range resp.Vision.Get().Foods {
				names = append(names, food.Name)
			}
			assert.Equal(t, tt.wantFoods, names)
			assert.Equal(t, tt.wantDegraded, resp.DegradedStages)
		})
	}
}

func TestAnalyzeMeal_BarcodeInPhoto(t *testing.T) {
	tests := []struct {
		name         string
		barcode      string
		wantPath     []string
		wantFood     string
		wantDegraded []string
	}{
		{
			name:     "resolved barcode replaces detected foods",
			barcode:  "0123456789012",
			wantPath: []string{"Received", "VisionDone", "BarcodeBranch", "NutritionDone"},
			wantFood: "Granola Bar",
		},
		{
			name:         "unknown barcode falls back to the photo",
			barcode:      "4006381333931",
			wantPath:     []string{"Received", "VisionDone", "BarcodeBranch", "PhotoBranch", "NutritionDone"},
			wantFood:     "oat cookie",
			wantDegraded: []string{"barcode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.gen.WithResponse(agents.VisionSchemaName,
				`{"foods":[{"name":"oat cookie","portion":"1 piece","confidence":"medium"}],"barcode_detected":"`+tt.barcode+`","image_ambiguity":"low"}`)
			o := f.orchestrator(t)

			resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
			require.NoError(t, err)

			assert.Equal(t, tt.wantPath, resp.Path[:len(tt.wantPath)])
			assert.Equal(t, string(StateResponded), resp.State)
			require.NotEmpty(t, resp.Vision.Get().Foods)
			assert.Equal(t, tt.wantFood, resp.Vision.Get().Foods[0].Name)
			assert.Equal(t, tt.wantDegraded, resp.DegradedStages)
		})
	}
}

func TestAnalyzeMeal_ConfidenceTracksResolution(t *testing.T) {
	run := func(drop string) float64 {
		f := newFixture(t)
		delete(f.resolver.names, drop)
		o := f.orchestrator(t)
		resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
		require.NoError(t, err)
		return resp.Confidence
	}

	all := run("")
	missing := run("steamed broccoli")
	assert.Greater(t, all, missing, "an unresolved food lowers confidence")
}

func TestAnalyzeMeal_CallerCancelled(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := o.AnalyzeMeal(ctx, photoRequest(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, string(StateVisionDone), resp.State)
	assert.True(t, resp.Vision.Success, "the in-flight stage completes")
	assert.Contains(t, resp.DegradedStages, "cancelled")
	assert.Empty(t, resp.MealID)

	meals, err := f.store.LoadRecentMeals(context.Background(), "u1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, meals)
}

type fakeAgent struct {
	name  string
	mu    sync.Mutex
	calls int
	input agents.SecondaryInput
	panic bool
}

func (a *fakeAgent) Name() string { return a.name }

func (a *fakeAgent) Analyze(_ context.Context, in agents.SecondaryInput) (agents.SecondaryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.input = in
	if a.panic {
		panic("boom")
	}
	return agents.SecondaryResult{Agent: a.name, Confidence: 0.9, Output: "ok"}, nil
}

func (a *fakeAgent) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestAnalyzeMeal_SecondaryFanOut(t *testing.T) {
	f := newFixture(t)
	for d := 6; d >= 1; d-- {
		_, err := f.store.SaveMeal(context.Background(), mealwise.Meal{
			UserID:    "u1",
			CreatedAt: testNow.AddDate(0, 0, -d),
			Nutrition: mealwise.NutritionEstimate{Calories: mealwise.Range{Min: 500, Max: 600}},
		})
		require.NoError(t, err)
	}

	recorder := &fakeAgent{name: "recorder"}
	panicky := &fakeAgent{name: "panicky", panic: true}
	slack := &fakeSlack{}
	pool := workerpool.New(2, 10)
	pool.Start()

	f.deps.Pool = pool
	f.deps.Secondary = []agents.SecondaryAgent{recorder, panicky, agents.DriftDetector{}}
	f.deps.Notifier = slack
	f.deps.NotifyChannel = "#alerts"
	o := f.orchestrator(t)

	resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
	require.NoError(t, err)
	require.NoError(t, pool.Close(context.Background()))

	assert.Equal(t, 1, recorder.count())
	assert.Equal(t, resp.MealID, recorder.input.Meal.ID)
	assert.Len(t, recorder.input.History.Meals, 7, "history includes the new meal")
	assert.Equal(t, testNow, recorder.input.Now)

	rec, ok := f.sink.stage("secondary.recorder")
	require.True(t, ok)
	assert.Equal(t, "ok", rec.Output)

	rec, ok = f.sink.stage("secondary.panicky")
	require.True(t, ok)
	assert.Contains(t, rec.Error, "panicked")

	rec, ok = f.sink.stage("secondary.drift_detector")
	require.True(t, ok)
	drift, ok := rec.Output.(agents.DriftResult)
	require.True(t, ok)
	assert.Equal(t, agents.DriftMealSkipping, drift.Type)

	slack.mu.Lock()
	defer slack.mu.Unlock()
	require.Len(t, slack.messages, 1)
	assert.Contains(t, slack.messages[0], "meal_skipping")
	assert.Contains(t, slack.messages[0], "u1")
}

func TestAnalyzeMeal_SecondaryQueueFull(t *testing.T) {
	f := newFixture(t)
	a, b, c := &fakeAgent{name: "a"}, &fakeAgent{name: "b"}, &fakeAgent{name: "c"}

	// Not started: the single queue slot fills and the rest are dropped.
	pool := workerpool.New(1, 1)
	f.deps.Pool = pool
	f.deps.Secondary = []agents.SecondaryAgent{a, b, c}
	o := f.orchestrator(t)

	resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
	require.NoError(t, err)
	assert.Equal(t, string(StateResponded), resp.State, "dropped jobs never affect the response")

	require.NoError(t, pool.Close(context.Background()))
	assert.Equal(t, 1, a.count())
	assert.Zero(t, b.count())
	assert.Zero(t, c.count())
}

func TestAnalyzeMeal_NoStore(t *testing.T) {
	f := newFixture(t)
	f.deps.Store = nil
	f.deps.Archive = nil
	f.deps.Personalization = agents.NewPersonalization(nil, agents.DefaultPolicy{})
	o := f.orchestrator(t)

	resp, err := o.AnalyzeMeal(context.Background(), photoRequest(t))
	require.NoError(t, err)

	assert.Equal(t, string(StateResponded), resp.State)
	assert.NotContains(t, resp.Path, "Persisted")
	assert.Empty(t, resp.MealID)
	assert.False(t, resp.Degraded)
}
