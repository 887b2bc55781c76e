// Package orchestrator runs a meal analysis through the core agents as an
// explicit state machine and fans the finished meal out to the secondary
// analytics agents.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mealwise"
	"mealwise/agents"
	"mealwise/confidence"
	"mealwise/workerpool"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	imageErrorMessage = "We couldn't process this image. Please try another photo."
	// degradedMessage replaces the coaching text when the foods or their
	// nutrition could not be worked out.
	degradedMessage = "We could only partly analyze this meal, so take these estimates as a loose guide. Every meal is still a chance to nourish yourself."
)

// Deps are the collaborators of an Orchestrator. Store, Archive, Pool and
// Notifier are optional.
type Deps struct {
	Vision          *agents.Vision
	Nutrition       *agents.Nutrition
	Personalization *agents.Personalization
	Wellness        *agents.Wellness
	Guardrail       *agents.Guardrail

	Store    mealwise.MealStore
	Archive  mealwise.Archive
	Sink     mealwise.TraceSink
	Pool     *workerpool.Pool
	Notifier mealwise.SlackClient

	Secondary     []agents.SecondaryAgent
	NotifyChannel string
}

type Orchestrator struct {
	deps       Deps
	cfg        mealwise.PipelineConfig
	aggregator *confidence.Aggregator
	tracer     trace.Tracer
	metrics    *metrics
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.metrics = newMetrics(m) }
}

func WithAggregator(a *confidence.Aggregator) Option {
	return func(o *Orchestrator) { o.aggregator = a }
}

// New validates deps and builds an orchestrator.
func New(deps Deps, cfg mealwise.PipelineConfig, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Vision == nil:
		return nil, errors.New("orchestrator: vision agent is required")
	case deps.Nutrition == nil:
		return nil, errors.New("orchestrator: nutrition agent is required")
	case deps.Personalization == nil:
		return nil, errors.New("orchestrator: personalization agent is required")
	case deps.Wellness == nil:
		return nil, errors.New("orchestrator: wellness agent is required")
	}
	if deps.Guardrail == nil {
		deps.Guardrail = agents.MustDefaultGuardrail()
	}
	if deps.Sink == nil {
		deps.Sink = mealwise.NewNoOpTraceSink()
	}

	o := &Orchestrator{
		deps:       deps,
		cfg:        cfg,
		aggregator: confidence.NewDefault(),
		tracer:     otel.Tracer(mealwise.TracerNameOrchestrator),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = newMetrics(otel.Meter(mealwise.MeterNameOrchestrator))
	}
	return o, nil
}

// run is the mutable state of one analysis.
type run struct {
	req      mealwise.AnalysisRequest
	sm       *machine
	trace    *mealwise.PipelineTrace
	resp     mealwise.AnalysisResponse
	degraded []string
	start    time.Time
}

func (r *run) degrade(stage string) {
	r.degraded = append(r.degraded, stage)
}

// coreDegraded reports whether the foods or their nutrition are unknown, in
// which case coaching text built on them must not reach the user.
func (r *run) coreDegraded() bool {
	for _, stage := range r.degraded {
		if stage == "vision" || stage == "nutrition" {
			return true
		}
	}
	return false
}

func (r *run) advance(to State) {
	if err := r.sm.advance(to); err != nil {
		// Only reachable through a programming error in this package.
		slog.Error("ORCHESTRATOR: State machine violation", "request_id", r.req.RequestID, "error", err)
	}
}

func (o *Orchestrator) newRun(req mealwise.AnalysisRequest) *run {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = o.now()
	}
	req.Barcode = strings.TrimSpace(req.Barcode)
	return &run{
		req:   req,
		sm:    newMachine(),
		trace: mealwise.NewPipelineTrace(req.RequestID),
		start: time.Now(),
		resp: mealwise.AnalysisResponse{
			RequestID:   req.RequestID,
			Suggestions: []string{},
			Disclaimer:  mealwise.Disclaimer,
		},
	}
}

// AnalyzeMeal runs the full pipeline for a meal photo. A request carrying a
// barcode and no image takes the barcode shortcut. With both, a barcode
// found in the photo wins over req.Barcode. The response is always
// populated; the error is non-nil only when ctx ended mid-run, in which case
// the response describes the stages completed so far.
func (o *Orchestrator) AnalyzeMeal(ctx context.Context, req mealwise.AnalysisRequest) (mealwise.AnalysisResponse, error) {
	if len(req.Image) == 0 && strings.TrimSpace(req.Barcode) != "" {
		return o.AnalyzeBarcode(ctx, req)
	}

	r := o.newRun(req)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.AnalyzeMeal", trace.WithAttributes(
		attribute.String("request_id", r.req.RequestID),
		attribute.String("user_id", r.req.UserID),
	))
	defer span.End()
	o.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "photo")))

	slog.Info("ORCHESTRATOR: Starting analysis", "request_id", r.req.RequestID, "user_id", r.req.UserID, "image_bytes", len(r.req.Image))

	if err := checkImage(r.req.Image); err != nil {
		span.SetStatus(codes.Error, "image decode failed")
		span.RecordError(err)
		return o.fail(ctx, r, err), nil
	}

	vision := runStage(ctx, o, r, "vision", o.cfg.VisionTimeout, mealwise.RedactImage(r.req.Image),
		func(sctx context.Context) mealwise.AgentResult[mealwise.VisionOutput] {
			return o.deps.Vision.Interpret(sctx, r.req.Image, r.req.ImageMIME, r.req.Context)
		})
	if !vision.Success {
		r.degrade("vision")
	}
	r.resp.Vision = vision
	r.advance(StateVisionDone)
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, err)
	}

	code := vision.Get().BarcodeDetected
	if code == "" {
		code = r.req.Barcode
	}
	if code != "" {
		r.advance(StateBarcodeBranch)
		nutrition, food := o.barcodeStage(ctx, r, code)
		if nutrition.Success {
			out := vision.Get()
			out.Foods = []mealwise.FoodItem{food}
			out.BarcodeDetected = code
			r.resp.Vision.Value = &out
			return o.finish(ctx, r, nutrition)
		}
		slog.Info("ORCHESTRATOR: Barcode not resolved, using photo branch", "request_id", r.req.RequestID, "barcode", code)
		r.degrade("barcode")
	}

	r.advance(StatePhotoBranch)
	foods := vision.Get().Foods
	nutrition := runStage(ctx, o, r, "nutrition", o.cfg.LookupTimeout*time.Duration(max(len(foods), 1)), foods,
		func(sctx context.Context) mealwise.AgentResult[mealwise.NutritionEstimate] {
			return o.deps.Nutrition.Estimate(sctx, foods)
		})
	return o.finish(ctx, r, nutrition)
}

// AnalyzeBarcode skips vision and resolves req.Barcode directly.
func (o *Orchestrator) AnalyzeBarcode(ctx context.Context, req mealwise.AnalysisRequest) (mealwise.AnalysisResponse, error) {
	r := o.newRun(req)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.AnalyzeBarcode", trace.WithAttributes(
		attribute.String("request_id", r.req.RequestID),
		attribute.String("barcode", r.req.Barcode),
	))
	defer span.End()
	o.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "barcode")))

	slog.Info("ORCHESTRATOR: Starting barcode analysis", "request_id", r.req.RequestID, "barcode", r.req.Barcode)

	if r.req.Barcode == "" {
		return o.fail(ctx, r, mealwise.NewDecodeError("barcode", "empty barcode", nil)), nil
	}

	r.advance(StateBarcodeBranch)
	nutrition, food := o.barcodeStage(ctx, r, r.req.Barcode)

	out := mealwise.VisionOutput{
		Foods:           []mealwise.FoodItem{},
		BarcodeDetected: r.req.Barcode,
		ContextApplied:  r.req.Context,
		AmbiguityScore:  1,
	}
	if nutrition.Success {
		out.Foods = []mealwise.FoodItem{food}
		out.AmbiguityScore = 0
	}
	r.resp.Vision = mealwise.Succeeded(out, confidence.ItemScore(out.Foods), 0)
	return o.finish(ctx, r, nutrition)
}

func (o *Orchestrator) barcodeStage(ctx context.Context, r *run, code string) (mealwise.AgentResult[mealwise.NutritionEstimate], mealwise.FoodItem) {
	var food mealwise.FoodItem
	res := runStage(ctx, o, r, "barcode", o.cfg.LookupTimeout, code,
		func(sctx context.Context) mealwise.AgentResult[mealwise.NutritionEstimate] {
			var res mealwise.AgentResult[mealwise.NutritionEstimate]
			res, food = o.deps.Nutrition.FromBarcode(sctx, code)
			return res
		})
	return res, food
}

// finish runs the stages shared by both branches, from NutritionDone to
// Responded.
func (o *Orchestrator) finish(ctx context.Context, r *run, nutrition mealwise.AgentResult[mealwise.NutritionEstimate]) (mealwise.AnalysisResponse, error) {
	if !nutrition.Success {
		r.degrade("nutrition")
	}
	r.resp.Nutrition = nutrition
	r.advance(StateNutritionDone)
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, err)
	}

	estimate := nutrition.Get()
	personalization := runStage(ctx, o, r, "personalization", o.cfg.StoreTimeout, estimate.Calories,
		func(sctx context.Context) mealwise.AgentResult[mealwise.PersonalizationContext] {
			return o.deps.Personalization.Personalize(sctx, agents.PersonalizationInput{
				UserID:    r.req.UserID,
				Profile:   r.req.Profile,
				Nutrition: estimate,
				Now:       r.req.ReceivedAt,
			})
		})
	status := mealwise.BalanceRoughlyAligned
	var daily string
	if personalization.Success {
		status = personalization.Get().BalanceStatus
		daily = personalization.Get().DailyContext
	} else {
		r.degrade("personalization")
	}
	r.resp.Personalization = personalization
	r.advance(StatePersonalizationDone)
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, err)
	}

	foods := r.resp.Vision.Get().Foods
	wellness := runStage(ctx, o, r, "wellness", o.cfg.TextTimeout, status,
		func(sctx context.Context) mealwise.AgentResult[mealwise.WellnessOutput] {
			return o.deps.Wellness.Coach(sctx, agents.WellnessInput{
				Foods:        foods,
				Nutrition:    estimate,
				Balance:      status,
				DailyContext: daily,
				Profile:      r.req.Profile,
			})
		})
	var coach mealwise.WellnessOutput
	if wellness.Success {
		coach = wellness.Get()
	} else {
		r.degrade("wellness")
		coach = mealwise.WellnessOutput{
			Message:         o.deps.Guardrail.Fallback(),
			Suggestions:     []string{},
			Emoji:           status.Emoji(),
			DisclaimerShown: true,
			Replaced:        true,
		}
	}
	if r.coreDegraded() {
		coach.Message = degradedMessage
		coach.Suggestions = []string{}
		coach.DisclaimerShown = true
	}
	r.resp.Wellness = wellness
	r.advance(StateWellnessDone)

	score := o.aggregator.Aggregate(r.resp.Vision, nutrition, personalization)
	r.advance(StateAggregated)
	r.trace.Append(mealwise.StageRecord{
		Stage:      "aggregate",
		Timestamp:  o.now(),
		Output:     score,
		Confidence: score.Overall,
	})

	r.resp.Confidence = score.Overall
	r.resp.Ambiguous = score.Ambiguous
	r.resp.Message = coach.Message
	r.resp.Emoji = coach.Emoji
	if coach.Suggestions != nil {
		r.resp.Suggestions = coach.Suggestions
	}
	r.resp.CreatedAt = r.req.ReceivedAt

	meal := mealwise.Meal{
		ID:            uuid.NewString(),
		UserID:        r.req.UserID,
		CreatedAt:     r.req.ReceivedAt,
		Context:       r.req.Context,
		Note:          r.req.Note,
		EnergyTag:     r.req.EnergyTag,
		Barcode:       r.resp.Vision.Get().BarcodeDetected,
		Foods:         foods,
		Nutrition:     estimate,
		BalanceStatus: status,
		Wellness:      coach,
		Confidence:    score.Overall,
		Ambiguous:     score.Ambiguous,
	}
	if o.persist(ctx, r, &meal) {
		r.resp.MealID = meal.ID
		r.advance(StatePersisted)
	}

	profile := mealwise.DefaultProfile()
	if r.req.Profile != nil {
		profile = *r.req.Profile
	}
	o.fanOut(r.req.RequestID, meal, profile)

	r.advance(StateResponded)
	r.resp.State = string(StateResponded)
	r.resp.Path = r.sm.pathStrings()
	r.resp.Degraded = len(r.degraded) > 0
	r.resp.DegradedStages = r.degraded

	o.metrics.runsCompleted.Add(ctx, 1)
	o.metrics.analysisDuration.Record(ctx, time.Since(r.start).Seconds())
	o.metrics.confidence.Record(ctx, score.Overall)
	o.metrics.foodsDetected.Record(ctx, int64(len(foods)))

	slog.Info("ORCHESTRATOR: Analysis complete",
		"request_id", r.req.RequestID,
		"meal_id", r.resp.MealID,
		"confidence", score.Overall,
		"status", status,
		"degraded", r.degraded,
		"duration", time.Since(r.start))
	return r.resp, nil
}

// persist stores the meal and archives its image and trace. Only the meal
// write decides the outcome; archive failures are logged.
func (o *Orchestrator) persist(ctx context.Context, r *run, meal *mealwise.Meal) bool {
	if o.deps.Store == nil || r.req.UserID == "" {
		return false
	}
	sctx, cancel := stageContext(ctx, o.cfg.StoreTimeout)
	defer cancel()

	if o.deps.Archive != nil && len(r.req.Image) > 0 {
		key := "images/" + meal.ID
		if err := o.deps.Archive.Put(sctx, key, r.req.Image, r.req.ImageMIME); err != nil {
			slog.Warn("ORCHESTRATOR: Failed to archive image", "meal_id", meal.ID, "error", err)
		} else {
			meal.ImageKey = key
		}
	}

	id, err := o.deps.Store.SaveMeal(sctx, *meal)
	if err != nil {
		slog.Error("ORCHESTRATOR: Failed to save meal", "request_id", r.req.RequestID, "error", err)
		r.degrade("persist")
		return false
	}
	meal.ID = id

	if o.deps.Archive != nil {
		data, err := json.Marshal(r.trace)
		if err == nil {
			err = o.deps.Archive.Put(sctx, fmt.Sprintf("traces/%s.json", id), data, "application/json")
		}
		if err != nil {
			slog.Warn("ORCHESTRATOR: Failed to archive trace", "meal_id", id, "error", err)
		}
	}
	return true
}

// fail ends the run in Failed. Only an unreadable input gets here.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) mealwise.AnalysisResponse {
	r.advance(StateFailed)
	o.metrics.runsFailed.Add(ctx, 1)
	o.record(ctx, r, "input", mealwise.RedactImage(r.req.Image), nil, 0, 0, err)

	slog.Warn("ORCHESTRATOR: Analysis failed", "request_id", r.req.RequestID, "error", err)

	r.resp.State = string(StateFailed)
	r.resp.Path = r.sm.pathStrings()
	r.resp.Vision = mealwise.Failed[mealwise.VisionOutput](err, 0)
	r.resp.Message = imageErrorMessage
	r.resp.Degraded = true
	r.resp.DegradedStages = []string{"input"}
	r.resp.CreatedAt = r.req.ReceivedAt
	return r.resp
}

// abort returns what has been computed so far once the caller has gone away.
func (o *Orchestrator) abort(ctx context.Context, r *run, err error) (mealwise.AnalysisResponse, error) {
	o.metrics.runsCancelled.Add(context.WithoutCancel(ctx), 1)
	slog.Warn("ORCHESTRATOR: Caller went away, discarding run", "request_id", r.req.RequestID, "state", r.sm.current)

	r.degrade("cancelled")
	r.resp.State = string(r.sm.current)
	r.resp.Path = r.sm.pathStrings()
	r.resp.Degraded = true
	r.resp.DegradedStages = r.degraded
	r.resp.Message = o.deps.Guardrail.Fallback()
	r.resp.CreatedAt = r.req.ReceivedAt
	return r.resp, fmt.Errorf("analysis %s abandoned in %s: %w", r.req.RequestID, r.sm.current, err)
}

// runStage calls one agent detached from the caller's cancellation but
// bounded by timeout, and records the outcome.
func runStage[T any](ctx context.Context, o *Orchestrator, r *run, name string, timeout time.Duration, input any, fn func(context.Context) mealwise.AgentResult[T]) mealwise.AgentResult[T] {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Stage."+name)
	defer span.End()

	sctx, cancel := stageContext(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := fn(sctx)
	if !res.Success && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		res.Error = mealwise.ErrTimeout
	}
	latency := time.Since(start)

	var stageErr error
	if !res.Success {
		stageErr = fmt.Errorf("%s: %s", res.Error, res.Detail)
		span.SetStatus(codes.Error, string(res.Error))
		o.metrics.degradedStages.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", name)))
		slog.Warn("ORCHESTRATOR: Stage failed", "request_id", r.req.RequestID, "stage", name, "kind", res.Error, "detail", res.Detail)
	}
	span.SetAttributes(attribute.Float64("confidence", res.Confidence), attribute.Bool("success", res.Success))
	o.metrics.stageDuration.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("stage", name)))

	var output any
	if res.Value != nil {
		output = *res.Value
	}
	o.record(ctx, r, name, input, output, latency, res.Confidence, stageErr)
	return res
}

// stageContext keeps values from ctx but not its cancellation.
func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, timeout)
}

func (o *Orchestrator) record(ctx context.Context, r *run, stage string, input, output any, latency time.Duration, conf float64, err error) {
	rec := mealwise.StageRecord{
		RequestID:  r.req.RequestID,
		Stage:      stage,
		Timestamp:  o.now(),
		Input:      input,
		Output:     output,
		LatencyMs:  latency.Milliseconds(),
		Confidence: conf,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	r.trace.Append(rec)
	if err := o.deps.Sink.Record(ctx, rec); err != nil {
		slog.Warn("ORCHESTRATOR: Trace sink failed", "stage", stage, "error", err)
	}
}
