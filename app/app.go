// Package app wires configuration, providers, storage and agents into a
// ready-to-serve pipeline. Every command builds its runtime through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"mealwise"
	"mealwise/agents"
	"mealwise/barcode"
	"mealwise/fooddata"
	"mealwise/orchestrator"
	"mealwise/provider"
	"mealwise/provider/bedrock"
	"mealwise/provider/mock"
	"mealwise/provider/ollama"
	"mealwise/slack"
	"mealwise/storage"
	"mealwise/summary"
	"mealwise/tools"
	"mealwise/transport"
	"mealwise/workerpool"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
)

type Config struct {
	Model    mealwise.ModelConfig
	Pipeline mealwise.PipelineConfig
	FoodData mealwise.FoodDataConfig
	Storage  mealwise.StorageConfig
	Server   mealwise.ServerConfig
	Notify   mealwise.NotifyConfig
}

// LoadConfig decodes every config section from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	for _, target := range []any{&cfg.Model, &cfg.Pipeline, &cfg.FoodData, &cfg.Storage, &cfg.Server, &cfg.Notify} {
		if err := envdecode.Decode(target); err != nil {
			return Config{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return cfg, nil
}

// App holds the wired runtime.
type App struct {
	Config       Config
	Orchestrator *orchestrator.Orchestrator
	Store        mealwise.MealStore
	Archive      mealwise.Archive
	Summaries    *summary.Service
	Tools        *tools.Registry
	Slack        mealwise.SlackClient

	pool    *workerpool.Pool
	traces  *mealwise.AsyncTraceSink
	closers []func() error
}

type Option func(*options)

type options struct {
	sink      mealwise.TraceSink
	store     mealwise.MealStore
	generator provider.Generator
	http      mealwise.HTTPClient
	orchOpts  []orchestrator.Option
}

// WithTraceSink sets where stage records go. The default discards them.
// Records are delivered from a background goroutine; Close and FlushTraces
// wait for them.
func WithTraceSink(s mealwise.TraceSink) Option {
	return func(o *options) { o.sink = s }
}

// WithStore replaces the sqlite store, e.g. with storage.NewMemoryStore().
func WithStore(s mealwise.MealStore) Option {
	return func(o *options) { o.store = s }
}

// WithGenerator bypasses provider selection.
func WithGenerator(g provider.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithHTTPClient is used for food-data lookups, Ollama and Slack.
func WithHTTPClient(c mealwise.HTTPClient) Option {
	return func(o *options) { o.http = c }
}

func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(o *options) { o.orchOpts = append(o.orchOpts, opts...) }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.http == nil {
		o.http = &http.Client{Timeout: cfg.FoodData.HTTPTimeout}
	}

	a := &App{Config: cfg}

	textGen, visionGen, err := newGenerators(ctx, cfg, o)
	if err != nil {
		return nil, err
	}

	a.Store = o.store
	if a.Store == nil {
		store, err := storage.NewSQLiteStore(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open meal store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	}

	if a.Archive, err = newArchive(ctx, cfg.Storage); err != nil {
		a.Close(ctx)
		return nil, err
	}

	resolver := fooddata.NewResolver(
		fooddata.NewFDCClient(cfg.FoodData.FDCBaseURL, cfg.FoodData.FDCAPIKey, o.http),
		fooddata.NewOFFClient(cfg.FoodData.OFFBaseURL, o.http),
		fooddata.NewCache(cfg.Pipeline.CacheTTL),
	)

	var visionOpts []agents.VisionOption
	if barcode.Available {
		visionOpts = append(visionOpts, agents.WithBarcodeScanner(barcode.NewScanner()))
	}
	guard := agents.MustDefaultGuardrail()

	sink := mealwise.TraceSink(mealwise.NewNoOpTraceSink())
	if o.sink != nil {
		a.traces = mealwise.NewAsyncTraceSink(o.sink, 0)
		sink = a.traces
	}

	a.Slack = slack.FromConfig(cfg.Notify, o.http)
	a.pool = workerpool.New(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, workerpool.WithPanicHandler(func(v any) {
		slog.Error("SETUP: Secondary job panicked", "panic", v)
	}))
	a.pool.Start()

	a.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Vision:          agents.NewVision(visionGen, visionOpts...),
		Nutrition:       agents.NewNutrition(resolver, cfg.Pipeline.LookupTimeout),
		Personalization: agents.NewPersonalization(a.Store, agents.DefaultPolicy{}),
		Wellness:        agents.NewWellness(textGen, guard),
		Guardrail:       guard,
		Store:           a.Store,
		Archive:         a.Archive,
		Sink:            sink,
		Pool:            a.pool,
		Notifier:        a.Slack,
		Secondary:       agents.SecondaryAgents(),
		NotifyChannel:   cfg.Notify.SlackChannel,
	}, cfg.Pipeline, o.orchOpts...)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Summaries = summary.NewService(a.Store)
	if a.Tools, err = tools.NewRegistry(a.Orchestrator, a.Summaries, a.Store); err != nil {
		a.Close(ctx)
		return nil, err
	}

	slog.Info("SETUP: Pipeline ready",
		"provider", cfg.Pipeline.Provider,
		"archive", cfg.Storage.ArchiveBackend,
		"ocr", barcode.Available,
		"workers", cfg.Pipeline.Workers)
	return a, nil
}

// Handler returns the HTTP API over the wired pipeline.
func (a *App) Handler() http.Handler {
	return transport.NewHandler(transport.Deps{
		Analyzer:  a.Orchestrator,
		Summaries: a.Summaries,
		Store:     a.Store,
		Tools:     a.Tools,
	}, a.Config.Server)
}

// FlushTraces waits until every stage record handed to the trace sink has
// been written.
func (a *App) FlushTraces() {
	if a.traces != nil {
		a.traces.Drain()
	}
}

// Close drains queued secondary jobs and trace records, then closes the
// store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close(ctx))
	}
	if a.traces != nil {
		errs = append(errs, a.traces.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func newGenerators(ctx context.Context, cfg Config, o options) (text, vision provider.Generator, err error) {
	if o.generator != nil {
		return o.generator, o.generator, nil
	}

	switch strings.ToLower(cfg.Pipeline.Provider) {
	case "bedrock":
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		brc := bedrockruntime.NewFromConfig(awsCfg)
		text = bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     cfg.Model.ModelID,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
		})
		vision = bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     cfg.Model.VisionModel(),
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
		})
		return text, vision, nil

	case "ollama":
		httpClient := &http.Client{Timeout: cfg.Pipeline.VisionTimeout}
		tc, err := ollama.NewClient(ollama.ClientOpts{BaseEndpoint: cfg.Pipeline.BaseOllamaEndpoint, ModelID: cfg.Model.ModelID, HTTPClient: httpClient})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		vc, err := ollama.NewClient(ollama.ClientOpts{BaseEndpoint: cfg.Pipeline.BaseOllamaEndpoint, ModelID: cfg.Model.VisionModel(), HTTPClient: httpClient})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return tc, vc, nil

	case "mock":
		m := mock.NewLLMClient()
		return m, m, nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q", cfg.Pipeline.Provider)
}

func newArchive(ctx context.Context, cfg mealwise.StorageConfig) (mealwise.Archive, error) {
	switch strings.ToLower(cfg.ArchiveBackend) {
	case "", "none":
		return nil, nil
	case "file":
		return storage.NewFileArchive(cfg.ArchiveDir), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("ARCHIVE_S3_BUCKET is required for the s3 archive")
		}
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) { o.RetryMaxAttempts = 5 })
		return storage.NewS3Archive(client, cfg.S3Bucket, "mealwise"), nil
	case "azure":
		archive, err := storage.NewAzureArchive(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure archive: %w", err)
		}
		return archive, nil
	}
	return nil, fmt.Errorf("unknown archive backend %q", cfg.ArchiveBackend)
}
