package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mealwise"
	"mealwise/app"
	"mealwise/storage"
)

func main() {
	var (
		imagePath = flag.String("image", "", "path to a meal photo")
		code      = flag.String("barcode", "", "barcode of a packaged food")
		userID    = flag.String("user", "local", "user the meal is logged for")
		mealCtx   = flag.String("context", "", "homemade, restaurant, snack or meal")
		note      = flag.String("note", "", "free-text note")
		ephemeral = flag.Bool("memory", false, "keep meals in memory instead of sqlite")
		weekly    = flag.Bool("weekly", false, "post the weekly summary to Slack after the analysis")
		debug     = flag.Bool("debug", false, "dump the full response")
	)
	flag.Parse()

	if *imagePath == "" && *code == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -image meal.jpg | -barcode 0123456789012 [-user id] [-context snack]")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	req := mealwise.AnalysisRequest{
		UserID:     *userID,
		Barcode:    *code,
		Context:    mealwise.ParseMealContext(*mealCtx),
		Note:       *note,
		ReceivedAt: time.Now(),
	}
	if *imagePath != "" {
		img, err := os.ReadFile(*imagePath)
		if err != nil {
			slog.Error("SETUP: Failed to read image", "path", *imagePath, "error", err)
			return
		}
		req.Image = img
		req.ImageMIME = http.DetectContentType(img)
	}

	sink, cleanup, err := newTraceSink(cfg.Model.VisionModel())
	if err != nil {
		slog.Error("SETUP: Failed to create trace sink", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush pipeline trace", "error", err)
		}
	}()

	tracerProvider, _, otelShutdown, err := mealwise.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	opts := []app.Option{app.WithTraceSink(sink)}
	if *ephemeral {
		opts = append(opts, app.WithStore(storage.NewMemoryStore()))
	}
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("SETUP: Failed to build pipeline", "error", err)
		return
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			slog.Error("RESULT: Failed to drain pipeline", "error", err)
		}
	}()

	tracer := tracerProvider.Tracer(mealwise.TracerNameOrchestrator)
	ctx, span := tracer.Start(ctx, "mealwise-analyze", trace.WithAttributes(
		attribute.String("model.id", cfg.Model.ModelID),
		attribute.String("model.vision_id", cfg.Model.VisionModel()),
		attribute.String("provider", cfg.Pipeline.Provider),
		attribute.Bool("request.barcode", *code != ""),
	))
	defer span.End()

	resp, err := a.Orchestrator.AnalyzeMeal(ctx, req)
	if err != nil {
		slog.Error("RESULT: Analysis abandoned", "error", err)
		return
	}

	if *debug {
		mealwise.Dump(resp)
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		slog.Error("RESULT: Failed to encode response", "error", err)
		return
	}
	fmt.Println(string(out))
	slog.Info("RESULT: Analysis complete",
		"state", resp.State,
		"confidence", resp.Confidence,
		"degraded", resp.Degraded,
		"meal_id", resp.MealID)

	if *weekly {
		week, err := a.Summaries.Week(ctx, *userID)
		if err != nil {
			slog.Error("RESULT: Failed to build weekly summary", "error", err)
			return
		}
		if err := a.Slack.PostMessage(ctx, cfg.Notify.SlackChannel, week.Text(*userID)); err != nil {
			slog.Error("RESULT: Failed to post weekly summary to Slack", "error", err)
		}
	}
}

func newTraceSink(modelID string) (*mealwise.FileTraceSink, func() error, error) {
	path := mealwise.NewTraceFilePath(filepath.Base(modelID))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	sink := mealwise.NewFileTraceSink(logFile)
	cleanup := func() error {
		return errors.Join(sink.Flush(), logFile.Close())
	}
	return sink, cleanup, nil
}
