package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"log/slog"
	"time"

	"mealwise"
	"mealwise/app"

	"github.com/aws/aws-lambda-go/lambda"
)

type Params struct {
	UserID      string            `json:"user_id"`
	ImageBase64 string            `json:"image_base64"`
	ImageMIME   string            `json:"image_mime"`
	Barcode     string            `json:"barcode"`
	Context     string            `json:"context"`
	Note        string            `json:"note"`
	EnergyTag   string            `json:"energy_tag"`
	Profile     *mealwise.Profile `json:"profile"`
}

func (p Params) request() (mealwise.AnalysisRequest, error) {
	req := mealwise.AnalysisRequest{
		UserID:     p.UserID,
		ImageMIME:  p.ImageMIME,
		Barcode:    p.Barcode,
		Context:    mealwise.ParseMealContext(p.Context),
		Note:       p.Note,
		EnergyTag:  mealwise.ParseEnergyTag(p.EnergyTag),
		Profile:    p.Profile,
		ReceivedAt: time.Now(),
	}
	if p.Profile != nil {
		if err := p.Profile.Validate(); err != nil {
			return req, mealwise.NewDecodeError("lambda.params", err.Error(), nil)
		}
	}
	if p.ImageBase64 != "" {
		img, err := base64.StdEncoding.DecodeString(p.ImageBase64)
		if err != nil {
			return req, mealwise.NewDecodeError("lambda.params", "image_base64 is not valid base64", err)
		}
		req.Image = img
	}
	if len(req.Image) == 0 && req.Barcode == "" {
		return req, mealwise.NewDecodeError("lambda.params", "an image or a barcode is required", nil)
	}
	return req, nil
}

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}
	// The Lambda filesystem is read-only outside /tmp.
	if cfg.Storage.ArchiveBackend == "file" {
		cfg.Storage.ArchiveBackend = "s3"
	}

	tracerProvider, _, otelShutdown, err := mealwise.InitOtel(ctx)
	if err != nil {
		log.Fatalf("SETUP: Failed to initialize OpenTelemetry: %s", err)
	}

	a, err := app.New(ctx, cfg, app.WithTraceSink(mealwise.NewStdoutTraceSink()))
	if err != nil {
		log.Fatalf("SETUP: Failed to build pipeline: %s", err)
	}

	fn := func(ctx context.Context, params Params) (mealwise.AnalysisResponse, error) {
		defer func() {
			a.FlushTraces()
			if err := tracerProvider.ForceFlush(ctx); err != nil {
				slog.Error("SETUP: Failed to flush traces", "error", err)
			}
		}()

		req, err := params.request()
		if err != nil {
			slog.Error("RESULT: Invalid request", "error", err)
			return mealwise.AnalysisResponse{}, err
		}

		resp, err := a.Orchestrator.AnalyzeMeal(ctx, req)
		if err != nil {
			slog.Error("RESULT: Analysis abandoned", "request_id", resp.RequestID, "error", err)
			return resp, fmt.Errorf("analysis failed: %w", err)
		}
		slog.Info("RESULT: Analysis complete", "request_id", resp.RequestID, "state", resp.State, "degraded", resp.Degraded)
		return resp, nil
	}

	lambda.StartWithOptions(fn, lambda.WithEnableSIGTERM(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			slog.Error("RESULT: Failed to drain pipeline", "error", err)
		}
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}))
}
