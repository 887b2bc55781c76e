// Package transport serves the meal pipeline, the balance views and the
// MCP tool endpoint over HTTP.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mealwise"
	"mealwise/summary"
	"mealwise/tools"

	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

// Analyzer runs the meal pipeline.
type Analyzer interface {
	AnalyzeMeal(ctx context.Context, req mealwise.AnalysisRequest) (mealwise.AnalysisResponse, error)
	AnalyzeBarcode(ctx context.Context, req mealwise.AnalysisRequest) (mealwise.AnalysisResponse, error)
}

type Deps struct {
	Analyzer  Analyzer
	Summaries *summary.Service
	Store     mealwise.MealStore
	Tools     *tools.Registry
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// analyzeBody is the JSON form of an analysis request. Multipart requests
// carry the same fields as form values plus an "image" file.
type analyzeBody struct {
	UserID      string            `json:"user_id"`
	ImageBase64 string            `json:"image_base64"`
	ImageMIME   string            `json:"image_mime"`
	Barcode     string            `json:"barcode"`
	Context     string            `json:"context"`
	Note        string            `json:"note"`
	EnergyTag   string            `json:"energy_tag"`
	Profile     *mealwise.Profile `json:"profile"`
}

type feedbackBody struct {
	FeedbackType string `json:"feedback_type" binding:"required"`
	Comment      string `json:"comment"`
}

func NewHandler(deps Deps, cfg mealwise.ServerConfig) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxBodyBytes),
	)

	r.GET("/health", healthCheck)

	v1 := r.Group("/v1")
	v1.POST("/meals/analyze", analyzeMeal(deps.Analyzer, cfg))
	v1.POST("/meals/barcode", analyzeBarcode(deps.Analyzer, cfg))
	v1.POST("/meals/:id/feedback", recordFeedback(deps.Store))
	v1.GET("/users/:user/balance/today", dailyBalance(deps.Summaries))
	v1.GET("/users/:user/summary/week", weeklySummary(deps.Summaries))
	v1.GET("/users/:user/reflection/week", weeklyReflection(deps.Summaries))

	if deps.Tools != nil {
		r.GET("/mcp/tools", listTools(deps.Tools))
		r.POST("/mcp", callTool(deps.Tools))
	}

	return r
}

func analyzeMeal(a Analyzer, cfg mealwise.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := bindAnalysis(c)
		if err != nil {
			respondError(c, mealwise.StatusCode(err), "invalid analysis request", err)
			return
		}
		if len(req.Image) == 0 && req.Barcode == "" {
			respondError(c, http.StatusBadRequest, "invalid analysis request", errors.New("an image or a barcode is required"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := a.AnalyzeMeal(ctx, req)
		respondAnalysis(c, resp, err)
	}
}

func analyzeBarcode(a Analyzer, cfg mealwise.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body analyzeBody
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		req, err := body.request()
		if err != nil {
			respondError(c, mealwise.StatusCode(err), "invalid analysis request", err)
			return
		}
		if req.Barcode == "" {
			respondError(c, http.StatusBadRequest, "invalid analysis request", errors.New("barcode is required"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := a.AnalyzeBarcode(ctx, req)
		respondAnalysis(c, resp, err)
	}
}

// respondAnalysis writes the response body in every case. Rejected input
// maps to 422 and an abandoned run to the status of its error.
func respondAnalysis(c *gin.Context, resp mealwise.AnalysisResponse, err error) {
	status := http.StatusOK
	switch {
	case err != nil:
		status = mealwise.StatusCode(err)
		slog.Warn("TRANSPORT: Analysis abandoned", "request_id", resp.RequestID, "error", err)
	case resp.State == "Failed":
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

func bindAnalysis(c *gin.Context) (mealwise.AnalysisRequest, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var body analyzeBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return mealwise.AnalysisRequest{}, mealwise.NewDecodeError("transport.analyze", "invalid request format", err)
		}
		return body.request()
	}

	body := analyzeBody{
		UserID:    c.PostForm("user_id"),
		Barcode:   c.PostForm("barcode"),
		Context:   c.PostForm("context"),
		Note:      c.PostForm("note"),
		EnergyTag: c.PostForm("energy_tag"),
	}
	if raw := c.PostForm("profile"); raw != "" {
		body.Profile = &mealwise.Profile{}
		if err := json.Unmarshal([]byte(raw), body.Profile); err != nil {
			return mealwise.AnalysisRequest{}, mealwise.NewDecodeError("transport.analyze", "invalid profile", err)
		}
	}
	req, err := body.request()
	if err != nil {
		return req, err
	}

	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, mealwise.NewDecodeError("transport.analyze", "invalid image upload", err)
	}
	f, err := fh.Open()
	if err != nil {
		return req, mealwise.NewDecodeError("transport.analyze", "invalid image upload", err)
	}
	defer f.Close()
	if req.Image, err = io.ReadAll(f); err != nil {
		return req, mealwise.NewDecodeError("transport.analyze", "failed to read image", err)
	}
	req.ImageMIME = fh.Header.Get("Content-Type")
	return req, nil
}

func (b analyzeBody) request() (mealwise.AnalysisRequest, error) {
	req := mealwise.AnalysisRequest{
		UserID:     strings.TrimSpace(b.UserID),
		ImageMIME:  b.ImageMIME,
		Barcode:    strings.TrimSpace(b.Barcode),
		Context:    mealwise.ParseMealContext(b.Context),
		Note:       b.Note,
		EnergyTag:  mealwise.ParseEnergyTag(b.EnergyTag),
		Profile:    b.Profile,
		ReceivedAt: time.Now(),
	}
	if b.Profile != nil {
		if err := b.Profile.Validate(); err != nil {
			return req, mealwise.NewDecodeError("transport.analyze", err.Error(), nil)
		}
	}
	if b.ImageBase64 != "" {
		img, err := base64.StdEncoding.DecodeString(b.ImageBase64)
		if err != nil {
			return req, mealwise.NewDecodeError("transport.analyze", "image_base64 is not valid base64", err)
		}
		req.Image = img
	}
	return req, nil
}

func recordFeedback(store mealwise.MealStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body feedbackBody
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		id, err := store.SaveFeedback(c.Request.Context(), mealwise.Feedback{
			MealID:    c.Param("id"),
			Type:      mealwise.FeedbackType(body.FeedbackType),
			Comment:   body.Comment,
			CreatedAt: time.Now(),
		})
		if err != nil {
			respondError(c, mealwise.StatusCode(err), "failed to record feedback", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"feedback_id": id, "meal_id": c.Param("id")})
	}
}

func dailyBalance(s *summary.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var profile *mealwise.Profile
		level, goal := c.Query("activity_level"), c.Query("goal")
		if level != "" || goal != "" {
			profile = &mealwise.Profile{ActivityLevel: mealwise.ActivityLevel(level), Goal: mealwise.Goal(goal)}
			if err := profile.Validate(); err != nil {
				respondError(c, http.StatusBadRequest, "invalid profile", err)
				return
			}
		}

		balance, err := s.Today(c.Request.Context(), c.Param("user"), profile)
		if err != nil {
			respondError(c, mealwise.StatusCode(err), "failed to compute daily balance", err)
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}

func weeklySummary(s *summary.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		week, err := s.Week(c.Request.Context(), c.Param("user"))
		if err != nil {
			respondError(c, mealwise.StatusCode(err), "failed to compute weekly summary", err)
			return
		}
		c.JSON(http.StatusOK, week)
	}
}

func weeklyReflection(s *summary.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.Reflection(c.Request.Context(), c.Param("user"), c.Query("goal"))
		if err != nil {
			respondError(c, mealwise.StatusCode(err), "failed to compute weekly reflection", err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("TRANSPORT: Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	slog.Error("TRANSPORT: Request failed",
		"status_code", code,
		"message", message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"error", err,
	)

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
