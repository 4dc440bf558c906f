package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-pricetag-viewer/internal/config"
	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/logger"
	"go-pricetag-viewer/internal/observer"
	"go-pricetag-viewer/internal/render"
	"go-pricetag-viewer/internal/viewer"
	"go-pricetag-viewer/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// resultView renders what_was_read as display items
type resultView struct {
	models.AnalysisResult
	WhatWasRead []models.ReadItem `json:"what_was_read"`
}

type stateView struct {
	viewer.State
	Results []resultView `json:"results"`
}

func newStateView(st viewer.State, cropBaseURL string) stateView {
	results := make([]resultView, 0, len(st.Results))
	for _, r := range st.Results {
		results = append(results, resultView{AnalysisResult: r, WhatWasRead: r.ReadItems(cropBaseURL)})
	}
	return stateView{State: st, Results: results}
}

// NewHandler exposes the viewer session over HTTP. metrics and hub may be nil.
func NewHandler(session *viewer.Session, metrics *observer.MetricsObserver, hub *LiveHub, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)

	api := r.Group("/api")
	api.GET("/state", getState(session, cfg.CropBaseURL))
	api.GET("/images", listImages(session))
	api.POST("/navigate", navigate(session, cfg.CropBaseURL))
	api.POST("/next", step(session.Next, cfg.CropBaseURL))
	api.POST("/prev", step(session.Prev, cfg.CropBaseURL))
	api.PUT("/viewport", resizeViewport(session))
	api.POST("/analyze", analyze(session, cfg.AnalysisTimeout, cfg.RunTimeout))
	api.GET("/canvas", canvas(session))
	if metrics != nil {
		api.GET("/metrics", func(c *gin.Context) {
			c.JSON(http.StatusOK, metrics.GetMetrics())
		})
	}

	if hub != nil {
		r.GET("/ws", hub.Serve)
	}
	if cfg.UsesLocalAnalyzer() && cfg.CropsDir != "" {
		r.Static("/static/crops", cfg.CropsDir)
	}

	return r
}

func getState(session *viewer.Session, cropBaseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := session.Snapshot()
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to read session state", err)
			return
		}
		c.JSON(http.StatusOK, newStateView(st, cropBaseURL))
	}
}

func listImages(session *viewer.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := session.Snapshot()
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to read session state", err)
			return
		}
		c.JSON(http.StatusOK, models.ImageListResponse{Images: st.Images, Current: st.Index})
	}
}

func navigate(session *viewer.Session, cropBaseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NavigateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ip": c.ClientIP(),
			}).Error("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		st, err := session.Navigate(*req.Index)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to navigate", err)
			return
		}
		c.JSON(http.StatusOK, newStateView(st, cropBaseURL))
	}
}

func step(move func() (viewer.State, error), cropBaseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := move()
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to navigate", err)
			return
		}
		c.JSON(http.StatusOK, newStateView(st, cropBaseURL))
	}
}

func resizeViewport(session *viewer.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ViewportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		tier, changed, err := session.Resize(req.Width)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to resize viewport", err)
			return
		}
		c.JSON(http.StatusOK, models.ViewportResponse{
			Width:        req.Width,
			CanvasWidth:  tier.CanvasWidth,
			CanvasHeight: tier.CanvasHeight,
			Changed:      changed,
		})
	}
}

// waitBound is how long ?wait=true blocks: runTimeout when set, otherwise
// boxTimeout for every box of the run
func waitBound(boxTimeout, runTimeout time.Duration, boxes int) time.Duration {
	if runTimeout > 0 {
		return runTimeout
	}
	return boxTimeout * time.Duration(max(boxes, 1))
}

func analyze(session *viewer.Session, boxTimeout, runTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		handle, err := session.Analyze()
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to start analysis", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"run_id": handle.RunID,
			"image":  handle.Image,
			"boxes":  handle.Boxes,
			"ip":     c.ClientIP(),
		}).Info("Price tag analysis requested")

		if c.Query("wait") != "true" {
			c.JSON(http.StatusAccepted, models.AnalyzeAccepted{
				RunID: handle.RunID,
				Image: handle.Image,
				Boxes: handle.Boxes,
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), waitBound(boxTimeout, runTimeout, handle.Boxes))
		defer cancel()
		report, err := handle.Wait(ctx)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "analysis did not finish", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"run_id":             report.RunID,
			"results":            len(report.Results),
			"failures":           len(report.Failures),
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Price tag analysis finished")
		c.JSON(http.StatusOK, report)
	}
}

func canvas(session *viewer.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		format, err := render.ParseFormat(c.Query("format"))
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid canvas format",
				apperrors.NewValidationError(err.Error(), nil))
			return
		}

		frame, err := session.Frame()
		if errors.Is(err, render.ErrFrameIncomplete) {
			respondError(c, http.StatusConflict, "canvas not ready",
				apperrors.NewConflictError("image is not loaded", err))
			return
		}
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to read frame", err)
			return
		}

		img, err := render.RenderImage(frame, render.DefaultStyle())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to render canvas", err)
			return
		}

		var buf bytes.Buffer
		if err := render.Encode(&buf, img, format); err != nil {
			respondError(c, http.StatusInternalServerError, "failed to encode canvas", err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Type = string(appErr.Type)
	}
	c.AbortWithStatusJSON(code, resp)
}
