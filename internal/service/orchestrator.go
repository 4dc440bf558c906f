package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-pricetag-viewer/internal/analyzer"
	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/logger"
	"go-pricetag-viewer/internal/observer"
	"go-pricetag-viewer/pkg/models"
)

// RunRequest names the image and the box set to analyze. A new RunID is
// generated when empty.
type RunRequest struct {
	RunID string
	Image string
	Boxes []models.Box
}

// BoxFailure is a per-box analysis failure. Canceled failures belong to
// boxes that were never sent because the run was abandoned.
type BoxFailure struct {
	BoxID    int                 `json:"box_id"`
	Type     apperrors.ErrorType `json:"type,omitempty"`
	Message  string              `json:"message"`
	Canceled bool                `json:"canceled,omitempty"`
}

// ResultHandler receives per-box outcomes as they happen. With more than
// one worker the callbacks may run concurrently.
type ResultHandler struct {
	OnResult  func(models.AnalysisResult)
	OnFailure func(BoxFailure)
}

// RunReport summarizes one analysis run
type RunReport struct {
	RunID    string                  `json:"run_id"`
	Image    string                  `json:"image"`
	Results  []models.AnalysisResult `json:"results"`
	Failures []BoxFailure            `json:"failures"`
	Canceled bool                    `json:"canceled"`
	Duration time.Duration           `json:"duration"`
}

// OrchestratorConfig tunes a run
type OrchestratorConfig struct {
	// Concurrency is the number of AnalyzeBox calls in flight; 1 keeps box order
	Concurrency int
	// BoxTimeout bounds each AnalyzeBox call; 0 means no bound
	BoxTimeout time.Duration
}

// AnalysisOrchestrator sends every box of an image to the analyzer
type AnalysisOrchestrator struct {
	analyzer  analyzer.BoxAnalyzer
	publisher observer.Subject
	config    OrchestratorConfig
}

// NewAnalysisOrchestrator creates an orchestrator; publisher may be nil
func NewAnalysisOrchestrator(a analyzer.BoxAnalyzer, publisher observer.Subject, config OrchestratorConfig) *AnalysisOrchestrator {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &AnalysisOrchestrator{
		analyzer:  a,
		publisher: publisher,
		config:    config,
	}
}

// Run analyzes each box of req in box-set order and blocks until every box
// has a result, a failure, or was skipped by cancellation.
func (o *AnalysisOrchestrator) Run(ctx context.Context, req RunRequest, handler ResultHandler) (*RunReport, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	report := &RunReport{
		RunID:    req.RunID,
		Image:    req.Image,
		Results:  make([]models.AnalysisResult, 0, len(req.Boxes)),
		Failures: make([]BoxFailure, 0),
	}
	if req.Image == "" || len(req.Boxes) == 0 {
		return report, nil
	}

	start := time.Now()
	log := logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"image":  req.Image,
		"boxes":  len(req.Boxes),
	})
	log.Debug("Dispatching analysis run")
	o.publish(ctx, observer.Event{
		EventType: observer.AnalysisStarted,
		Image:     req.Image,
		RunID:     report.RunID,
		Success:   true,
		Metadata:  map[string]any{"boxes": len(req.Boxes)},
	})

	pool := analyzer.NewWorkerPool(o.config.Concurrency)
	pool.Start()
	defer pool.Close()

	var mu sync.Mutex
	for _, box := range req.Boxes {
		task := &boxTask{orchestrator: o, runID: report.RunID, image: req.Image, box: box}
		pool.Submit(func() {
			result, failure := task.execute(ctx)

			mu.Lock()
			if failure != nil {
				report.Failures = append(report.Failures, *failure)
			} else {
				report.Results = append(report.Results, *result)
			}
			mu.Unlock()

			if failure != nil {
				if handler.OnFailure != nil {
					handler.OnFailure(*failure)
				}
				return
			}
			if handler.OnResult != nil {
				handler.OnResult(*result)
			}
		})
	}
	pool.Wait()

	report.Duration = time.Since(start)
	report.Canceled = ctx.Err() != nil

	done := observer.Event{
		EventType: observer.AnalysisCompleted,
		Image:     req.Image,
		RunID:     report.RunID,
		Duration:  report.Duration,
		Success:   len(report.Failures) == 0,
		Metadata: map[string]any{
			"results":  len(report.Results),
			"failures": len(report.Failures),
		},
	}
	if report.Canceled {
		done.EventType = observer.AnalysisCanceled
		done.Success = false
	}
	// the run context may already be dead; events still have to go out
	o.publish(context.WithoutCancel(ctx), done)

	return report, nil
}

func (o *AnalysisOrchestrator) publish(ctx context.Context, event observer.Event) {
	if o.publisher != nil {
		o.publisher.NotifyObservers(ctx, event)
	}
}

type boxTask struct {
	orchestrator *AnalysisOrchestrator
	runID        string
	image        string
	box          models.Box
}

func (t *boxTask) execute(ctx context.Context) (*models.AnalysisResult, *BoxFailure) {
	o := t.orchestrator
	if ctx.Err() != nil {
		return nil, &BoxFailure{BoxID: t.box.ID, Message: "analysis canceled", Canceled: true}
	}

	callCtx := ctx
	if o.config.BoxTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.config.BoxTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := t.analyze(callCtx)
	elapsed := time.Since(start)

	if err == nil && result == nil {
		err = apperrors.NewAnalysisError("analyzer returned no result", nil)
	}
	if err != nil {
		failure := t.failure(ctx, err)
		o.publish(context.WithoutCancel(ctx), observer.Event{
			EventType:    observer.BoxFailed,
			Image:        t.image,
			BoxID:        observer.IntPtr(t.box.ID),
			RunID:        t.runID,
			Duration:     elapsed,
			ErrorMessage: failure.Message,
		})
		return nil, failure
	}

	result.BoxID = t.box.ID
	if result.WhatWasRead == nil {
		result.WhatWasRead = []string{}
	}
	o.publish(ctx, observer.Event{
		EventType: observer.BoxAnalyzed,
		Image:     t.image,
		BoxID:     observer.IntPtr(t.box.ID),
		RunID:     t.runID,
		Duration:  elapsed,
		Success:   true,
	})
	return result, nil
}

// analyze calls the analyzer, turning a panic into an analysis error so the
// box still gets a failure entry
func (t *boxTask) analyze(ctx context.Context) (result *models.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"run_id": t.runID,
				"image":  t.image,
				"box_id": t.box.ID,
				"panic":  fmt.Sprint(r),
			}).Error("Analyzer panicked")
			result = nil
			err = apperrors.NewAnalysisError("analyzer panicked", nil).WithDetails(fmt.Sprint(r))
		}
	}()
	return t.orchestrator.analyzer.AnalyzeBox(ctx, models.AnalyzeRequest{
		Image: t.image,
		Box:   t.box.Box,
		BoxID: t.box.ID,
	})
}

func (t *boxTask) failure(ctx context.Context, err error) *BoxFailure {
	if ctx.Err() != nil {
		return &BoxFailure{BoxID: t.box.ID, Message: "analysis canceled", Canceled: true}
	}

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, context.DeadlineExceeded):
		appErr = apperrors.NewTimeoutError("box analysis timed out", err)
	default:
		appErr = apperrors.NewAnalysisError("box analysis failed", err)
	}

	msg := appErr.Message
	if appErr.Details != "" {
		msg += ": " + appErr.Details
	}
	return &BoxFailure{BoxID: t.box.ID, Type: appErr.Type, Message: msg}
}
