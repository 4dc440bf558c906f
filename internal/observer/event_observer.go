package observer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Event is a state transition of the viewing session or of an analysis run
type Event struct {
	EventType    EventType      `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	Image        string         `json:"image,omitempty"`
	BoxID        *int           `json:"box_id,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	Duration     time.Duration  `json:"duration,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EventType represents the type of session event
type EventType string

const (
	// ImagesListed when the image list has been fetched
	ImagesListed EventType = "images_listed"
	// Navigated when the current index changes
	Navigated EventType = "navigated"
	// ImageLoaded when the current image is decoded
	ImageLoaded EventType = "image_loaded"
	// ImageLoadFailed when the current image cannot be fetched or decoded
	ImageLoadFailed EventType = "image_load_failed"
	// BoxesLoaded when the box set of the current stem arrives
	BoxesLoaded EventType = "boxes_loaded"
	// BoxesLoadFailed when the box set cannot be fetched
	BoxesLoadFailed EventType = "boxes_load_failed"
	// ViewportChanged when the canvas tier changes
	ViewportChanged EventType = "viewport_changed"
	// AnalysisStarted when a run begins
	AnalysisStarted EventType = "analysis_started"
	// BoxAnalyzed when one box has a result
	BoxAnalyzed EventType = "box_analyzed"
	// BoxFailed when one box could not be analyzed
	BoxFailed EventType = "box_failed"
	// AnalysisCompleted when a run finishes
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisCanceled when a run is abandoned
	AnalysisCanceled EventType = "analysis_canceled"
	// StaleDropped when a response for an old image or box set is discarded
	StaleDropped EventType = "stale_dropped"
	// CanvasInvalidated when the overlay must be repainted
	CanvasInvalidated EventType = "canvas_invalidated"
)

// IntPtr is a helper for Event.BoxID
func IntPtr(i int) *int {
	return &i
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event Event)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event Event)
}

// LoggingObserver logs session events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event Event) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.Image != "" {
		fields["image"] = event.Image
	}
	if event.BoxID != nil {
		fields["box_id"] = *event.BoxID
	}
	if event.RunID != "" {
		fields["run_id"] = event.RunID
	}
	if event.Duration > 0 {
		fields["duration"] = event.Duration.String()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case AnalysisStarted:
		entry.Info("Price tag analysis started")
	case AnalysisCompleted:
		entry.Info("Price tag analysis completed")
	case AnalysisCanceled:
		entry.Warn("Price tag analysis canceled")
	case BoxFailed:
		entry.Warn("Box analysis failed")
	case ImageLoadFailed, BoxesLoadFailed:
		entry.Error("Session load failed")
	case Navigated, ImagesListed, ViewportChanged:
		entry.Info("Session updated")
	case StaleDropped, CanvasInvalidated, BoxAnalyzed, ImageLoaded, BoxesLoaded:
		entry.Debug("Session event")
	default:
		entry.Info("Session event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters and per-box latency statistics
type MetricsObserver struct {
	mu             sync.RWMutex
	runs           int64
	completedRuns  int64
	canceledRuns   int64
	boxesAnalyzed  int64
	boxesFailed    int64
	staleDropped   int64
	repaints       int64
	imageFailures  int64
	boxLatencies   []float64 // seconds
	maxLatencySize int
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{maxLatencySize: 1000}
}

// OnEvent handles events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case AnalysisStarted:
		o.runs++
	case AnalysisCompleted:
		o.completedRuns++
	case AnalysisCanceled:
		o.canceledRuns++
	case BoxAnalyzed:
		o.boxesAnalyzed++
		o.recordLatency(event.Duration)
	case BoxFailed:
		o.boxesFailed++
		o.recordLatency(event.Duration)
	case StaleDropped:
		o.staleDropped++
	case CanvasInvalidated:
		o.repaints++
	case ImageLoadFailed:
		o.imageFailures++
	}
}

func (o *MetricsObserver) recordLatency(d time.Duration) {
	if d <= 0 {
		return
	}
	o.boxLatencies = append(o.boxLatencies, d.Seconds())
	if len(o.boxLatencies) > o.maxLatencySize {
		o.boxLatencies = o.boxLatencies[len(o.boxLatencies)-o.maxLatencySize:]
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()

	metrics := map[string]any{
		"analysis_runs":       o.runs,
		"completed_runs":      o.completedRuns,
		"canceled_runs":       o.canceledRuns,
		"boxes_analyzed":      o.boxesAnalyzed,
		"boxes_failed":        o.boxesFailed,
		"stale_dropped":       o.staleDropped,
		"repaints":            o.repaints,
		"image_load_failures": o.imageFailures,
	}

	if len(o.boxLatencies) > 0 {
		sorted := append([]float64(nil), o.boxLatencies...)
		sort.Float64s(sorted)
		mean, std := stat.MeanStdDev(sorted, nil)
		metrics["box_latency_mean_sec"] = mean
		metrics["box_latency_p95_sec"] = stat.Quantile(0.95, stat.Empirical, sorted, nil)
		if len(sorted) > 1 {
			metrics["box_latency_stddev_sec"] = std
		}
	}
	return metrics
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription
// order on the caller's goroutine. Observers must not block.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
