// Package viewer keeps the browsing session of the price-tag viewer: the image list,
// the current image and its box set, analysis results and the canvas geometry.
// All state lives on one event loop goroutine; callers talk to it through events.
package viewer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/geometry"
	"go-pricetag-viewer/internal/logger"
	"go-pricetag-viewer/internal/observer"
	"go-pricetag-viewer/internal/render"
	"go-pricetag-viewer/internal/repository"
	"go-pricetag-viewer/internal/service"
	"go-pricetag-viewer/internal/storage"
	"go-pricetag-viewer/internal/viewport"
	"go-pricetag-viewer/pkg/models"
	"go-pricetag-viewer/pkg/validation"
)

// ErrSessionClosed is returned by every call made after Close
var ErrSessionClosed = apperrors.NewConflictError("viewer session is closed", nil)

// Runner executes an analysis run; *service.AnalysisOrchestrator implements it
type Runner interface {
	Run(ctx context.Context, req service.RunRequest, handler service.ResultHandler) (*service.RunReport, error)
}

// Dependencies are the collaborators of a Session. Publisher and Validator
// are optional.
type Dependencies struct {
	Images      storage.ImageStore
	Boxes       repository.BoxRepository
	Runner      Runner
	Sizer       *viewport.Sizer
	Publisher   observer.Subject
	Validator   *validation.BoxValidator
	LoadTimeout time.Duration
}

// Session is the viewer state machine
type Session struct {
	images      storage.ImageStore
	boxRepo     repository.BoxRepository
	runner      Runner
	sizer       *viewport.Sizer
	publisher   observer.Subject
	validator   *validation.BoxValidator
	loadTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	events  chan event
	stop    chan struct{}
	stopped chan struct{}

	// owned by the loop goroutine
	st *sessionState
}

// NewSession validates the dependencies and starts the event loop.
// Call Start to fetch the image list and Close to stop the loop.
func NewSession(deps Dependencies) (*Session, error) {
	if deps.Images == nil || deps.Boxes == nil || deps.Runner == nil || deps.Sizer == nil {
		return nil, apperrors.NewInternalError("viewer session requires images, boxes, runner and sizer", nil)
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewBoxValidator()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		images:      deps.Images,
		boxRepo:     deps.Boxes,
		runner:      deps.Runner,
		sizer:       deps.Sizer,
		publisher:   deps.Publisher,
		validator:   deps.Validator,
		loadTimeout: deps.LoadTimeout,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan event, 16),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		st:          newSessionState(),
	}
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case ev := <-s.events:
			ev.apply(s)
		case <-s.stop:
			s.cancel()
			return
		}
	}
}

// Close cancels pending loads and any running analysis and stops the loop
func (s *Session) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.stopped
}

func (s *Session) post(ev event) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.stop:
		return false
	}
}

func call[T any](s *Session, ev event, reply chan T) (T, error) {
	var zero T
	if !s.post(ev) {
		return zero, ErrSessionClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.stopped:
		return zero, ErrSessionClosed
	}
}

// Start fetches the image list and opens the first image. The list is
// fetched once; later calls after a successful fetch do nothing. After a
// failed fetch, Start or any navigation fetches it again.
func (s *Session) Start(ctx context.Context) error {
	names, err := s.images.List(ctx)
	reply := make(chan error, 1)
	res, callErr := call(s, listedEvent{names: names, err: err, reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return res
}

// Navigate moves to the image at index, clamped to the list bounds
func (s *Session) Navigate(index int) (State, error) {
	return s.navigate(navigateEvent{index: index})
}

// Next moves one image forward, staying on the last image
func (s *Session) Next() (State, error) {
	return s.navigate(navigateEvent{index: 1, relative: true})
}

// Prev moves one image back, staying on the first image
func (s *Session) Prev() (State, error) {
	return s.navigate(navigateEvent{index: -1, relative: true})
}

func (s *Session) navigate(ev navigateEvent) (State, error) {
	ev.reply = make(chan navigateReply, 1)
	res, err := call(s, ev, ev.reply)
	if err != nil {
		return State{}, err
	}
	return res.state, res.err
}

// Analyze starts a run over the current image and box set. Results are
// merged as they arrive; a second call while a run is active is a conflict.
func (s *Session) Analyze() (*RunHandle, error) {
	reply := make(chan analyzeReply, 1)
	res, err := call(s, analyzeEvent{reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	return res.handle, res.err
}

// Resize reports a new viewport width and returns the active tier
func (s *Session) Resize(width int) (viewport.Tier, bool, error) {
	reply := make(chan resizeReply, 1)
	res, err := call(s, resizeEvent{width: width, reply: reply}, reply)
	if err != nil {
		return viewport.Tier{}, false, err
	}
	return res.tier, res.changed, nil
}

// Snapshot returns the current state
func (s *Session) Snapshot() (State, error) {
	reply := make(chan State, 1)
	return call(s, snapshotEvent{reply: reply}, reply)
}

// Frame returns the render inputs of the current canvas, taken atomically.
// It fails with render.ErrFrameIncomplete while the image is not loaded.
func (s *Session) Frame() (render.Frame, error) {
	reply := make(chan frameReply, 1)
	res, err := call(s, frameEvent{reply: reply}, reply)
	if err != nil {
		return render.Frame{}, err
	}
	return res.frame, res.err
}

// loop handlers

func (s *Session) onListed(names []string, err error) error {
	st := s.st
	if st.listed {
		return nil
	}
	if err != nil {
		st.listErr = err
		s.publish(observer.Event{EventType: observer.ImagesListed, ErrorMessage: err.Error()})
		return err
	}

	st.images = append([]string{}, names...)
	st.listed = true
	st.listErr = nil
	s.publish(observer.Event{
		EventType: observer.ImagesListed,
		Success:   true,
		Metadata:  map[string]any{"count": len(names)},
	})
	if len(st.images) > 0 {
		s.moveTo(0)
	}
	return nil
}

func (s *Session) onNavigate(index int, relative bool) navigateReply {
	st := s.st
	if !st.listed {
		s.startListFetch()
		return navigateReply{err: apperrors.NewConflictError("image list is not loaded, reloading", st.listErr)}
	}
	if len(st.images) == 0 {
		return navigateReply{err: apperrors.NewNotFoundError("no images available", nil)}
	}
	if relative {
		index += st.index
	}
	s.moveTo(index)
	return navigateReply{state: st.snapshot(s.sizer.Current())}
}

// startListFetch refetches the image list unless a fetch is in flight
func (s *Session) startListFetch() {
	st := s.st
	if st.listing {
		return
	}
	st.listGen++
	st.listing = true
	gen := st.listGen
	ctx, cancel := s.loadContext()
	st.listCancel = cancel

	go func() {
		defer cancel()
		names, err := s.images.List(ctx)
		s.post(listFetchedEvent{gen: gen, names: names, err: err})
	}()
}

func (s *Session) onListFetched(e listFetchedEvent) {
	st := s.st
	if e.gen != st.listGen {
		s.dropStale("list", "")
		return
	}
	st.listing = false
	st.listCancel = nil
	if err := s.onListed(e.names, e.err); err != nil {
		logger.WithError(err).Warn("Image list reload failed")
	}
}

func (s *Session) moveTo(index int) {
	st := s.st
	index = max(0, min(index, len(st.images)-1))
	filename := st.images[index]
	if index == st.index && filename == st.current {
		return
	}

	previous := st.current
	st.index = index
	st.current = filename
	s.cancelRun()

	// image change
	st.imageGen++
	st.img = nil
	st.geom = nil
	st.imageErr = nil
	if st.imageCancel != nil {
		st.imageCancel()
	}
	s.startImageLoad()

	// stem change
	if stem := models.Stem(filename); stem != st.stem {
		st.stem = stem
		st.boxGen++
		st.boxes = nil
		st.boxesLoaded = false
		st.boxesErr = nil
		st.results.Clear()
		st.failures = make(map[int]service.BoxFailure)
		st.lastRun = nil
		if st.boxesCancel != nil {
			st.boxesCancel()
		}
		s.startBoxesLoad()
	}

	s.publish(observer.Event{
		EventType: observer.Navigated,
		Image:     filename,
		Success:   true,
		Metadata:  map[string]any{"index": index, "previous": previous},
	})
	s.invalidate("navigated")
}

func (s *Session) loadContext() (context.Context, context.CancelFunc) {
	if s.loadTimeout > 0 {
		return context.WithTimeout(s.ctx, s.loadTimeout)
	}
	return context.WithCancel(s.ctx)
}

func (s *Session) startImageLoad() {
	gen, filename := s.st.imageGen, s.st.current
	ctx, cancel := s.loadContext()
	s.st.imageCancel = cancel

	go func() {
		defer cancel()
		img, err := s.images.Open(ctx, filename)
		s.post(imageLoadedEvent{gen: gen, filename: filename, img: img, err: err})
	}()
}

func (s *Session) startBoxesLoad() {
	gen, stem := s.st.boxGen, s.st.stem
	ctx, cancel := s.loadContext()
	s.st.boxesCancel = cancel

	go func() {
		defer cancel()
		boxes, err := s.boxRepo.ListBoxes(ctx, stem)
		s.post(boxesLoadedEvent{gen: gen, stem: stem, boxes: boxes, err: err})
	}()
}

func (s *Session) onImageLoaded(e imageLoadedEvent) {
	st := s.st
	if e.gen != st.imageGen || e.filename != st.current {
		s.dropStale("image", e.filename)
		return
	}
	st.imageCancel = nil

	if e.err == nil {
		tier := s.sizer.Current()
		var g geometry.DrawGeometry
		g, e.err = geometry.FitImage(e.img, tier.CanvasWidth, tier.CanvasHeight)
		if e.err == nil {
			st.img = e.img
			st.geom = &g
		}
	}
	if e.err != nil {
		st.imageErr = e.err
		s.publish(observer.Event{EventType: observer.ImageLoadFailed, Image: e.filename, ErrorMessage: e.err.Error()})
		s.invalidate("image_failed")
		return
	}

	b := e.img.Bounds()
	s.publish(observer.Event{
		EventType: observer.ImageLoaded,
		Image:     e.filename,
		Success:   true,
		Metadata:  map[string]any{"width": b.Dx(), "height": b.Dy()},
	})
	s.invalidate("image_loaded")
}

func (s *Session) onBoxesLoaded(e boxesLoadedEvent) {
	st := s.st
	if e.gen != st.boxGen || e.stem != st.stem {
		s.dropStale("boxes", e.stem)
		return
	}
	st.boxesCancel = nil

	var valid []models.Box
	var rejected []validation.BoxIssue
	if e.err == nil {
		valid, rejected, e.err = s.validator.ValidateBoxSet(e.boxes)
	}
	if e.err != nil {
		st.boxesErr = e.err
		s.publish(observer.Event{EventType: observer.BoxesLoadFailed, Image: st.current, ErrorMessage: e.err.Error()})
		s.invalidate("boxes_failed")
		return
	}

	for _, issue := range rejected {
		logger.WithFields(logrus.Fields{
			"stem":   e.stem,
			"box_id": issue.BoxID,
			"field":  issue.Field,
		}).Warn("Dropping malformed box: " + issue.Message)
	}

	st.boxes = valid
	st.boxesLoaded = true
	s.publish(observer.Event{
		EventType: observer.BoxesLoaded,
		Image:     st.current,
		Success:   true,
		Metadata:  map[string]any{"boxes": len(valid), "rejected": len(rejected)},
	})
	s.invalidate("boxes_loaded")
}

func (s *Session) onAnalyze() analyzeReply {
	st := s.st
	switch {
	case st.current == "":
		return analyzeReply{err: apperrors.NewConflictError("no image selected", st.listErr)}
	case st.run != nil:
		return analyzeReply{err: apperrors.NewConflictError(
			fmt.Sprintf("analysis %s is already running", st.run.id), nil)}
	case !st.boxesLoaded:
		return analyzeReply{err: apperrors.NewConflictError("box set is not loaded", st.boxesErr)}
	}

	ctx, cancel := context.WithCancel(s.ctx)
	run := &activeRun{id: uuid.NewString(), boxGen: st.boxGen, cancel: cancel}
	st.run = run

	req := service.RunRequest{
		RunID: run.id,
		Image: st.current,
		Boxes: append([]models.Box{}, st.boxes...),
	}
	handle := &RunHandle{RunID: run.id, Image: req.Image, Boxes: len(req.Boxes), done: make(chan struct{})}
	go s.execute(ctx, run, req, handle)
	return analyzeReply{handle: handle}
}

func (s *Session) execute(ctx context.Context, run *activeRun, req service.RunRequest, handle *RunHandle) {
	defer close(handle.done)
	defer run.cancel()

	handler := service.ResultHandler{
		OnResult: func(r models.AnalysisResult) {
			s.deliver(resultEvent{runID: run.id, boxGen: run.boxGen, result: r, ack: make(chan struct{})})
		},
		OnFailure: func(f service.BoxFailure) {
			s.deliver(failureEvent{runID: run.id, boxGen: run.boxGen, failure: f, ack: make(chan struct{})})
		},
	}

	report, err := s.runner.Run(ctx, req, handler)
	handle.report, handle.err = report, err
	s.post(runDoneEvent{runID: run.id, report: report})
}

// deliver posts an acknowledged event and waits until the loop applied it
func (s *Session) deliver(ev event) {
	var ack chan struct{}
	switch e := ev.(type) {
	case resultEvent:
		ack = e.ack
	case failureEvent:
		ack = e.ack
	}
	if !s.post(ev) {
		return
	}
	select {
	case <-ack:
	case <-s.stopped:
	}
}

func (s *Session) onResult(e resultEvent) {
	st := s.st
	if e.boxGen != st.boxGen {
		s.dropStale("result", st.current)
		return
	}

	outcome := st.results.Merge(e.result)
	delete(st.failures, e.result.BoxID)
	if outcome.Replaced {
		logger.WithFields(logrus.Fields{
			"run_id": e.runID,
			"box_id": e.result.BoxID,
			"drift":  outcome.Drift,
		}).Debug("Replaced earlier result")
	}
	s.invalidate("result")
}

func (s *Session) onFailure(e failureEvent) {
	st := s.st
	if e.boxGen != st.boxGen {
		s.dropStale("failure", st.current)
		return
	}
	if e.failure.Canceled {
		return
	}
	st.failures[e.failure.BoxID] = e.failure
}

func (s *Session) onRunDone(e runDoneEvent) {
	st := s.st
	if st.run == nil || st.run.id != e.runID {
		return
	}
	st.run = nil
	st.lastRun = e.report
}

func (s *Session) cancelRun() {
	if s.st.run != nil {
		s.st.run.cancel()
		s.st.run = nil
	}
}

func (s *Session) onResize(width int) resizeReply {
	tier, changed := s.sizer.Resize(width)
	if !changed {
		return resizeReply{tier: tier}
	}

	st := s.st
	if st.img != nil {
		if g, err := geometry.FitImage(st.img, tier.CanvasWidth, tier.CanvasHeight); err == nil {
			st.geom = &g
		}
	}
	s.publish(observer.Event{
		EventType: observer.ViewportChanged,
		Success:   true,
		Metadata: map[string]any{
			"width":         width,
			"canvas_width":  tier.CanvasWidth,
			"canvas_height": tier.CanvasHeight,
		},
	})
	s.invalidate("viewport")
	return resizeReply{tier: tier, changed: true}
}

func (s *Session) frame() frameReply {
	st := s.st
	if st.img == nil || st.geom == nil {
		return frameReply{err: render.ErrFrameIncomplete}
	}
	return frameReply{frame: render.Frame{
		Image:    st.img,
		Geometry: *st.geom,
		Boxes:    append([]models.Box{}, st.boxes...),
		Results:  st.results.Snapshot(),
	}}
}

func (s *Session) invalidate(reason string) {
	s.st.repaints++
	s.publish(observer.Event{
		EventType: observer.CanvasInvalidated,
		Image:     s.st.current,
		Success:   true,
		Metadata:  map[string]any{"reason": reason, "repaint": s.st.repaints},
	})
}

func (s *Session) dropStale(kind, name string) {
	logger.WithFields(logrus.Fields{
		"kind": kind,
		"name": name,
	}).Debug("Dropping stale response")
	s.publish(observer.Event{
		EventType: observer.StaleDropped,
		Image:     name,
		Metadata:  map[string]any{"kind": kind},
	})
}

func (s *Session) publish(event observer.Event) {
	if s.publisher != nil {
		s.publisher.NotifyObservers(s.ctx, event)
	}
}

// RunHandle follows one analysis run started by Analyze
type RunHandle struct {
	RunID  string
	Image  string
	Boxes  int
	done   chan struct{}
	report *service.RunReport
	err    error
}

// Done is closed when the run has finished
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes or ctx is done
func (h *RunHandle) Wait(ctx context.Context) (*service.RunReport, error) {
	select {
	case <-h.done:
		return h.report, h.err
	case <-ctx.Done():
		return nil, apperrors.NewTimeoutError("stopped waiting for analysis "+h.RunID, ctx.Err())
	}
}
