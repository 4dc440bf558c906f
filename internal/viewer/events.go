package viewer

import (
	"image"

	"go-pricetag-viewer/internal/render"
	"go-pricetag-viewer/internal/service"
	"go-pricetag-viewer/internal/viewport"
	"go-pricetag-viewer/pkg/models"
)

// event is a message handled on the loop goroutine
type event interface {
	apply(s *Session)
}

type listedEvent struct {
	names []string
	err   error
	reply chan error
}

func (e listedEvent) apply(s *Session) {
	e.reply <- s.onListed(e.names, e.err)
}

// listFetchedEvent completes a list fetch started from the loop
type listFetchedEvent struct {
	gen   uint64
	names []string
	err   error
}

func (e listFetchedEvent) apply(s *Session) { s.onListFetched(e) }

// navigateEvent moves to index, or by delta from the current index when relative
type navigateEvent struct {
	index    int
	relative bool
	reply    chan navigateReply
}

type navigateReply struct {
	state State
	err   error
}

func (e navigateEvent) apply(s *Session) {
	e.reply <- s.onNavigate(e.index, e.relative)
}

type imageLoadedEvent struct {
	gen      uint64
	filename string
	img      image.Image
	err      error
}

func (e imageLoadedEvent) apply(s *Session) { s.onImageLoaded(e) }

type boxesLoadedEvent struct {
	gen   uint64
	stem  string
	boxes []models.Box
	err   error
}

func (e boxesLoadedEvent) apply(s *Session) { s.onBoxesLoaded(e) }

type analyzeEvent struct {
	reply chan analyzeReply
}

type analyzeReply struct {
	handle *RunHandle
	err    error
}

func (e analyzeEvent) apply(s *Session) {
	e.reply <- s.onAnalyze()
}

// resultEvent is acknowledged once merged so the next box is only sent
// after the previous result is visible.
type resultEvent struct {
	runID  string
	boxGen uint64
	result models.AnalysisResult
	ack    chan struct{}
}

func (e resultEvent) apply(s *Session) {
	s.onResult(e)
	close(e.ack)
}

type failureEvent struct {
	runID   string
	boxGen  uint64
	failure service.BoxFailure
	ack     chan struct{}
}

func (e failureEvent) apply(s *Session) {
	s.onFailure(e)
	close(e.ack)
}

type runDoneEvent struct {
	runID  string
	report *service.RunReport
}

func (e runDoneEvent) apply(s *Session) { s.onRunDone(e) }

type resizeEvent struct {
	width int
	reply chan resizeReply
}

type resizeReply struct {
	tier    viewport.Tier
	changed bool
}

func (e resizeEvent) apply(s *Session) {
	e.reply <- s.onResize(e.width)
}

type snapshotEvent struct {
	reply chan State
}

func (e snapshotEvent) apply(s *Session) {
	e.reply <- s.st.snapshot(s.sizer.Current())
}

type frameEvent struct {
	reply chan frameReply
}

type frameReply struct {
	frame render.Frame
	err   error
}

func (e frameEvent) apply(s *Session) {
	e.reply <- s.frame()
}
