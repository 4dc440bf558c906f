package viewer

import (
	"image"
	"sort"

	"go-pricetag-viewer/internal/geometry"
	"go-pricetag-viewer/internal/service"
	"go-pricetag-viewer/internal/viewport"
	"go-pricetag-viewer/pkg/models"
)

// BoxView is a box as currently drawn on the canvas
type BoxView struct {
	models.Box
	// Rect is nil until the image geometry is known
	Rect     *geometry.Rect `json:"rect,omitempty"`
	Resolved bool           `json:"resolved"`
}

// State is an immutable snapshot of the session
type State struct {
	Images      []string                `json:"images"`
	Index       int                     `json:"index"`
	Image       string                  `json:"image,omitempty"`
	Stem        string                  `json:"stem,omitempty"`
	Tier        viewport.Tier           `json:"tier"`
	Geometry    *geometry.DrawGeometry  `json:"geometry,omitempty"`
	ImageLoaded bool                    `json:"image_loaded"`
	BoxesLoaded bool                    `json:"boxes_loaded"`
	Boxes       []BoxView               `json:"boxes"`
	Results     []models.AnalysisResult `json:"results"`
	Failures    []service.BoxFailure    `json:"failures"`
	Errors      Errors                  `json:"errors"`
	Analyzing   bool                    `json:"analyzing"`
	RunID       string                  `json:"run_id,omitempty"`
	LastRun     *service.RunReport      `json:"last_run,omitempty"`
	Repaints    int64                   `json:"repaints"`
}

// Errors holds the visible error of each scope; empty means none
type Errors struct {
	Session string `json:"session,omitempty"`
	Image   string `json:"image,omitempty"`
	Boxes   string `json:"boxes,omitempty"`
}

// activeRun is the orchestrator run currently in flight
type activeRun struct {
	id     string
	boxGen uint64
	cancel func()
}

// sessionState is owned by the event loop goroutine
type sessionState struct {
	images     []string
	listed     bool
	listErr    error
	listGen    uint64
	listing    bool
	listCancel func()

	index   int
	current string
	stem    string

	imageGen    uint64
	img         image.Image
	geom        *geometry.DrawGeometry
	imageErr    error
	imageCancel func()

	boxGen      uint64
	boxes       []models.Box
	boxesLoaded bool
	boxesErr    error
	boxesCancel func()

	results  *service.ResultSet
	failures map[int]service.BoxFailure
	run      *activeRun
	lastRun  *service.RunReport

	repaints int64
}

func newSessionState() *sessionState {
	return &sessionState{
		results:  service.NewResultSet(),
		failures: make(map[int]service.BoxFailure),
	}
}

func (st *sessionState) snapshot(tier viewport.Tier) State {
	out := State{
		Images:      append([]string{}, st.images...),
		Index:       st.index,
		Image:       st.current,
		Stem:        st.stem,
		Tier:        tier,
		ImageLoaded: st.img != nil && st.geom != nil,
		BoxesLoaded: st.boxesLoaded,
		Boxes:       make([]BoxView, 0, len(st.boxes)),
		Results:     st.results.Snapshot(),
		Failures:    make([]service.BoxFailure, 0, len(st.failures)),
		Errors: Errors{
			Session: errorText(st.listErr),
			Image:   errorText(st.imageErr),
			Boxes:   errorText(st.boxesErr),
		},
		Analyzing: st.run != nil,
		LastRun:   st.lastRun,
		Repaints:  st.repaints,
	}
	if st.geom != nil {
		g := *st.geom
		out.Geometry = &g
	}
	if st.run != nil {
		out.RunID = st.run.id
	}

	for _, b := range st.boxes {
		view := BoxView{Box: b, Resolved: st.results.Has(b.ID)}
		if st.geom != nil {
			r := st.geom.Project(b.Box)
			view.Rect = &r
		}
		out.Boxes = append(out.Boxes, view)
	}

	for _, f := range st.failures {
		out.Failures = append(out.Failures, f)
	}
	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].BoxID < out.Failures[j].BoxID })
	return out
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
