package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/parking.report/internal/parking/enhance"
	"github.com/banshee-data/parking.report/internal/parking/geometry"
	"github.com/banshee-data/parking.report/internal/parking/overlap"
	"github.com/banshee-data/parking.report/internal/parking/rectify"
	"github.com/banshee-data/parking.report/internal/parking/temporal"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// spotState pairs immutable geometry with the spot's mutable filter.
type spotState struct {
	geom   *geometry.Spot
	filter *temporal.Filter
}

// Engine infers occupancy for one lot.
type Engine struct {
	cfg   Config
	runID string

	clock     timeutil.Clock
	detector  Detector
	sink      ReportingSink
	scorer    overlap.Scorer
	rectifier *rectify.Rectifier
	contrast  *enhance.Contrast
	index     *overlap.SpotIndex

	// Loop-owned state. spots is sorted by id; byID is the arena.
	spots             []*spotState
	byID              map[int]*spotState
	previousFreeCount int
	pending           map[int]struct{}
	baselineSent      bool
	lastStamp         temporal.Stamp

	snapshot atomic.Pointer[LotSnapshot]
	stats    Stats
}

var noDetections = DetectorFunc(func(context.Context, Frame) ([]Detection, error) { return nil, nil })

var discardSink = ReportingSinkFunc(func(context.Context, Report) error { return nil })

// New validates cfg and every spot and returns an engine with all spots
// FREE. Any malformed spot, a duplicate id or an empty lot fails the whole
// lot with an error wrapping ErrInvalidGeometry.
func New(cfg Config, spots []SpotConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(spots) == 0 {
		return nil, fmt.Errorf("%w: lot %s has no spots", ErrInvalidGeometry, cfg.LotID)
	}

	e := &Engine{
		cfg:               cfg,
		clock:             timeutil.RealClock{},
		detector:          noDetections,
		sink:              discardSink,
		byID:              make(map[int]*spotState, len(spots)),
		pending:           make(map[int]struct{}),
		previousFreeCount: -1,
	}

	geoms := make([]*geometry.Spot, 0, len(spots))
	for _, sc := range spots {
		if _, dup := e.byID[sc.ID]; dup {
			return nil, fmt.Errorf("%w: lot %s: duplicate spot id %d", ErrInvalidGeometry, cfg.LotID, sc.ID)
		}
		g, err := geometry.NewSpot(sc.ID, sc.Points)
		if err != nil {
			return nil, fmt.Errorf("lot %s: %w", cfg.LotID, err)
		}
		st := &spotState{geom: g, filter: temporal.NewFilter(cfg.Filter, false)}
		e.byID[sc.ID] = st
		e.spots = append(e.spots, st)
		geoms = append(geoms, g)
	}
	sort.Slice(e.spots, func(i, j int) bool { return e.spots[i].geom.ID() < e.spots[j].geom.ID() })
	e.index = overlap.NewSpotIndex(geoms)

	for _, opt := range opts {
		opt(e)
	}
	if e.scorer == nil {
		sc, err := overlap.New(cfg.OverlapMode)
		if err != nil {
			return nil, err
		}
		e.scorer = sc
	}
	if e.rectifier == nil {
		e.rectifier = rectify.NewRectifier(cfg.Calibration)
	}
	if cfg.Contrast != nil {
		c, err := enhance.NewContrast(*cfg.Contrast)
		if err != nil {
			return nil, err
		}
		e.contrast = c
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}

	e.publish(e.freeCount())
	return e, nil
}

// LotID returns the configured lot identifier.
func (e *Engine) LotID() string { return e.cfg.LotID }

// RunID returns the identifier stamped on this engine's reports.
func (e *Engine) RunID() string { return e.runID }

// TotalSpots returns the number of spots in the lot.
func (e *Engine) TotalSpots() int { return len(e.spots) }

// Stats returns the live counters.
func (e *Engine) Stats() *Stats { return &e.stats }

// Snapshot returns the state published after the most recent frame. It is
// safe to call from any goroutine.
func (e *Engine) Snapshot() LotSnapshot {
	s := e.snapshot.Load()
	out := *s
	out.Stats = e.stats.Snapshot()
	return out
}

// Step feeds one frame's detections through every spot's filter and
// returns the report to emit, or nil when nothing changed. Spots are
// visited in ascending id order. A spot whose score cannot be computed
// keeps its state for this frame.
func (e *Engine) Step(at temporal.Stamp, detections []Detection) *Report {
	candidates := e.candidates(detections)

	var flipped int
	for _, st := range e.spots {
		id := st.geom.ID()
		observed, err := e.observe(st.geom, candidates[id])
		if err != nil {
			e.stats.SkippedSpots.Add(1)
			opsf("lot %s frame %d: skipping spot %d: %v", e.cfg.LotID, at.Frame, id, err)
			continue
		}
		if st.filter.Push(observed, at) {
			flipped++
			e.pending[id] = struct{}{}
			tracef("lot %s frame %d: spot %d -> %s", e.cfg.LotID, at.Frame, id, stateName(st.filter.Current()))
		}
	}

	free := e.freeCount()
	e.lastStamp = at
	e.stats.Frames.Add(1)
	tracef("lot %s frame %d: %d detections, %d flips, %d/%d free",
		e.cfg.LotID, at.Frame, len(detections), flipped, free, len(e.spots))

	// Spots left pending by a failed delivery wait for the next genuine
	// change; they never force a report on their own.
	if free == e.previousFreeCount && flipped == 0 {
		e.stats.SilentFrames.Add(1)
		e.publish(free)
		return nil
	}

	r := e.buildReport(at, free)
	e.baselineSent = true
	e.previousFreeCount = free
	e.pending = make(map[int]struct{})
	e.publish(free)
	return r
}

// ProcessFrame runs one frame end to end: rectify, equalise contrast when
// configured, detect, Step and deliver the report. Per-frame failures are
// logged and counted, never returned; the only error is the context's when
// it is done.
func (e *Engine) ProcessFrame(ctx context.Context, frame Frame) error {
	start := e.clock.Now()
	defer func() {
		e.stats.lastFrameLatencyMicros.Store(e.clock.Since(start).Microseconds())
	}()

	if frame.Timestamp.IsZero() {
		frame.Timestamp = start
	}

	if frame.Image != nil {
		img, err := e.rectifier.Rectify(frame.Image)
		if err != nil {
			e.stats.RectificationFailures.Add(1)
			opsf("lot %s frame %d: using unrectified frame: %v", e.cfg.LotID, frame.Seq, err)
		}
		frame.Image = img
		if e.contrast != nil {
			frame.Image = e.contrast.Apply(frame.Image)
		}
	}

	detections, err := e.detector.Detect(ctx, frame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.stats.DetectorFailures.Add(1)
		opsf("lot %s frame %d: %v: %v", e.cfg.LotID, frame.Seq, ErrDetection, err)
		return nil
	}
	e.stats.Detections.Add(uint64(len(detections)))

	r := e.Step(temporal.Stamp{Frame: frame.Seq, Time: frame.Timestamp}, detections)
	if r == nil {
		return nil
	}
	e.deliver(ctx, r)
	return nil
}

// Run processes frames from source until it is exhausted or ctx is done.
// End of stream returns nil; cancellation returns the context's error.
// The stop signal is only checked between frames. source is closed on
// every exit path.
func (e *Engine) Run(ctx context.Context, source FrameSource) error {
	defer func() {
		if cerr := source.Close(); cerr != nil {
			opsf("lot %s: closing frame source: %v", e.cfg.LotID, cerr)
		}
	}()

	var tick <-chan time.Time
	if e.cfg.FrameInterval > 0 {
		t := e.clock.NewTicker(e.cfg.FrameInterval)
		defer t.Stop()
		tick = t.C()
	}

	diagf("lot %s: run %s started with %d spots", e.cfg.LotID, e.runID, len(e.spots))
	for {
		if err := ctx.Err(); err != nil {
			diagf("lot %s: stopped after %d frames", e.cfg.LotID, e.stats.Frames.Load())
			return err
		}

		frame, err := source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrFrameUnavailable), errors.Is(err, io.EOF):
				diagf("lot %s: end of stream after %d frames", e.cfg.LotID, e.stats.Frames.Load())
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return fmt.Errorf("lot %s: read frame: %w", e.cfg.LotID, err)
			}
		}

		if err := e.ProcessFrame(ctx, frame); err != nil {
			return err
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}
}

// deliver sends r to the sink. On failure the report's spots are queued
// again and merged into the next report; a failed baseline is re-sent as
// the baseline of that report.
func (e *Engine) deliver(ctx context.Context, r *Report) {
	sctx := ctx
	if e.cfg.ReportTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, e.cfg.ReportTimeout)
		defer cancel()
	}

	if err := e.sink.Report(sctx, *r); err != nil {
		e.stats.ReportFailures.Add(1)
		for _, id := range r.ChangedSpotIDs {
			e.pending[id] = struct{}{}
		}
		if r.Baseline {
			e.baselineSent = false
		}
		opsf("%v", &ReportingError{LotID: e.cfg.LotID, Frame: r.Frame, Err: err})
		return
	}
	e.stats.Reports.Add(1)
	diagf("lot %s frame %d: %d/%d free, changed %v", r.LotID, r.Frame, r.FreeCount, r.TotalSpots, r.ChangedSpotIDs)
}

// candidates maps spot id to the boxes that can overlap it.
func (e *Engine) candidates(detections []Detection) map[int][]geometry.Box {
	out := make(map[int][]geometry.Box)
	for _, d := range detections {
		for _, s := range e.index.Candidates(d.Box) {
			out[s.ID()] = append(out[s.ID()], d.Box)
		}
	}
	return out
}

func (e *Engine) observe(spot *geometry.Spot, boxes []geometry.Box) (bool, error) {
	for _, b := range boxes {
		score, err := e.scorer.Score(spot, b)
		if err != nil {
			return false, err
		}
		if score > e.cfg.OverlapThreshold {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) freeCount() int {
	n := 0
	for _, st := range e.spots {
		if !st.filter.Current() {
			n++
		}
	}
	return n
}

func (e *Engine) buildReport(at temporal.Stamp, free int) *Report {
	baseline := !e.baselineSent

	ids := make([]int, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	r := &Report{
		LotID:          e.cfg.LotID,
		RunID:          e.runID,
		Frame:          at.Frame,
		Timestamp:      at.Time,
		FreeCount:      free,
		TotalSpots:     len(e.spots),
		Probability:    float64(free) / float64(len(e.spots)),
		Baseline:       baseline,
		ChangedSpotIDs: ids,
	}

	if baseline {
		r.Spots = make([]SpotChange, 0, len(e.spots))
		for _, st := range e.spots {
			r.Spots = append(r.Spots, spotChange(st))
		}
		return r
	}
	r.Spots = make([]SpotChange, 0, len(ids))
	for _, id := range ids {
		r.Spots = append(r.Spots, spotChange(e.byID[id]))
	}
	return r
}

func spotChange(st *spotState) SpotChange {
	at := st.filter.LastChangedAt()
	return SpotChange{
		ID:        st.geom.ID(),
		Occupied:  st.filter.Current(),
		Frame:     at.Frame,
		ChangedAt: at.Time,
	}
}

func (e *Engine) publish(free int) {
	snap := &LotSnapshot{
		LotID:      e.cfg.LotID,
		Name:       e.cfg.Name,
		RunID:      e.runID,
		Frame:      e.lastStamp.Frame,
		Timestamp:  e.lastStamp.Time,
		FreeCount:  free,
		TotalSpots: len(e.spots),
		Spots:      make([]SpotSnapshot, 0, len(e.spots)),
	}
	for _, st := range e.spots {
		at := st.filter.LastChangedAt()
		snap.Spots = append(snap.Spots, SpotSnapshot{
			ID:               st.geom.ID(),
			Occupied:         st.filter.Current(),
			OccupiedFraction: st.filter.OccupiedFraction(),
			LastChangedFrame: at.Frame,
			LastChangedAt:    at.Time,
			Polygon:          st.geom.Polygon(),
		})
	}
	e.snapshot.Store(snap)
}

func stateName(occupied bool) string {
	if occupied {
		return "OCCUPIED"
	}
	return "FREE"
}
