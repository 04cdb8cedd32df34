// Package supervisor runs many lots side by side. Each lot gets its own
// engine and goroutine; lots share nothing mutable, and one lot failing to
// start or stopping with an error never affects the others.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/parking.report/internal/parking/engine"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// SourceOpener opens the frame source for a lot. It is called on the
// lot's goroutine just before the frame loop starts.
type SourceOpener func(ctx context.Context) (engine.FrameSource, error)

// LotSpec describes one lot to run. A non-nil Err marks a lot whose
// configuration could not be converted; it is recorded as failed and
// never built.
type LotSpec struct {
	Config  engine.Config
	Spots   []engine.SpotConfig
	Options []engine.Option
	Open    SourceOpener
	Err     error
}

// State is where a lot is in its lifecycle.
type State string

const (
	StateFailed   State = "failed"   // never started: bad configuration or source
	StateRunning  State = "running"  // frame loop active
	StateFinished State = "finished" // source exhausted
	StateStopped  State = "stopped"  // cancelled, or the loop returned an error
)

// LotStatus reports the lifecycle of one lot.
type LotStatus struct {
	LotID      string    `json:"lot_id"`
	State      State     `json:"state"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Supervisor owns the engines of every configured lot.
type Supervisor struct {
	clock       timeutil.Clock
	maxParallel int
	onStart     func(*engine.Engine) error

	mu      sync.RWMutex
	engines map[string]*engine.Engine
	status  map[string]*LotStatus
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithMaxParallel caps how many lots run at once. Zero or negative means
// no cap.
func WithMaxParallel(n int) Option {
	return func(s *Supervisor) { s.maxParallel = n }
}

// WithClock sets the clock used for status timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithStartHook registers fn to run for every engine after it is built
// and before its frame loop starts. An error fails that lot.
func WithStartHook(fn func(*engine.Engine) error) Option {
	return func(s *Supervisor) { s.onStart = fn }
}

// New returns an empty Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		clock:   timeutil.RealClock{},
		engines: make(map[string]*engine.Engine),
		status:  make(map[string]*LotStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run builds an engine for every lot and runs them until their sources end
// or ctx is done. Lots that fail to build are recorded and skipped. The
// returned error joins every lot failure other than cancellation; it is
// nil when all lots started and ended cleanly.
func (s *Supervisor) Run(ctx context.Context, lots []LotSpec) error {
	var failures []error

	type runnable struct {
		eng  *engine.Engine
		open SourceOpener
	}
	var ready []runnable

	for _, spec := range lots {
		id := spec.Config.LotID
		if err := s.register(id); err != nil {
			failures = append(failures, err)
			opsf("%v", err)
			continue
		}
		if spec.Err != nil {
			failures = append(failures, s.fail(id, spec.Err))
			continue
		}
		eng, err := engine.New(spec.Config, spec.Spots, spec.Options...)
		if err != nil {
			failures = append(failures, s.fail(id, err))
			continue
		}
		if spec.Open == nil {
			failures = append(failures, s.fail(id, errors.New("no frame source configured")))
			continue
		}
		if s.onStart != nil {
			if err := s.onStart(eng); err != nil {
				failures = append(failures, s.fail(id, err))
				continue
			}
		}
		s.mu.Lock()
		s.engines[id] = eng
		s.mu.Unlock()
		ready = append(ready, runnable{eng: eng, open: spec.Open})
	}

	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}

	var mu sync.Mutex
	for _, r := range ready {
		g.Go(func() error {
			if err := s.runLot(ctx, r.eng, r.open); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(failures...)
}

func (s *Supervisor) runLot(ctx context.Context, eng *engine.Engine, open SourceOpener) error {
	id := eng.LotID()
	src, err := open(ctx)
	if err != nil {
		return s.fail(id, fmt.Errorf("open frame source: %w", err))
	}
	tracef("lot %s: frame source opened", id)

	s.setState(id, StateRunning, nil)
	diagf("lot %s: running %d spots (run %s)", id, eng.TotalSpots(), eng.RunID())

	err = eng.Run(ctx, src)
	switch {
	case err == nil:
		s.setState(id, StateFinished, nil)
		diagf("lot %s: finished", id)
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.setState(id, StateStopped, nil)
		diagf("lot %s: stopped", id)
		return nil
	default:
		s.setState(id, StateStopped, err)
		opsf("lot %s: %v", id, err)
		return fmt.Errorf("lot %s: %w", id, err)
	}
}

func (s *Supervisor) register(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.status[id]; dup {
		return fmt.Errorf("lot %q configured twice", id)
	}
	s.status[id] = &LotStatus{LotID: id}
	return nil
}

func (s *Supervisor) fail(id string, err error) error {
	s.setState(id, StateFailed, err)
	opsf("lot %s: not started: %v", id, err)
	return fmt.Errorf("lot %s: %w", id, err)
}

func (s *Supervisor) setState(id string, st State, err error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.status[id]
	if !ok {
		ls = &LotStatus{LotID: id}
		s.status[id] = ls
	}
	ls.State = st
	if err != nil {
		ls.Err = err.Error()
	}
	switch st {
	case StateRunning:
		ls.StartedAt = now
	case StateFinished, StateStopped, StateFailed:
		ls.FinishedAt = now
	}
}

// Engine returns the engine for lotID.
func (s *Supervisor) Engine(lotID string) (*engine.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[lotID]
	return e, ok
}

// Engines returns every started engine ordered by lot id.
func (s *Supervisor) Engines() []*engine.Engine {
	s.mu.RLock()
	out := make([]*engine.Engine, 0, len(s.engines))
	for _, e := range s.engines {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LotID() < out[j].LotID() })
	return out
}

// Status returns the lifecycle of every configured lot ordered by lot id.
func (s *Supervisor) Status() []LotStatus {
	s.mu.RLock()
	out := make([]LotStatus, 0, len(s.status))
	for _, ls := range s.status {
		out = append(out, *ls)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LotID < out[j].LotID })
	return out
}
