// Package progress aggregates per-stage counters into throttled progress
// events. Workers bump atomic counters as they go; a single dispatcher
// goroutine coalesces them into an Event on a fixed cadence and hands it to
// a Presenter by a direct call, instead of emitting one event per file
// through a non-blocking send as the teacher's event package did.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Stage names the pipeline phase a Tracker reports for.
type Stage string

const (
	StageScan   Stage = "scan"
	StageHash   Stage = "hash"
	StagePlan   Stage = "plan"
	StageCopy   Stage = "copy"
	StageVerify Stage = "verify"
)

// Event is the envelope of spec.md §5/§6: stage tag, done vs total for
// files and bytes, the file currently in flight, a running error count,
// throughput, ETA and whether the stage is paused.
type Event struct {
	Stage       Stage
	Timestamp   time.Time
	FilesDone   int64
	FilesTotal  int64
	BytesDone   int64
	BytesTotal  int64
	CurrentPath string
	Errors      int64
	BytesPerSec float64
	ETA         time.Duration
	Paused      bool
	Done        bool
}

// Tracker holds the atomic counters for one stage. Workers call its Add*
// and SetCurrentPath methods from any goroutine; only the Dispatcher
// advances the ring buffer, via tick, and SparklineData reads it.
type Tracker struct {
	stage Stage

	filesDone  atomic.Int64
	filesTotal atomic.Int64
	bytesDone  atomic.Int64
	bytesTotal atomic.Int64
	errors     atomic.Int64
	paused     atomic.Bool

	pathMu  sync.Mutex
	current string

	ringMu    sync.Mutex
	ring      [ringSize]int64
	ringIdx   int
	ringCount int
	lastBytes int64
}

// NewTracker creates a Tracker for the given stage.
func NewTracker(stage Stage) *Tracker {
	return &Tracker{stage: stage}
}

func (t *Tracker) SetTotals(files, bytes int64) {
	t.filesTotal.Store(files)
	t.bytesTotal.Store(bytes)
}

func (t *Tracker) AddFilesDone(n int64)  { t.filesDone.Add(n) }
func (t *Tracker) AddBytesDone(n int64)  { t.bytesDone.Add(n) }
func (t *Tracker) AddError(n int64)      { t.errors.Add(n) }
func (t *Tracker) SetPaused(paused bool) { t.paused.Store(paused) }

func (t *Tracker) SetCurrentPath(path string) {
	t.pathMu.Lock()
	t.current = path
	t.pathMu.Unlock()
}

func (t *Tracker) currentPath() string {
	t.pathMu.Lock()
	defer t.pathMu.Unlock()
	return t.current
}

// tick samples the byte-delta ring buffer. Called once per dispatcher
// cadence, never by worker goroutines.
func (t *Tracker) tick() {
	current := t.bytesDone.Load()

	t.ringMu.Lock()
	defer t.ringMu.Unlock()

	delta := current - t.lastBytes
	t.lastBytes = current
	t.ring[t.ringIdx] = delta
	t.ringIdx = (t.ringIdx + 1) % ringSize
	if t.ringCount < ringSize {
		t.ringCount++
	}
}

// SparklineData returns up to n of the most recent per-tick byte deltas,
// oldest first, for rendering a throughput sparkline.
func (t *Tracker) SparklineData(n int) []float64 {
	t.ringMu.Lock()
	defer t.ringMu.Unlock()

	count := n
	if count > t.ringCount {
		count = t.ringCount
	}
	if count == 0 {
		return nil
	}
	data := make([]float64, count)
	for i := 0; i < count; i++ {
		idx := (t.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(t.ring[idx])
	}
	return data
}

// rollingBytesPerSec averages the last n seconds of byte deltas.
func (t *Tracker) rollingBytesPerSec(seconds int) float64 {
	t.ringMu.Lock()
	defer t.ringMu.Unlock()

	count := seconds
	if count > t.ringCount {
		count = t.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < count; i++ {
		idx := (t.ringIdx - 1 - i + ringSize) % ringSize
		sum += t.ring[idx]
	}
	return float64(sum) / float64(count)
}

// snapshot builds the Event for the current counter state. tick must be
// called first by the caller so the throughput window is fresh.
func (t *Tracker) snapshot() Event {
	bytesPerSec := t.rollingBytesPerSec(10)
	var eta time.Duration
	if bytesPerSec > 0 {
		remaining := t.bytesTotal.Load() - t.bytesDone.Load()
		if remaining > 0 {
			eta = time.Duration(float64(remaining)/bytesPerSec) * time.Second
		}
	}
	return Event{
		Stage:       t.stage,
		Timestamp:   time.Now(),
		FilesDone:   t.filesDone.Load(),
		FilesTotal:  t.filesTotal.Load(),
		BytesDone:   t.bytesDone.Load(),
		BytesTotal:  t.bytesTotal.Load(),
		CurrentPath: t.currentPath(),
		Errors:      t.errors.Load(),
		BytesPerSec: bytesPerSec,
		ETA:         eta,
		Paused:      t.paused.Load(),
	}
}

// Presenter consumes coalesced Events. Implementations must return quickly:
// the dispatcher calls Present synchronously on its own goroutine, so a slow
// presenter delays the next tick; no event is dropped.
type Presenter interface {
	Present(Event)
}

// PresenterFunc adapts a function to a Presenter.
type PresenterFunc func(Event)

func (f PresenterFunc) Present(e Event) { f(e) }

// Dispatcher coalesces one Tracker's counters into periodic Events
// for a Presenter, at a cadence derived from concurrency.Tier.UpdateHz
// (1Hz for the Eco profile, 5Hz otherwise per spec.md §4.3).
type Dispatcher struct {
	tracker   *Tracker
	presenter Presenter
	interval  time.Duration
}

// NewDispatcher builds a Dispatcher. hz must be > 0; it is clamped to 1
// if a caller passes 0 so a misconfigured profile never produces a
// zero-duration ticker.
func NewDispatcher(tracker *Tracker, presenter Presenter, hz int) *Dispatcher {
	if hz <= 0 {
		hz = 1
	}
	return &Dispatcher{
		tracker:   tracker,
		presenter: presenter,
		interval:  time.Second / time.Duration(hz),
	}
}

// Run ticks until ctx is cancelled, emitting one coalesced Event per tick,
// and a final Event with Done set once the loop exits.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.tracker.tick()
			e := d.tracker.snapshot()
			e.Done = true
			d.presenter.Present(e)
			return
		case <-ticker.C:
			d.tracker.tick()
			d.presenter.Present(d.tracker.snapshot())
		}
	}
}
