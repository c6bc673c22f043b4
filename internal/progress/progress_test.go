package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerSnapshotReflectsCounters(t *testing.T) {
	tr := NewTracker(StageHash)
	tr.SetTotals(10, 1000)
	tr.AddFilesDone(3)
	tr.AddBytesDone(300)
	tr.AddError(1)
	tr.SetCurrentPath("a/b.mp4")

	ev := tr.snapshot()
	assert.Equal(t, StageHash, ev.Stage)
	assert.Equal(t, int64(3), ev.FilesDone)
	assert.Equal(t, int64(10), ev.FilesTotal)
	assert.Equal(t, int64(300), ev.BytesDone)
	assert.Equal(t, int64(1000), ev.BytesTotal)
	assert.Equal(t, int64(1), ev.Errors)
	assert.Equal(t, "a/b.mp4", ev.CurrentPath)
	assert.False(t, ev.Done)
}

func TestTrackerTickBuildsRollingThroughput(t *testing.T) {
	tr := NewTracker(StageCopy)
	tr.AddBytesDone(1000)
	tr.tick()
	tr.AddBytesDone(1000)
	tr.tick()

	rate := tr.rollingBytesPerSec(10)
	assert.Greater(t, rate, 0.0)
}

func TestTrackerETAIsZeroWithNoThroughput(t *testing.T) {
	tr := NewTracker(StageCopy)
	tr.SetTotals(0, 1000)
	ev := tr.snapshot()
	assert.Equal(t, time.Duration(0), ev.ETA)
}

func TestTrackerETAShrinksAsBytesComplete(t *testing.T) {
	tr := NewTracker(StageCopy)
	tr.SetTotals(0, 1000)
	tr.AddBytesDone(100)
	tr.tick()
	ev := tr.snapshot()
	require.Greater(t, ev.BytesPerSec, 0.0)
	assert.Greater(t, ev.ETA, time.Duration(0))
	first := ev.ETA

	tr.AddBytesDone(400)
	tr.tick()
	ev = tr.snapshot()
	assert.Less(t, ev.ETA, first)
}

func TestSparklineDataReturnsOldestFirst(t *testing.T) {
	tr := NewTracker(StageScan)
	for i := int64(1); i <= 5; i++ {
		tr.AddBytesDone(i * 10)
		tr.tick()
	}
	data := tr.SparklineData(3)
	require.Len(t, data, 3)
	// deltas are 30, 40, 50 for the last three ticks, oldest first.
	assert.Equal(t, []float64{30, 40, 50}, data)
}

func TestSparklineDataEmptyBeforeAnyTick(t *testing.T) {
	tr := NewTracker(StageScan)
	assert.Nil(t, tr.SparklineData(5))
}

func TestDispatcherEmitsPeriodicEventsAndFinalDoneEvent(t *testing.T) {
	tr := NewTracker(StagePlan)
	tr.SetTotals(1, 1)

	var mu sync.Mutex
	var events []Event
	presenter := PresenterFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(tr, presenter, 20)

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Done)
}

func TestNewDispatcherClampsNonPositiveHz(t *testing.T) {
	tr := NewTracker(StageVerify)
	d := NewDispatcher(tr, PresenterFunc(func(Event) {}), 0)
	assert.Equal(t, time.Second, d.interval)
}
