package housekeeping

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photontag/tagstreamd/internal/jobmanager"
)

type fakeRotator struct {
	resets atomic.Int32
	err    error
}

func (f *fakeRotator) Reset() error {
	f.resets.Add(1)
	return f.err
}

type fakeJobLister struct {
	snapshot []jobmanager.JobSummary
}

func (f *fakeJobLister) WaitingSnapshot() []jobmanager.JobSummary {
	return f.snapshot
}

func TestRegisterTagFileRotationRunsReset(t *testing.T) {
	h, err := New()
	require.NoError(t, err)

	rotator := &fakeRotator{}
	require.NoError(t, h.RegisterTagFileRotation(rotator, 10*time.Millisecond))

	h.Start()
	defer h.Shutdown()

	require.Eventually(t, func() bool { return rotator.resets.Load() > 0 }, time.Second, time.Millisecond)
}

func TestRegisterTagFileRotationLogsResetError(t *testing.T) {
	h, err := New()
	require.NoError(t, err)

	rotator := &fakeRotator{err: errors.New("disk full")}
	require.NoError(t, h.RegisterTagFileRotation(rotator, 10*time.Millisecond))

	h.Start()
	defer h.Shutdown()

	require.Eventually(t, func() bool { return rotator.resets.Load() > 0 }, time.Second, time.Millisecond)
}

func TestRegisterStaleJobSweepOnlyObservesSnapshot(t *testing.T) {
	h, err := New()
	require.NoError(t, err)

	lister := &fakeJobLister{snapshot: []jobmanager.JobSummary{
		{ID: 1, Handle: "stale", Cycles: 1000},
		{ID: 2, Handle: "fresh", Cycles: 1},
	}}
	require.NoError(t, h.RegisterStaleJobSweep(lister, 10*time.Millisecond, 100))

	h.Start()
	defer h.Shutdown()

	time.Sleep(30 * time.Millisecond)
	// Purely observational: the snapshot the lister hands back is untouched.
	assert.Len(t, lister.snapshot, 2)
}

func TestRegisterFuncRunsRepeatedly(t *testing.T) {
	h, err := New()
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, h.RegisterFunc("test", func() { calls.Add(1) }, 10*time.Millisecond))

	h.Start()
	defer h.Shutdown()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestRegisterThroughputLogResetsCounterEachPeriod(t *testing.T) {
	h, err := New()
	require.NoError(t, err)

	counter := &Counter{}
	counter.Add(100)
	require.NoError(t, h.RegisterThroughputLog("frames", counter, 10*time.Millisecond))

	h.Start()
	defer h.Shutdown()

	require.Eventually(t, func() bool { return counter.Snapshot() == 0 }, time.Second, time.Millisecond)
}
