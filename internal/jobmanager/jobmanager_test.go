package jobmanager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, tickPeriod uint64) (*Manager, chan struct{}) {
	done := make(chan struct{})
	m := New(tickPeriod, 5e-12, nil, done)
	t.Cleanup(func() { close(done) })
	return m, done
}

type recordingEventSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEventSink) ReportJobEvent(id uint64, status, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, status)
}

func TestEventSinkReceivesLifecycleTransitions(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	events := &recordingEventSink{}
	m := New(100, 5e-12, events, done)

	id, _ := m.SubmitJob([]uint16{0b1}, 100, "x")
	m.Tick(100, map[uint16]uint64{0b1: 1})
	m.Tick(100, map[uint16]uint64{0b1: 1})
	require.Eventually(t, func() bool { return m.QueryJobDone(id) == Ready }, time.Second, time.Millisecond)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{"waiting", "ready"}, events.events)
}

func TestSubmitJobAssignsIncreasingIDs(t *testing.T) {
	m, _ := newManager(t, 1000)
	id1, refused1 := m.SubmitJob([]uint16{0b1}, 5000, "a")
	id2, refused2 := m.SubmitJob([]uint16{0b10}, 5000, "b")
	require.False(t, refused1)
	require.False(t, refused2)
	assert.Less(t, id1, id2)
}

func TestQueryJobDoneReportsWaitingThenUnknown(t *testing.T) {
	m, _ := newManager(t, 1000)
	id, _ := m.SubmitJob([]uint16{0b1}, 5000, "a")
	assert.Equal(t, Waiting, m.QueryJobDone(id))
	assert.Equal(t, BadID, m.QueryJobDone(id+1000))
}

func TestCyclesForClampsToOneAndToWeeklyLimit(t *testing.T) {
	assert.Equal(t, uint64(1), cyclesFor(0, 1000))
	assert.Equal(t, uint64(1), cyclesFor(500, 1000))
	assert.Equal(t, uint64(5), cyclesFor(5000, 1000))
	assert.Equal(t, limitTicks/1000, cyclesFor(limitTicks*2, 1000))
}

func TestTickAdvancesStartedThenAccumulatesAndReaps(t *testing.T) {
	// period 100 ticks; duration 100 ticks => exactly 1 cycle.
	m, _ := newManager(t, 100)
	id, _ := m.SubmitJob([]uint16{0b1}, 100, "solo")
	require.Equal(t, Waiting, m.QueryJobDone(id))

	// First tick only flips "started"; job should still be waiting.
	active := m.ActivePatterns()
	require.Contains(t, active, uint16(0b1))
	m.Tick(100, map[uint16]uint64{0b1: 7})
	require.Eventually(t, func() bool { return m.QueryJobDone(id) == Waiting }, time.Second, time.Millisecond)

	// Second tick consumes the one cycle and reaps the job to ready.
	m.Tick(100, map[uint16]uint64{0b1: 9})
	require.Eventually(t, func() bool { return m.QueryJobDone(id) == Ready }, time.Second, time.Millisecond)

	job, status, ok := m.GetResults(id)
	require.True(t, ok)
	assert.Equal(t, Claimed, status)
	assert.Equal(t, []uint64{9}, job.Events)
	assert.Equal(t, uint64(100), job.Duration)

	assert.Equal(t, Claimed, m.QueryJobDone(id))
}

func TestGetResultsBadQueryWhenNotReady(t *testing.T) {
	m, _ := newManager(t, 1000)
	id, _ := m.SubmitJob([]uint16{0b1}, 100000, "slow")
	_, status, ok := m.GetResults(id)
	assert.False(t, ok)
	assert.Equal(t, Waiting, status)
}

func TestCancelJobMovesWaitingToCancelled(t *testing.T) {
	m, _ := newManager(t, 1000)
	id, _ := m.SubmitJob([]uint16{0b1}, 100000, "x")
	status := m.CancelJob(id)
	assert.Equal(t, Cancelled, status)
	assert.Equal(t, Cancelled, m.QueryJobDone(id))

	// Cancelling again finds nothing in waiting and reports the current status.
	assert.Equal(t, Cancelled, m.CancelJob(id))
}

func TestWaitingSnapshotReflectsWaitingJobs(t *testing.T) {
	m, _ := newManager(t, 1000)
	idA, _ := m.SubmitJob([]uint16{0b1}, 100000, "a")
	idB, _ := m.SubmitJob([]uint16{0b10}, 100000, "b")

	snap := m.WaitingSnapshot()
	require.Len(t, snap, 2)

	byID := make(map[uint64]JobSummary, len(snap))
	for _, s := range snap {
		byID[s.ID] = s
	}
	require.Contains(t, byID, idA)
	require.Contains(t, byID, idB)
	assert.Equal(t, "a", byID[idA].Handle)
	assert.Equal(t, "b", byID[idB].Handle)

	m.CancelJob(idA)
	snap = m.WaitingSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, idB, snap[0].ID)
}

func TestActivePatternsReflectsAllWaitingJobsPatterns(t *testing.T) {
	m, _ := newManager(t, 1000)
	m.SubmitJob([]uint16{0b1, 0b10}, 100000, "a")
	m.SubmitJob([]uint16{0b100}, 100000, "b")

	active := m.ActivePatterns()
	assert.ElementsMatch(t, []uint16{0b1, 0b10, 0b100}, active)
}

func TestActivePatternsDropsCancelledJobsPatterns(t *testing.T) {
	m, _ := newManager(t, 1000)
	id, _ := m.SubmitJob([]uint16{0b1}, 100000, "a")
	m.SubmitJob([]uint16{0b100}, 100000, "b")

	m.CancelJob(id)
	// A cancelled job's unique pattern must not keep asking the controller
	// for counts no waiting job needs any more.
	active := m.ActivePatterns()
	assert.ElementsMatch(t, []uint16{0b100}, active)
}

func TestActivePatternsDropsReapedJobsPatterns(t *testing.T) {
	m, _ := newManager(t, 100)
	id, _ := m.SubmitJob([]uint16{0b1}, 100, "solo")
	m.SubmitJob([]uint16{0b100}, 100000, "other")

	m.Tick(100, map[uint16]uint64{0b1: 1}) // starts the job
	m.Tick(100, map[uint16]uint64{0b1: 1}) // consumes its one cycle, reaps to ready
	require.Eventually(t, func() bool { return m.QueryJobDone(id) == Ready }, time.Second, time.Millisecond)

	active := m.ActivePatterns()
	assert.ElementsMatch(t, []uint16{0b100}, active)
}
