// Package jobmanager implements the batch counting job manager of spec
// §4.H: a single-goroutine event loop owning four job tables (waiting,
// ready, cancelled, claimed) plus a reverse pattern index, driven by tick,
// submit, query, get, and cancel events received over channels.
package jobmanager

import (
	"sync/atomic"

	"github.com/photontag/tagstreamd/internal/rpcapi"
	"github.com/photontag/tagstreamd/pkg/log"
)

// limitTicks is LIMIT_TICKS: 600,000 s (just under one week) expressed in
// 5ns device ticks.
const limitTicks = 600_000 * 200_000_000

// Status is an alias of rpcapi.JobStatus, the job status of the RPC wire
// schema.
type Status = rpcapi.JobStatus

const (
	Waiting   = rpcapi.JobWaiting
	Ready     = rpcapi.JobReady
	Cancelled = rpcapi.JobCancelled
	Claimed   = rpcapi.JobClaimed
	BadID     = rpcapi.JobBadID
)

// Job is one batch counting request's full state, a superset of the wire
// payload (adds scheduling-only fields cycles/started not exposed over
// RPC). Meta is set to "submission" when the job is created and is not
// changed afterwards, whichever of the four tables the job sits in.
type Job struct {
	ID         uint64
	Patterns   []uint16
	Events     []uint64
	Window     int64
	Duration   uint64 // actual accumulated duration, device ticks
	Cycles     uint64
	Started    bool
	Finished   bool
	StartTag   int64
	StopTag    int64
	Meta       string
	Resolution float64
	Handle     string
}

type submitRequest struct {
	patterns []uint16
	duration uint64
	handle   string
	reply    chan<- submitReply
}

type submitReply struct {
	id uint64
}

type queryRequest struct {
	id    uint64
	reply chan<- Status
}

type getRequest struct {
	id    uint64
	reply chan<- getReply
}

type getReply struct {
	job Job
	ok  bool
}

type cancelRequest struct {
	id    uint64
	reply chan<- Status
}

type patternsRequest struct {
	reply chan<- []uint16
}

type snapshotRequest struct {
	reply chan<- []JobSummary
}

// JobSummary is a read-only view of one waiting job, used by
// internal/housekeeping's periodic sweep for operator visibility — it
// never feeds a decision back into the job manager itself.
type JobSummary struct {
	ID     uint64
	Handle string
	Cycles uint64
}

type tickEvent struct {
	dur    uint64
	counts map[uint16]uint64
}

// EventSink receives a notification whenever a job crosses into a new
// status, for fan-out onto the telemetry bus (internal/telemetry)
// alongside the existing log lines.
type EventSink interface {
	ReportJobEvent(id uint64, status, handle string)
}

// Manager runs the job table event loop on its own goroutine, communicating
// only through typed channels (mirrors tagserver/src/controller.rs's
// single-threaded JobManager, adapted: it never touches the device itself —
// see DESIGN.md Open Question 5 — it only consumes per-tick pattern counts
// the acquisition controller already computed for it).
type Manager struct {
	tickPeriodTicks uint64
	resolution      float64
	nextID          atomic.Uint64
	events          EventSink // optional; nil when no telemetry bus is wired

	submit   chan submitRequest
	query    chan queryRequest
	get      chan getRequest
	cancel   chan cancelRequest
	patterns chan patternsRequest
	snapshot chan snapshotRequest
	tick     chan tickEvent
	done     <-chan struct{}
}

// New constructs a Manager and starts its event loop goroutine.
// tickPeriodTicks is the streaming pipeline's tick cadence expressed in
// device ticks, used to convert a job's requested duration into a cycle
// count; resolution is stamped onto every submitted job for the wire
// payload. events may be nil.
func New(tickPeriodTicks uint64, resolution float64, events EventSink, done <-chan struct{}) *Manager {
	m := &Manager{
		tickPeriodTicks: tickPeriodTicks,
		resolution:      resolution,
		events:          events,
		submit:          make(chan submitRequest),
		query:           make(chan queryRequest),
		get:             make(chan getRequest),
		cancel:          make(chan cancelRequest),
		patterns:        make(chan patternsRequest),
		snapshot:        make(chan snapshotRequest),
		tick:            make(chan tickEvent, 1),
		done:            done,
	}
	go m.run()
	return m
}

// ActivePatterns returns the reverse-index keys the acquisition controller
// should fold into its per-tick CalcCountPos calls (alongside the
// subscriber registry's own union patterns) before calling Tick.
func (m *Manager) ActivePatterns() []uint16 {
	reply := make(chan []uint16, 1)
	select {
	case m.patterns <- patternsRequest{reply: reply}:
	case <-m.done:
		return nil
	}
	return <-reply
}

// WaitingSnapshot returns a read-only view of every job currently waiting,
// for internal/housekeeping's periodic stale-job sweep.
func (m *Manager) WaitingSnapshot() []JobSummary {
	reply := make(chan []JobSummary, 1)
	select {
	case m.snapshot <- snapshotRequest{reply: reply}:
	case <-m.done:
		return nil
	}
	return <-reply
}

// Tick feeds one logic-mode tick's duration and per-pattern counts (for
// exactly the patterns the preceding ActivePatterns call returned) into the
// job manager.
func (m *Manager) Tick(dur uint64, counts map[uint16]uint64) {
	select {
	case m.tick <- tickEvent{dur: dur, counts: counts}:
	case <-m.done:
	}
}

// SubmitJob implements rpcapi.JobManager.
func (m *Manager) SubmitJob(patterns []uint16, durationTicks uint64, handle string) (uint64, bool) {
	reply := make(chan submitReply, 1)
	req := submitRequest{patterns: patterns, duration: durationTicks, handle: handle, reply: reply}
	select {
	case m.submit <- req:
	case <-m.done:
		return 0, true
	}
	r := <-reply
	return r.id, false
}

// QueryJobDone implements rpcapi.JobManager.
func (m *Manager) QueryJobDone(id uint64) Status {
	reply := make(chan Status, 1)
	select {
	case m.query <- queryRequest{id: id, reply: reply}:
	case <-m.done:
		return BadID
	}
	return <-reply
}

// GetResults implements rpcapi.JobManager.
func (m *Manager) GetResults(id uint64) (rpcapi.Job, Status, bool) {
	reply := make(chan getReply, 1)
	select {
	case m.get <- getRequest{id: id, reply: reply}:
	case <-m.done:
		return rpcapi.Job{}, BadID, false
	}
	r := <-reply
	if !r.ok {
		return rpcapi.Job{}, m.QueryJobDone(id), false
	}
	return wireJob(r.job), Claimed, true
}

// CancelJob implements rpcapi.JobManager: moves a waiting job to cancelled.
func (m *Manager) CancelJob(id uint64) Status {
	reply := make(chan Status, 1)
	select {
	case m.cancel <- cancelRequest{id: id, reply: reply}:
	case <-m.done:
		return BadID
	}
	return <-reply
}

func wireJob(j Job) rpcapi.Job {
	return rpcapi.Job{
		ID: j.ID, Patterns: j.Patterns, Events: j.Events, Window: j.Window,
		Duration: j.Duration, Finished: j.Finished, StartTag: j.StartTag,
		StopTag: j.StopTag, Meta: j.Meta, Resolution: j.Resolution, Handle: j.Handle,
	}
}

type jobTables struct {
	waiting   map[uint64]*Job
	ready     map[uint64]*Job
	cancelled map[uint64]struct{}
	claimed   map[uint64]struct{}
	curPats   map[uint16]map[uint64]struct{}
}

func statusOf(t jobTables, id uint64) Status {
	if _, ok := t.waiting[id]; ok {
		return Waiting
	}
	if _, ok := t.ready[id]; ok {
		return Ready
	}
	if _, ok := t.cancelled[id]; ok {
		return Cancelled
	}
	if _, ok := t.claimed[id]; ok {
		return Claimed
	}
	return BadID
}

func (m *Manager) run() {
	t := jobTables{
		waiting:   make(map[uint64]*Job),
		ready:     make(map[uint64]*Job),
		cancelled: make(map[uint64]struct{}),
		claimed:   make(map[uint64]struct{}),
		curPats:   make(map[uint16]map[uint64]struct{}),
	}

	for {
		select {
		case <-m.done:
			return

		case ev := <-m.tick:
			handleTick(&t, ev, m.events)

		case req := <-m.submit:
			handleSubmit(&t, m, req)

		case req := <-m.query:
			req.reply <- statusOf(t, req.id)

		case req := <-m.get:
			handleGet(&t, req, m.events)

		case req := <-m.cancel:
			req.reply <- handleCancel(&t, req.id, m.events)

		case req := <-m.patterns:
			req.reply <- activePatternKeys(t)

		case req := <-m.snapshot:
			req.reply <- waitingSnapshot(t)
		}
	}
}

func activePatternKeys(t jobTables) []uint16 {
	keys := make([]uint16, 0, len(t.curPats))
	for pat := range t.curPats {
		keys = append(keys, pat)
	}
	return keys
}

func waitingSnapshot(t jobTables) []JobSummary {
	summaries := make([]JobSummary, 0, len(t.waiting))
	for id, job := range t.waiting {
		summaries = append(summaries, JobSummary{ID: id, Handle: job.Handle, Cycles: job.Cycles})
	}
	return summaries
}

// handleTick applies one tick's pattern counts to every started waiting
// job subscribed to that pattern, then advances started/cycles bookkeeping:
// a job's first tick only flips started (counting begins on the next full
// tick, not the partial one it arrived mid-way through).
func handleTick(t *jobTables, ev tickEvent, events EventSink) {
	for pat, subs := range t.curPats {
		count, ok := ev.counts[pat]
		if !ok {
			continue
		}
		for id := range subs {
			job, ok := t.waiting[id]
			if !ok || !job.Started {
				continue
			}
			for i, p := range job.Patterns {
				if p == pat {
					job.Events[i] += count
				}
			}
		}
	}

	var readyIDs []uint64
	for id, job := range t.waiting {
		if !job.Started {
			job.Started = true
			continue
		}
		job.Duration += ev.dur
		if job.Cycles > 0 {
			job.Cycles--
		}
		if job.Cycles == 0 {
			job.Finished = true
			readyIDs = append(readyIDs, id)
		}
	}
	for _, id := range readyIDs {
		job := t.waiting[id]
		delete(t.waiting, id)
		t.ready[id] = job
		removeFromCurPats(t, job)
		if events != nil {
			events.ReportJobEvent(id, Ready.String(), job.Handle)
		}
	}
}

// removeFromCurPats prunes a job's reverse-index entries once it leaves the
// waiting table (to ready or cancelled), so ActivePatterns stops asking the
// controller to count patterns no waiting job needs any more.
func removeFromCurPats(t *jobTables, job *Job) {
	for _, pat := range job.Patterns {
		subs, ok := t.curPats[pat]
		if !ok {
			continue
		}
		delete(subs, job.ID)
		if len(subs) == 0 {
			delete(t.curPats, pat)
		}
	}
}

func handleSubmit(t *jobTables, m *Manager, req submitRequest) {
	id := m.nextID.Add(1)
	cycles := cyclesFor(req.duration, m.tickPeriodTicks)

	job := &Job{
		ID:         id,
		Patterns:   req.patterns,
		Events:     make([]uint64, len(req.patterns)),
		Window:     1,
		Cycles:     cycles,
		Meta:       "submission",
		Resolution: m.resolution,
		Handle:     req.handle,
	}
	t.waiting[id] = job
	for _, pat := range job.Patterns {
		subs, ok := t.curPats[pat]
		if !ok {
			subs = make(map[uint64]struct{})
			t.curPats[pat] = subs
		}
		subs[id] = struct{}{}
	}
	log.Infof("jobmanager: job %d submitted (%d patterns, %d cycles, handle=%q)", id, len(job.Patterns), cycles, job.Handle)
	if m.events != nil {
		m.events.ReportJobEvent(id, Waiting.String(), job.Handle)
	}
	req.reply <- submitReply{id: id}
}

// cyclesFor converts a requested duration (device ticks) into a cycle
// count, clamped to [1, LIMIT_TICKS/period] exactly as §4.H specifies.
func cyclesFor(durationTicks, periodTicks uint64) uint64 {
	if periodTicks == 0 {
		return 1
	}
	max := limitTicks / periodTicks
	cycles := durationTicks / periodTicks
	if cycles < 1 {
		return 1
	}
	if cycles > max {
		return max
	}
	return cycles
}

func handleGet(t *jobTables, req getRequest, events EventSink) {
	job, ok := t.ready[req.id]
	if !ok {
		req.reply <- getReply{ok: false}
		return
	}
	delete(t.ready, req.id)
	t.claimed[req.id] = struct{}{}
	if events != nil {
		events.ReportJobEvent(req.id, Claimed.String(), job.Handle)
	}
	req.reply <- getReply{job: *job, ok: true}
}

func handleCancel(t *jobTables, id uint64, events EventSink) Status {
	if job, ok := t.waiting[id]; ok {
		delete(t.waiting, id)
		t.cancelled[id] = struct{}{}
		removeFromCurPats(t, job)
		if events != nil {
			events.ReportJobEvent(id, Cancelled.String(), job.Handle)
		}
		return Cancelled
	}
	return statusOf(*t, id)
}
