// Package housekeeping registers the periodic maintenance jobs a long-running
// tagstreamd process needs beyond its streaming hot path: tag file rotation,
// stale waiting-job visibility, and throughput logging. It wraps
// go-co-op/gocron/v2 the way internal/taskManager/taskManager.go wraps it for
// cc-backend's own background services, trimmed to one Scheduler value
// instead of package-level globals so a test (or a second process) can run
// more than one.
package housekeeping

import (
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/photontag/tagstreamd/internal/jobmanager"
	"github.com/photontag/tagstreamd/pkg/log"
)

// TagFileRotator is the subset of *tagfile.Writer a rotation job needs.
type TagFileRotator interface {
	Reset() error
}

// JobLister is the subset of *jobmanager.Manager a stale-job sweep needs.
type JobLister interface {
	WaitingSnapshot() []jobmanager.JobSummary
}

// Scheduler owns a gocron scheduler and the jobs registered on it.
type Scheduler struct {
	s gocron.Scheduler
}

// New creates a Scheduler. Call Start to begin running registered jobs.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{s: s}, nil
}

// Start begins running every job registered so far.
func (h *Scheduler) Start() {
	h.s.Start()
}

// Shutdown stops the scheduler and waits for any in-flight job to finish.
func (h *Scheduler) Shutdown() error {
	return h.s.Shutdown()
}

// RegisterTagFileRotation closes the current recording (if any) and opens a
// fresh one every period, so a single recording file never grows unbounded
// across a multi-day acquisition run.
func (h *Scheduler) RegisterTagFileRotation(writer TagFileRotator, period time.Duration) error {
	log.Infof("housekeeping: register tag file rotation every %s", period)
	_, err := h.s.NewJob(gocron.DurationJob(period),
		gocron.NewTask(func() {
			if err := writer.Reset(); err != nil {
				log.Warnf("housekeeping: tag file rotation: %v", err)
			} else {
				log.Info("housekeeping: tag file rotated")
			}
		}))
	return err
}

// RegisterStaleJobSweep logs every waiting job whose remaining cycle count
// exceeds maxAge, for operator visibility into unusually long jobs. It is
// purely observational: nothing it finds is fed back into the job manager.
func (h *Scheduler) RegisterStaleJobSweep(jobs JobLister, period time.Duration, maxAge uint64) error {
	log.Infof("housekeeping: register stale job sweep every %s", period)
	_, err := h.s.NewJob(gocron.DurationJob(period),
		gocron.NewTask(func() {
			for _, j := range jobs.WaitingSnapshot() {
				if j.Cycles > maxAge {
					log.Warnf("housekeeping: job %d (%q) still waiting with %d cycles remaining", j.ID, j.Handle, j.Cycles)
				}
			}
		}))
	return err
}

// RegisterFunc runs fn every period. It is the general-purpose escape hatch
// for periodic bookkeeping that doesn't warrant its own Register* method —
// currently used by cmd/tagstreamd to keep internal/metrics' JobsWaiting
// and SubscriberCount gauges in sync with the job manager and registry.
func (h *Scheduler) RegisterFunc(name string, fn func(), period time.Duration) error {
	log.Infof("housekeeping: register %s every %s", name, period)
	_, err := h.s.NewJob(gocron.DurationJob(period), gocron.NewTask(fn))
	return err
}

// Counter is an event count safe for concurrent use by a hot-path producer
// and a periodic log consumer; RegisterThroughputLog resets it to zero each
// period.
type Counter struct {
	n atomic.Uint64
}

// Add increments the counter by delta.
func (c *Counter) Add(delta uint64) {
	c.n.Add(delta)
}

// Snapshot returns the count accumulated since the last reset.
func (c *Counter) Snapshot() uint64 {
	return c.n.Load()
}

// RegisterThroughputLog logs counter's rate once per period, then resets it
// so the next log line reports only that period's events.
func (h *Scheduler) RegisterThroughputLog(name string, counter *Counter, period time.Duration) error {
	log.Infof("housekeeping: register %s throughput log every %s", name, period)
	_, err := h.s.NewJob(gocron.DurationJob(period),
		gocron.NewTask(func() {
			total := counter.n.Swap(0)
			rate := float64(total) / period.Seconds()
			log.Infof("housekeeping: %s rate %.1f/s (%d over %s)", name, rate, total, period)
		}))
	return err
}
