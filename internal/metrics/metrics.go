// Package metrics centralizes the Prometheus collectors tagstreamd exposes.
// No single package in the production stack this one is grounded on owns
// instrumentation end to end; the counter/gauge wiring style (a small
// struct of prometheus.Counter/Gauge fields, each Add/Inc'd from the
// component that produces the event) follows
// other_examples/7b7dfd8c_etalazz-vsa__cmd-tfd-sim-main.go.go's metricVSA/
// metricSink wrappers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds every collector tagstreamd registers. It implements the
// narrow Metrics interfaces internal/registry and internal/publisher define
// and internal/acquisition's ErrorSink, so those packages never import this
// one.
type Collectors struct {
	FramesPublished        prometheus.Counter
	SubscriberPushes       prometheus.Counter
	SubscriberPushFailures prometheus.Counter
	SubscriberCount        prometheus.Gauge
	JobsWaiting            prometheus.Gauge
	DeviceErrors           prometheus.Counter
}

// New registers every collector against reg and returns the handle used to
// update them. Pass prometheus.NewRegistry() for an isolated registry (as
// tests do) or prometheus.DefaultRegisterer for a process-wide one.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		FramesPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "tagstreamd_frames_published_total",
			Help: "Total PubFrames handed to the subscriber registry for push.",
		}),
		SubscriberPushes: f.NewCounter(prometheus.CounterOpts{
			Name: "tagstreamd_subscriber_pushes_total",
			Help: "Total per-subscriber pushes dispatched.",
		}),
		SubscriberPushFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tagstreamd_subscriber_push_failures_total",
			Help: "Total per-subscriber pushes that errored and removed the subscriber.",
		}),
		SubscriberCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "tagstreamd_subscriber_count",
			Help: "Current number of live subscribers.",
		}),
		JobsWaiting: f.NewGauge(prometheus.GaugeOpts{
			Name: "tagstreamd_jobs_waiting",
			Help: "Current number of batch jobs waiting to complete their duration.",
		}),
		DeviceErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "tagstreamd_device_errors_total",
			Help: "Total nonzero device error-flag reports.",
		}),
	}
}

// FramePushed implements internal/publisher.Metrics.
func (c *Collectors) FramePushed() {
	c.FramesPublished.Inc()
}

// ObservePush implements internal/registry.Metrics.
func (c *Collectors) ObservePush(pushed, failed int) {
	c.SubscriberPushes.Add(float64(pushed))
	c.SubscriberPushFailures.Add(float64(failed))
}

// ReportError implements internal/acquisition.ErrorSink, counting every
// nonzero device error-flag report; it never logs, that's the acquisition
// controller's job already.
func (c *Collectors) ReportError(_ int64, _ uint32, _ string) {
	c.DeviceErrors.Inc()
}

// SetSubscriberCount updates the subscriber gauge from a periodic poll
// (internal/housekeeping or cmd/tagstreamd's own ticker).
func (c *Collectors) SetSubscriberCount(n int) {
	c.SubscriberCount.Set(float64(n))
}

// SetJobsWaiting updates the waiting-jobs gauge from a periodic poll of
// internal/jobmanager.Manager.WaitingSnapshot.
func (c *Collectors) SetJobsWaiting(n int) {
	c.JobsWaiting.Set(float64(n))
}
