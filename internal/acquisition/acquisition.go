// Package acquisition owns the device handle and runs the per-tick
// read/apply-settings loop described in spec §4.C: on each timer tick it
// pulls a fresh tag buffer (or logic counts) plus duration and error flags
// from the device, and applies any queued input-setting changes from the
// RPC surface in between ticks.
package acquisition

import (
	"context"
	"fmt"

	"github.com/photontag/tagstreamd/internal/device"
	"github.com/photontag/tagstreamd/internal/registry"
	"github.com/photontag/tagstreamd/internal/rpcapi"
	"github.com/photontag/tagstreamd/pkg/log"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// Mode selects tag mode (raw time-tagging) or logic mode (on-device
// pattern counting). Chosen at startup; not switchable afterwards.
type Mode int

const (
	ModeTimetag Mode = iota
	ModeLogic
)

// PatternSource supplies the registry's current union pattern set and
// global window, read by the controller once per logic-mode tick.
type PatternSource interface {
	UnionPatterns() []tagio.PatternKey
	GetWindow() uint32
}

// JobTicker lets the batch job manager (internal/jobmanager) ride along on
// the controller's logic-mode tick without owning the device itself (spec
// §5: "device handle owned solely by C" — see DESIGN.md Open Question 5).
// ActivePatterns names the extra bare patmasks the controller should fold
// into this tick's CalcCountPos calls; Tick then delivers the tick's
// duration and those patterns' counts back to the job manager.
type JobTicker interface {
	ActivePatterns() []uint16
	Tick(dur uint64, counts map[uint16]uint64)
}

// ErrorSink receives the device's error-flag text whenever ReadErrorFlags
// reports a nonzero value, for fan-out onto the telemetry bus
// (internal/telemetry) alongside the existing warning log line.
type ErrorSink interface {
	ReportError(tick int64, flags uint32, text string)
}

// Config configures a Controller.
type Config struct {
	Mode           Mode
	Calibrate      bool
	DefaultVolts   float64
	FGPeriod       uint32
	FGHigh         uint32
	PinnedWindow   uint32 // nonzero: CLI pinned the global window at startup
	TagChanCap     int    // capacity of the controller->processor channel (spec: 5)
}

// Controller drives dev through its open/configure/acquire lifecycle and
// emits one RawFrame per tick onto Out. No other component may call dev's
// methods directly.
type Controller struct {
	cfg      Config
	dev      device.Device
	patterns PatternSource
	jobs     JobTicker  // optional; nil when no batch job manager is wired
	errs     ErrorSink  // optional; nil when no telemetry bus is wired
	out      chan<- *tagio.RawFrame

	// Timer ticks arrive on a bounded capacity-1 channel (latest-tick-wins);
	// setting events arrive on the channel the registry sends on, which
	// cmd/tagstreamd creates unbuffered, so each registry send waits until
	// this loop receives it.
	ticks    <-chan struct{}
	settings <-chan registry.SettingEvent

	shutdown chan<- struct{}
}

// New constructs a Controller. out must have capacity 5 per spec §5; ticks
// must have capacity 1. jobs and errs may both be nil.
func New(cfg Config, dev device.Device, patterns PatternSource, jobs JobTicker, errs ErrorSink, ticks <-chan struct{}, settings <-chan registry.SettingEvent, out chan<- *tagio.RawFrame, shutdown chan<- struct{}) *Controller {
	return &Controller{cfg: cfg, dev: dev, patterns: patterns, jobs: jobs, errs: errs, ticks: ticks, settings: settings, out: out, shutdown: shutdown}
}

// Run opens the device, configures it, and runs the main select loop until
// ctx is cancelled, the event channels close, or a downstream send fails.
// A failed device open or a failed downstream send emits a shutdown signal
// (non-blocking send) before returning; cancellation and closed channels
// return nil without one.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.dev.Open(); err != nil {
		log.Errorf("acquisition: device open failed: %v", err)
		c.signalShutdown()
		return fmt.Errorf("acquisition: open device: %w", err)
	}
	defer c.dev.Close()

	if c.cfg.Calibrate {
		c.dev.Calibrate()
		log.Info("acquisition: calibration complete")
	}

	log.Infof("acquisition: FPGA gateware version %d", c.dev.GetFPGAVersion())
	log.Infof("acquisition: timing resolution %g sec", c.dev.GetResolution())

	volts := c.cfg.DefaultVolts
	if volts == 0 {
		volts = 2.0
	}
	for ch := uint8(1); ch <= device.NumChannels; ch++ {
		c.dev.SetInputThreshold(ch, volts)
	}

	if c.cfg.FGPeriod != 0 && c.cfg.FGHigh != 0 {
		c.dev.SetFunctionGenerator(c.cfg.FGPeriod, c.cfg.FGHigh)
		log.Infof("acquisition: function generator enabled (period=%d, high=%d ticks)", c.cfg.FGPeriod, c.cfg.FGHigh)
	}

	if c.cfg.Mode == ModeLogic {
		return c.runLogic(ctx)
	}
	return c.runTimetag(ctx)
}

func (c *Controller) runTimetag(ctx context.Context) error {
	log.Info("acquisition: timetag mode")
	c.dev.StartTimetags()
	defer c.dev.StopTimetags()
	c.dev.FreezeSingleCounter()

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-c.ticks:
			if !ok {
				return nil
			}
			dur := c.dev.FreezeSingleCounter()
			tags := c.dev.ReadTags()
			flags := c.dev.ReadErrorFlags()
			if flags != 0 {
				firstTime := int64(0)
				if len(tags) > 0 {
					firstTime = tags[0].Time
				}
				log.Warnf("acquisition: tag %d: %v", firstTime, device.ErrorText(flags))
				if c.errs != nil {
					c.errs.ReportError(firstTime, flags, device.ErrorText(flags))
				}
			}

			frame := &tagio.RawFrame{Dur: dur, Tags: tagio.NewTagBuffer(tags)}
			select {
			case c.out <- frame:
			default:
				log.Error("acquisition: processor channel saturated, terminating pipeline")
				c.signalShutdown()
				return fmt.Errorf("acquisition: downstream send would block")
			}

		case s, ok := <-c.settings:
			if !ok {
				return nil
			}
			c.applySetting(s, false)
		}
	}
}

func (c *Controller) runLogic(ctx context.Context) error {
	log.Info("acquisition: logic mode")
	c.dev.SwitchLogicMode()
	c.dev.ReadLogic()

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-c.ticks:
			if !ok {
				return nil
			}
			c.dev.ReadLogic()
			dur := c.dev.GetTimeCounter()
			flags := c.dev.ReadErrorFlags()
			if flags != 0 {
				log.Warnf("acquisition: %v", device.ErrorText(flags))
				if c.errs != nil {
					c.errs.ReportError(int64(dur), flags, device.ErrorText(flags))
				}
			}

			counts := make(map[tagio.PatternKey]uint64)
			window := c.patterns.GetWindow()
			for _, p := range c.patterns.UnionPatterns() {
				w := p.Window
				if w == 0 {
					w = window
				}
				if w == 0 {
					continue
				}
				c.dev.SetWindowWidth(w)
				counts[tagio.PatternKey{Patmask: p.Patmask, Window: w}] = uint64(c.dev.CalcCountPos(p.Patmask))
			}

			if c.jobs != nil {
				jobCounts := make(map[uint16]uint64)
				for _, pat := range c.jobs.ActivePatterns() {
					if window != 0 {
						c.dev.SetWindowWidth(window)
					}
					jobCounts[pat] = uint64(c.dev.CalcCountPos(pat))
				}
				c.jobs.Tick(dur, jobCounts)
			}

			frame := &tagio.RawFrame{Dur: dur, Logic: true, Counts: counts}
			select {
			case c.out <- frame:
			default:
				log.Error("acquisition: processor channel saturated, terminating pipeline")
				c.signalShutdown()
				return fmt.Errorf("acquisition: downstream send would block")
			}

		case s, ok := <-c.settings:
			if !ok {
				return nil
			}
			c.applySetting(s, true)
		}
	}
}

func (c *Controller) applySetting(s registry.SettingEvent, logic bool) {
	switch s.Kind {
	case registry.SettingInversion:
		c.dev.SetInversionMask(s.Mask)
	case registry.SettingDelay:
		c.dev.SetDelay(s.Channel, s.DelayTick)
	case registry.SettingThreshold:
		c.dev.SetInputThreshold(s.Channel, s.Volts)
	case registry.SettingWindow:
		if !logic {
			// Tag mode ignores window settings entirely (spec §4.C).
			return
		}
		c.dev.SetWindowWidth(s.Window)
	}
}

func (c *Controller) signalShutdown() {
	select {
	case c.shutdown <- struct{}{}:
	default:
	}
}

// Mode reports the acquisition mode the controller was started in, for
// internal/rpcapi.ModeQuerier.
func (c *Controller) Mode() rpcapi.Mode {
	if c.cfg.Mode == ModeLogic {
		return rpcapi.ModeLogic
	}
	return rpcapi.ModeTimetag
}
