package acquisition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photontag/tagstreamd/internal/registry"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

type fakeDevice struct {
	mu sync.Mutex

	openErr     error
	tags        []tagio.Tag
	errorFlags  uint32
	dur         uint64
	timeCounter uint64
	countPos    uint32

	invmask   uint16
	delays    map[uint8]uint32
	volts     map[uint8]float64
	windows   []uint32
	calibrate bool
	fgArmed   bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{delays: make(map[uint8]uint32), volts: make(map[uint8]float64)}
}

func (d *fakeDevice) Open() error  { return d.openErr }
func (d *fakeDevice) Close() error { return nil }
func (d *fakeDevice) Calibrate()   { d.calibrate = true }

func (d *fakeDevice) GetFPGAVersion() int32 { return 1 }
func (d *fakeDevice) GetResolution() float64 { return 5e-12 }
func (d *fakeDevice) GetNumInputs() uint8   { return 16 }

func (d *fakeDevice) SetInputThreshold(ch uint8, volts float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volts[ch] = volts
}
func (d *fakeDevice) SetInversionMask(mask uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invmask = mask
}
func (d *fakeDevice) SetDelay(ch uint8, ticks uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[ch] = ticks
}
func (d *fakeDevice) SetFunctionGenerator(period, high uint32) { d.fgArmed = true }

func (d *fakeDevice) StartTimetags() {}
func (d *fakeDevice) StopTimetags()  {}
func (d *fakeDevice) FreezeSingleCounter() uint64 { return d.dur }
func (d *fakeDevice) ReadTags() []tagio.Tag { return d.tags }
func (d *fakeDevice) ReadErrorFlags() uint32 { return d.errorFlags }

func (d *fakeDevice) SwitchLogicMode() {}
func (d *fakeDevice) ReadLogic() int64 { return 0 }
func (d *fakeDevice) CalcCountPos(patmask uint16) uint32 { return d.countPos }
func (d *fakeDevice) SetWindowWidth(ticks uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = append(d.windows, ticks)
}
func (d *fakeDevice) GetTimeCounter() uint64 { return d.timeCounter }

type fakePatternSource struct {
	patterns []tagio.PatternKey
	window   uint32
}

func (f *fakePatternSource) UnionPatterns() []tagio.PatternKey { return f.patterns }
func (f *fakePatternSource) GetWindow() uint32                 { return f.window }

func TestControllerOpenFailureSignalsShutdown(t *testing.T) {
	dev := newFakeDevice()
	dev.openErr = errors.New("no such device")

	ticks := make(chan struct{}, 1)
	settings := make(chan registry.SettingEvent, 1)
	out := make(chan *tagio.RawFrame, 5)
	shutdown := make(chan struct{}, 1)

	c := New(Config{Mode: ModeTimetag, TagChanCap: 5}, dev, &fakePatternSource{}, nil, nil, ticks, settings, out, shutdown)
	err := c.Run(context.Background())
	require.Error(t, err)

	select {
	case <-shutdown:
	default:
		t.Fatal("expected a shutdown signal on device open failure")
	}
}

func TestControllerTimetagEmitsFrameOnTick(t *testing.T) {
	dev := newFakeDevice()
	dev.dur = 42
	dev.tags = []tagio.Tag{{Time: 1, Channel: 1}}

	ticks := make(chan struct{}, 1)
	settings := make(chan registry.SettingEvent, 1)
	out := make(chan *tagio.RawFrame, 5)
	shutdown := make(chan struct{}, 1)

	c := New(Config{Mode: ModeTimetag, TagChanCap: 5}, dev, &fakePatternSource{}, nil, nil, ticks, settings, out, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	ticks <- struct{}{}

	select {
	case frame := <-out:
		assert.Equal(t, uint64(42), frame.Dur)
		require.Len(t, frame.Tags.Tags(), 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted frame")
	}

	cancel()
	<-done
}

func TestControllerBackpressureTerminatesPipeline(t *testing.T) {
	dev := newFakeDevice()
	ticks := make(chan struct{}, 1)
	settings := make(chan registry.SettingEvent, 1)
	out := make(chan *tagio.RawFrame) // unbuffered: first send always blocks
	shutdown := make(chan struct{}, 1)

	c := New(Config{Mode: ModeTimetag, TagChanCap: 0}, dev, &fakePatternSource{}, nil, nil, ticks, settings, out, shutdown)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	ticks <- struct{}{}

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected the controller to terminate on backpressure")
	}

	select {
	case <-shutdown:
	default:
		t.Fatal("expected a shutdown signal on backpressure")
	}
}

func TestControllerAppliesSettingsBetweenTicks(t *testing.T) {
	dev := newFakeDevice()
	ticks := make(chan struct{}, 1)
	settings := make(chan registry.SettingEvent, 1)
	out := make(chan *tagio.RawFrame, 5)
	shutdown := make(chan struct{}, 1)

	c := New(Config{Mode: ModeTimetag, TagChanCap: 5}, dev, &fakePatternSource{}, nil, nil, ticks, settings, out, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	settings <- registry.SettingEvent{Kind: registry.SettingThreshold, Channel: 3, Volts: 1.5}

	require.Eventually(t, func() bool {
		dev.mu.Lock()
		defer dev.mu.Unlock()
		return dev.volts[3] == 1.5
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestControllerTimetagModeIgnoresWindowSetting(t *testing.T) {
	dev := newFakeDevice()
	ticks := make(chan struct{}, 1)
	settings := make(chan registry.SettingEvent, 1)
	out := make(chan *tagio.RawFrame, 5)
	shutdown := make(chan struct{}, 1)

	c := New(Config{Mode: ModeTimetag, TagChanCap: 5}, dev, &fakePatternSource{}, nil, nil, ticks, settings, out, shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	settings <- registry.SettingEvent{Kind: registry.SettingWindow, Window: 99}
	time.Sleep(20 * time.Millisecond)

	dev.mu.Lock()
	assert.Empty(t, dev.windows)
	dev.mu.Unlock()

	cancel()
	<-done
}

type fakeJobTicker struct {
	mu     sync.Mutex
	active []uint16
	ticks  []map[uint16]uint64
}

func (f *fakeJobTicker) ActivePatterns() []uint16 { return f.active }
func (f *fakeJobTicker) Tick(dur uint64, counts map[uint16]uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, counts)
}

func TestControllerLogicModeFeedsJobTicker(t *testing.T) {
	dev := newFakeDevice()
	dev.countPos = 3
	ticks := make(chan struct{}, 1)
	settings := make(chan registry.SettingEvent, 1)
	out := make(chan *tagio.RawFrame, 5)
	shutdown := make(chan struct{}, 1)
	jobs := &fakeJobTicker{active: []uint16{0b1}}

	c := New(Config{Mode: ModeLogic, TagChanCap: 5}, dev, &fakePatternSource{}, jobs, nil, ticks, settings, out, shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	ticks <- struct{}{}

	require.Eventually(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.ticks) == 1
	}, time.Second, 5*time.Millisecond)

	jobs.mu.Lock()
	assert.Equal(t, uint64(3), jobs.ticks[0][0b1])
	jobs.mu.Unlock()

	cancel()
	<-done
}

type fakeErrorSink struct {
	mu     sync.Mutex
	errors []string
}

func (f *fakeErrorSink) ReportError(tick int64, flags uint32, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, text)
}

func TestControllerReportsErrorFlagsToSink(t *testing.T) {
	dev := newFakeDevice()
	dev.errorFlags = 1
	ticks := make(chan struct{}, 1)
	settings := make(chan registry.SettingEvent, 1)
	out := make(chan *tagio.RawFrame, 5)
	shutdown := make(chan struct{}, 1)
	errs := &fakeErrorSink{}

	c := New(Config{Mode: ModeTimetag, TagChanCap: 5}, dev, &fakePatternSource{}, nil, errs, ticks, settings, out, shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	ticks <- struct{}{}

	require.Eventually(t, func() bool {
		errs.mu.Lock()
		defer errs.mu.Unlock()
		return len(errs.errors) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
