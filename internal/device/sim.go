package device

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/photontag/tagstreamd/pkg/bitmask"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// SimDevice is an in-memory fake of the instrument: it generates
// Poisson-like synthetic tag streams per channel and tracks the same
// input/logic state a real driver would expose, so the acquisition
// controller and its tests can run with no attached hardware.
type SimDevice struct {
	mu sync.Mutex

	rng *rand.Rand

	open   bool
	logic  bool
	tick   uint64
	window uint32

	invmask    uint16
	delays     [NumChannels]uint32
	thresholds [NumChannels]float64

	// rate is the mean tag count per tick for each channel (index 0 = ch 1).
	rate [NumChannels]float64

	resolution float64
	fpgaVer    int32
}

// NewSimDevice constructs a SimDevice seeded from seed, with the given
// per-channel mean tag rate per tick (all channels share the slice index
// convention of tagio.Tag.Channel - 1).
func NewSimDevice(seed int64, rate [NumChannels]float64) *SimDevice {
	return &SimDevice{
		rng:        rand.New(rand.NewSource(seed)),
		rate:       rate,
		resolution: 5e-9, // 5 ns per device tick
		fpgaVer:    42,
	}
}

func (d *SimDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	return nil
}

func (d *SimDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

func (d *SimDevice) Calibrate() {}

func (d *SimDevice) GetFPGAVersion() int32 { return d.fpgaVer }

func (d *SimDevice) GetResolution() float64 { return d.resolution }

func (d *SimDevice) GetNumInputs() uint8 { return NumChannels }

func (d *SimDevice) SetInputThreshold(ch uint8, volts float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if volts < -4.0 {
		volts = -4.0
	}
	if volts > 4.0 {
		volts = 4.0
	}
	d.thresholds[ch-1] = volts
}

func (d *SimDevice) SetInversionMask(mask uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invmask = mask
}

func (d *SimDevice) SetDelay(ch uint8, ticks uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[ch-1] = ticks
}

func (d *SimDevice) SetFunctionGenerator(period, high uint32) {}

func (d *SimDevice) StartTimetags() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logic = false
}

func (d *SimDevice) StopTimetags() {}

// FreezeSingleCounter advances the simulated tick clock by one period and
// returns the elapsed ticks since the previous freeze.
func (d *SimDevice) FreezeSingleCounter() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	const ticksPerPeriod = 2_000_000 // 10ms at 5ns/tick, default timer period
	d.tick += ticksPerPeriod
	return ticksPerPeriod
}

// ReadTags synthesizes a non-decreasing tag buffer for the most recent
// period, one burst per channel scaled by that channel's configured rate.
func (d *SimDevice) ReadTags() []tagio.Tag {
	d.mu.Lock()
	const ticksPerPeriod = 2_000_000
	base := int64(d.tick - ticksPerPeriod)
	rate := d.rate
	invmask := d.invmask
	d.mu.Unlock()

	var tags []tagio.Tag
	for i := 0; i < NumChannels; i++ {
		ch := uint8(i + 1)
		if bitmask.Check(invmask, uint(i)) {
			continue
		}
		n := d.poisson(rate[i])
		for j := 0; j < n; j++ {
			tags = append(tags, tagio.Tag{
				Time:    base + int64(d.rng.Int63n(int64(ticksPerPeriod)+1)),
				Channel: ch,
			})
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Time < tags[j].Time })
	return tags
}

// poisson draws from a Poisson(lambda) distribution via Knuth's algorithm;
// fine for the small lambda values a per-tick simulated tag count uses.
func (d *SimDevice) poisson(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		k++
		p *= d.rng.Float64()
		if p <= l {
			return k - 1
		}
	}
}

func (d *SimDevice) ReadErrorFlags() uint32 { return 0 }

func (d *SimDevice) SwitchLogicMode() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logic = true
}

func (d *SimDevice) ReadLogic() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	const ticksPerPeriod = 2_000_000
	d.tick += ticksPerPeriod
	return int64(d.tick)
}

func (d *SimDevice) CalcCountPos(patmask uint16) uint32 {
	d.mu.Lock()
	rate := d.rate
	d.mu.Unlock()

	switch popcount(patmask) {
	case 1:
		ch, _ := bitmask.MaskToSingle(patmask)
		return uint32(d.poisson(rate[ch-1]))
	case 2:
		a, b, _ := bitmask.MaskToPair(patmask)
		// simplistic independent-channel coincidence estimate
		return uint32(d.poisson(rate[a-1] * rate[b-1] / 1e6))
	default:
		return 0
	}
}

func popcount(m uint16) int {
	n := 0
	for m != 0 {
		n++
		m &= m - 1
	}
	return n
}

func (d *SimDevice) SetWindowWidth(ticks uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = ticks
}

func (d *SimDevice) GetTimeCounter() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

var _ Device = (*SimDevice)(nil)
