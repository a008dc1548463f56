// Package device defines the instrument abstraction owned exclusively by
// the acquisition controller, plus an in-memory simulated implementation
// used in tests and in environments with no attached hardware. A real
// vendor driver binding is explicitly out of scope (spec's hardware driver
// is an opaque external collaborator); SimDevice stands in for it the way
// go-ublk's in-memory Backend stands in for a real block device.
package device

import "github.com/photontag/tagstreamd/pkg/tagio"

// NumChannels is the instrument's fixed channel count.
const NumChannels = 16

// ErrorFlag names one bit of the device error-flags word.
type ErrorFlag uint32

const (
	FlagDataOverflow ErrorFlag = 1 << iota
	FlagNegFifoOverflow
	FlagPosFifoOverflow
	FlagDoubleError
	FlagInputFifoOverflow
	Flag10MHzHardError
	Flag10MHzSoftError
	FlagOutFifoOverflow
	FlagOutDoublePulse
	FlagOutTooLate
)

// FlagOutOfSequence is bit 28, not contiguous with the bits above.
const FlagOutOfSequence ErrorFlag = 1 << 28

var flagNames = map[ErrorFlag]string{
	FlagDataOverflow:      "DataOverflow",
	FlagNegFifoOverflow:   "NegFifoOverflow",
	FlagPosFifoOverflow:   "PosFifoOverflow",
	FlagDoubleError:       "DoubleError",
	FlagInputFifoOverflow: "InputFifoOverflow",
	Flag10MHzHardError:    "10MHzHardError",
	Flag10MHzSoftError:    "10MHzSoftError",
	FlagOutFifoOverflow:   "OutFifoOverflow",
	FlagOutDoublePulse:    "OutDoublePulse",
	FlagOutTooLate:        "OutTooLate",
	FlagOutOfSequence:     "OutOfSequence",
}

// ErrorText decodes a raw error-flags word into the set of named conditions
// it carries; unrecognized bits are reported individually as "UnknownFlagN".
func ErrorText(flags uint32) []string {
	var names []string
	for bit := uint(0); bit < 32; bit++ {
		f := ErrorFlag(1) << bit
		if flags&uint32(f) == 0 {
			continue
		}
		if name, ok := flagNames[f]; ok {
			names = append(names, name)
		} else {
			names = append(names, unknownFlagName(bit))
		}
	}
	return names
}

func unknownFlagName(bit uint) string {
	const digits = "0123456789"
	if bit < 10 {
		return "UnknownFlag" + string(digits[bit])
	}
	return "UnknownFlag" + string(digits[bit/10]) + string(digits[bit%10])
}

// Device is the interface the acquisition controller drives. It is owned
// solely by the controller; no other component may call these methods
// directly (§5 shared-resource policy).
type Device interface {
	Open() error
	Close() error
	Calibrate()

	GetFPGAVersion() int32
	GetResolution() float64
	GetNumInputs() uint8

	SetInputThreshold(ch uint8, volts float64)
	SetInversionMask(mask uint16)
	SetDelay(ch uint8, ticks uint32)
	SetFunctionGenerator(period, high uint32)

	// Tag mode.
	StartTimetags()
	StopTimetags()
	FreezeSingleCounter() uint64
	ReadTags() []tagio.Tag
	ReadErrorFlags() uint32

	// Logic mode.
	SwitchLogicMode()
	ReadLogic() int64
	CalcCountPos(patmask uint16) uint32
	SetWindowWidth(ticks uint32)
	GetTimeCounter() uint64
}
