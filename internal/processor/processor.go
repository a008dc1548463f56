// Package processor consumes RawFrames from the acquisition controller and
// produces PubFrames for the publisher: in tag mode it runs the parallel
// pattern-count kernels over the union pattern set, in logic mode it
// forwards the controller's on-device counts unchanged.
package processor

import (
	"context"

	"github.com/photontag/tagstreamd/pkg/log"
	"github.com/photontag/tagstreamd/pkg/pattern"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// PatternSource supplies the registry's current union pattern set, read
// once per frame so counts are computed against a consistent snapshot.
type PatternSource interface {
	UnionPatterns() []tagio.PatternKey
}

// Processor runs off the acquisition hot loop on its own goroutine.
type Processor struct {
	patterns      PatternSource
	defaultWindow uint32
	in            <-chan *tagio.RawFrame
	out           chan<- *tagio.PubFrame
}

// New constructs a Processor. defaultWindow is used for tag-mode pattern
// keys that specify no window of their own.
func New(patterns PatternSource, defaultWindow uint32, in <-chan *tagio.RawFrame, out chan<- *tagio.PubFrame) *Processor {
	return &Processor{patterns: patterns, defaultWindow: defaultWindow, in: in, out: out}
}

// Run consumes raw frames until in is closed or ctx is cancelled. The
// processor never drops frames on its own; it inherits the controller's
// bounded-channel backpressure via its blocking send on out.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-p.in:
			if !ok {
				return
			}
			pub := p.process(frame)
			select {
			case p.out <- pub:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Processor) process(frame *tagio.RawFrame) *tagio.PubFrame {
	if frame.Logic {
		return &tagio.PubFrame{Dur: frame.Dur, Logic: true, Counts: frame.Counts}
	}

	keys := p.patterns.UnionPatterns()
	tags := frame.Tags.Tags()
	counts := make(map[tagio.PatternKey]uint64, len(keys))
	for key, count := range pattern.CountPatterns(tags, keys, p.defaultWindow) {
		counts[key] = count
	}
	log.Debugf("processor: computed %d pattern counts over %d tags", len(counts), len(tags))

	return &tagio.PubFrame{Dur: frame.Dur, Tags: frame.Tags, Counts: counts}
}
