// Package publisher turns each PubFrame from the processor into one wire
// message per non-saturated subscriber and pushes it through the
// subscriber registry's flow-control policy (spec §4.F).
package publisher

import (
	"context"

	"github.com/photontag/tagstreamd/internal/registry"
	"github.com/photontag/tagstreamd/pkg/log"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// MaxTagsPerList is the largest chunk of tags the underlying RPC framing
// can carry in one list; larger tag buffers are sent as a list-of-lists,
// each no larger than this (spec §6 framing note).
const MaxTagsPerList = 1 << 28

// Message is the per-subscriber payload pushed by one tick. TagChunks is
// nil for logic-mode frames.
type Message struct {
	Duration  uint64
	Tagmask   uint16
	TagChunks [][]tagio.Tag
	Patterns  []tagio.PatternCount
}

// Registry is the subset of *registry.Registry the publisher depends on.
type Registry interface {
	PushUpdate(build func(inputs registry.Inputs, tagmask uint16, patterns []tagio.PatternKey) any) []uint64
}

// Metrics receives a count for every frame handed to PushUpdate, regardless
// of how many subscribers it reached. Optional (nil-safe), same as
// registry.Metrics.
type Metrics interface {
	FramePushed()
}

// Publisher consumes PubFrames from the processor and issues one push per
// non-saturated subscriber per frame.
type Publisher struct {
	reg     Registry
	in      <-chan *tagio.PubFrame
	metrics Metrics // optional; nil when no metrics registry is wired
}

// New constructs a Publisher.
func New(reg Registry, in <-chan *tagio.PubFrame) *Publisher {
	return &Publisher{reg: reg, in: in}
}

// SetMetrics wires an optional Metrics sink.
func (p *Publisher) SetMetrics(m Metrics) {
	p.metrics = m
}

// Run consumes frames until in closes or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-p.in:
			if !ok {
				return
			}
			p.publish(frame)
		}
	}
}

func (p *Publisher) publish(frame *tagio.PubFrame) {
	pushed := p.reg.PushUpdate(func(_ registry.Inputs, tagmask uint16, patterns []tagio.PatternKey) any {
		msg := &Message{Duration: frame.Dur, Tagmask: tagmask}
		if !frame.Logic {
			msg.TagChunks = chunkTags(frame.Tags.Tags())
		}
		for _, key := range patterns {
			count, ok := frame.Counts[key]
			if !ok {
				continue
			}
			msg.Patterns = append(msg.Patterns, tagio.PatternCount{
				Patmask: key.Patmask, Window: key.Window, Duration: frame.Dur, Count: count,
			})
		}
		return msg
	})
	log.Debugf("publisher: frame dispatched to %d subscribers", len(pushed))
	if p.metrics != nil {
		p.metrics.FramePushed()
	}
}

// chunkTags splits tags into lists of at most MaxTagsPerList, bypassing the
// underlying RPC framing's per-list size cap (spec §6).
func chunkTags(tags []tagio.Tag) [][]tagio.Tag {
	return chunkTagsWithLimit(tags, MaxTagsPerList)
}

// chunkTagsWithLimit splits tags into lists of at most limit tags each.
func chunkTagsWithLimit(tags []tagio.Tag, limit int) [][]tagio.Tag {
	if len(tags) == 0 {
		return nil
	}
	var chunks [][]tagio.Tag
	for len(tags) > 0 {
		n := limit
		if n > len(tags) {
			n = len(tags)
		}
		chunks = append(chunks, tags[:n])
		tags = tags[n:]
	}
	return chunks
}
