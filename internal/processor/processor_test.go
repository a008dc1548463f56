package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photontag/tagstreamd/pkg/tagio"
)

type fixedPatternSource struct {
	patterns []tagio.PatternKey
}

func (f fixedPatternSource) UnionPatterns() []tagio.PatternKey { return f.patterns }

func TestProcessLogicFrameForwardsCountsUnchanged(t *testing.T) {
	p := New(fixedPatternSource{}, 0, nil, nil)
	frame := &tagio.RawFrame{
		Dur:    7,
		Logic:  true,
		Counts: map[tagio.PatternKey]uint64{{Patmask: 0b11, Window: 10}: 4},
	}
	pub := p.process(frame)
	assert.True(t, pub.Logic)
	assert.Equal(t, frame.Counts, pub.Counts)
	assert.Nil(t, pub.Tags)
}

func TestProcessTagFrameComputesPatternCounts(t *testing.T) {
	patterns := fixedPatternSource{patterns: []tagio.PatternKey{{Patmask: 0b11, Window: 1}}}
	p := New(patterns, 5, nil, nil)

	tags := []tagio.Tag{
		{Time: 0, Channel: 1}, {Time: 0, Channel: 2},
		{Time: 100, Channel: 1}, {Time: 100, Channel: 2},
	}
	frame := &tagio.RawFrame{Dur: 100, Tags: tagio.NewTagBuffer(tags)}
	pub := p.process(frame)

	require.Contains(t, pub.Counts, tagio.PatternKey{Patmask: 0b11, Window: 1})
	assert.Equal(t, uint64(2), pub.Counts[tagio.PatternKey{Patmask: 0b11, Window: 1}])
	assert.Equal(t, tags, pub.Tags.Tags())
}

func TestRunForwardsFramesUntilContextCancelled(t *testing.T) {
	in := make(chan *tagio.RawFrame, 1)
	out := make(chan *tagio.PubFrame, 1)
	p := New(fixedPatternSource{}, 0, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	in <- &tagio.RawFrame{Dur: 1, Logic: true, Counts: map[tagio.PatternKey]uint64{}}

	select {
	case pub := <-out:
		assert.Equal(t, uint64(1), pub.Dur)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded frame")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

func TestRunExitsWhenInputChannelCloses(t *testing.T) {
	in := make(chan *tagio.RawFrame)
	out := make(chan *tagio.PubFrame, 1)
	p := New(fixedPatternSource{}, 0, in, out)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	close(in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after input channel closed")
	}
}
