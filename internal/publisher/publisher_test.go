package publisher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photontag/tagstreamd/internal/registry"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// fakePusher is safe to use from PushUpdate's async completion goroutine:
// Push may run concurrently with the test goroutine reading pushes.
type fakePusher struct {
	mu     sync.Mutex
	pushes []any
	fail   bool
}

func (f *fakePusher) Push(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.pushes = append(f.pushes, msg)
	return nil
}

func (f *fakePusher) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func TestPublisherBuildsMessagePerSubscriber(t *testing.T) {
	settings := make(chan registry.SettingEvent, 8)
	reg := registry.New(0, settings)

	a := &fakePusher{}
	reg.Subscribe(0b01, []tagio.PatternKey{{Patmask: 0b01}}, a)
	b := &fakePusher{}
	reg.Subscribe(0b10, []tagio.PatternKey{{Patmask: 0b10}}, b)

	in := make(chan *tagio.PubFrame, 1)
	pub := New(reg, in)

	frame := &tagio.PubFrame{
		Dur:  100,
		Tags: tagio.NewTagBuffer([]tagio.Tag{{Time: 1, Channel: 1}, {Time: 2, Channel: 2}}),
		Counts: map[tagio.PatternKey]uint64{
			{Patmask: 0b01}: 3,
			{Patmask: 0b10}: 5,
		},
	}
	pub.publish(frame)

	require.Eventually(t, func() bool { return a.pushCount() == 1 }, time.Second, time.Millisecond)
	msgA := a.pushes[0].(*Message)
	assert.Equal(t, uint16(0b01), msgA.Tagmask)
	require.Len(t, msgA.Patterns, 1)
	assert.Equal(t, uint64(3), msgA.Patterns[0].Count)

	require.Eventually(t, func() bool { return b.pushCount() == 1 }, time.Second, time.Millisecond)
	msgB := b.pushes[0].(*Message)
	assert.Equal(t, uint64(5), msgB.Patterns[0].Count)
}

func TestPublisherRepeatedPublishesEachDeliver(t *testing.T) {
	settings := make(chan registry.SettingEvent, 8)
	reg := registry.New(0, settings)

	dst := &fakePusher{}
	reg.Subscribe(0, nil, dst)

	in := make(chan *tagio.PubFrame, 1)
	pub := New(reg, in)
	frame := &tagio.PubFrame{Dur: 1, Tags: tagio.NewTagBuffer(nil)}

	// publish() does not block on the push completing, and a subscriber with
	// PushCredit pushes in flight is skipped, so each publish here waits for
	// the previous push to land; more than PushCredit publishes then all
	// deliver, since dst's Push never errors or stalls.
	for i := 0; i < registry.PushCredit+2; i++ {
		pub.publish(frame)
		want := i + 1
		require.Eventually(t, func() bool { return dst.pushCount() == want }, time.Second, time.Millisecond)
	}
	assert.Eventually(t, func() bool { return dst.pushCount() == registry.PushCredit+2 }, time.Second, time.Millisecond)
}

func TestPublisherRemovesSubscriberOnPushError(t *testing.T) {
	settings := make(chan registry.SettingEvent, 8)
	reg := registry.New(0, settings)

	bad := &fakePusher{fail: true}
	reg.Subscribe(0, nil, bad)

	in := make(chan *tagio.PubFrame, 1)
	pub := New(reg, in)
	frame := &tagio.PubFrame{Dur: 1, Tags: tagio.NewTagBuffer(nil)}
	pub.publish(frame)

	// Once bad's push completes and errors, it is dropped; a later PushUpdate
	// finds no subscribers left to push to.
	assert.Eventually(t, func() bool {
		pushed := reg.PushUpdate(func(_ registry.Inputs, _ uint16, _ []tagio.PatternKey) any { return nil })
		return len(pushed) == 0
	}, time.Second, time.Millisecond)
}

type recordingMetrics struct {
	frames int
}

func (m *recordingMetrics) FramePushed() {
	m.frames++
}

func TestPublisherReportsFramePushedToMetricsSink(t *testing.T) {
	settings := make(chan registry.SettingEvent, 8)
	reg := registry.New(0, settings)
	reg.Subscribe(0, nil, &fakePusher{})

	in := make(chan *tagio.PubFrame, 1)
	pub := New(reg, in)
	m := &recordingMetrics{}
	pub.SetMetrics(m)

	frame := &tagio.PubFrame{Dur: 1, Tags: tagio.NewTagBuffer(nil)}
	pub.publish(frame)
	pub.publish(frame)

	assert.Equal(t, 2, m.frames)
}

func TestChunkTagsSplitsOversizedBuffers(t *testing.T) {
	tags := make([]tagio.Tag, 3)
	chunks := chunkTagsWithLimit(tags, 2)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 1)
}
