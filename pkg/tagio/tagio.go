// Package tagio holds the wire/data-model value types shared across the
// acquisition, processing, and publication pipeline: Tag, the shared
// immutable tag buffer, the raw and published frame variants, and pattern
// keys.
package tagio

// Tag is one time-tagged event: time in device ticks from an arbitrary
// epoch, channel 1..=16.
type Tag struct {
	Time    int64
	Channel uint8
}

// TagBuffer is an immutable, shared sequence of Tags produced once per tick
// by the acquisition controller. It is never mutated after construction;
// Go's garbage collector supplies the "destroyed when no holder remains"
// lifecycle spec.md describes for it — callers pass the pointer around
// freely instead of maintaining a manual reference count.
type TagBuffer struct {
	tags []Tag
}

// NewTagBuffer wraps tags, which must already be non-decreasing by Time, as
// a shared immutable buffer. The caller must not retain a mutable alias of
// tags afterwards.
func NewTagBuffer(tags []Tag) *TagBuffer {
	return &TagBuffer{tags: tags}
}

// Tags returns the buffer's tags. The returned slice must not be modified.
func (b *TagBuffer) Tags() []Tag {
	if b == nil {
		return nil
	}
	return b.tags
}

// Len returns the number of tags in the buffer.
func (b *TagBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.tags)
}

// PatternKey identifies a subscribed pattern: a channel mask plus an
// optional window in device ticks. Window == 0 means "use the server's
// current policy" (see the acquisition and registry packages).
type PatternKey struct {
	Patmask uint16
	Window  uint32
}

// PatternCount is one pattern's result for a tick: the window actually used
// and the resulting count.
type PatternCount struct {
	Patmask  uint16
	Window   uint32
	Duration uint64
	Count    uint64
}

// RawFrame is what the acquisition controller emits once per tick, to be
// consumed by the processor. Exactly one of Tags (tag mode) or Counts
// (logic mode) is populated; Logic reports which.
type RawFrame struct {
	Dur    uint64
	Logic  bool
	Tags   *TagBuffer
	Counts map[PatternKey]uint64
}

// PubFrame is what the processor emits once per tick, to be consumed by the
// publisher. In tag mode, Counts holds the union-pattern results computed
// by the processor; in logic mode, Counts is the controller's on-device
// counts forwarded unchanged.
type PubFrame struct {
	Dur    uint64
	Logic  bool
	Tags   *TagBuffer
	Counts map[PatternKey]uint64
}
