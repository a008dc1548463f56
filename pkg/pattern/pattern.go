// Package pattern implements the singles/coincidence/histogram kernels run
// over a tick's tag buffer, and the parallel pattern-count batch entry
// point used by the processor.
package pattern

import (
	"math/bits"

	"golang.org/x/sync/errgroup"

	"github.com/photontag/tagstreamd/pkg/bitmask"
	"github.com/photontag/tagstreamd/pkg/tagio"
)

// Singles counts tags with channel == ch.
func Singles(tags []tagio.Tag, ch uint8) uint64 {
	var n uint64
	for _, t := range tags {
		if t.Channel == ch {
			n++
		}
	}
	return n
}

// Coincidence counts pairs (ta, tb) with ta.channel==a, tb.channel==b, and
// floor(ta.time/win)+floor(delay/win)==floor(tb.time/win), a single-delay
// slice of CoincidenceHistogram.
func Coincidence(tags []tagio.Tag, a, b uint8, win, delay int64) uint64 {
	hist := CoincidenceHistogram(tags, win, a, b, delay, delay)
	return hist[0]
}

type quantTag struct {
	time    int64
	channel uint8
}

// CoincidenceHistogram computes the coincidence histogram between channels
// a and b over window win, for delays from minDelay to maxDelay (device
// ticks). Tags and both delay bounds are quantized by integer division by
// win, so bin i holds the delay (minDelay/win + i) * win; minDelay > maxDelay
// gives an empty histogram. Tags are scanned
// with a sliding buffer: for each popped t0, later tags within the relevant
// horizon are pulled in; if t0 is on channel a the buffer's b-tagged entries
// in [minDelay, maxDelay] (skipping below minDelay when minDelay > 0) bump
// the matching bin; if t0 is on channel b and minDelay <= 0, the buffer's
// a-tagged entries in [minDelay, maxDelay] (skipping above maxDelay when
// maxDelay < 0) bump the mirrored bin. The two branches are mutually
// exclusive, so a zero delay is never double-counted.
func CoincidenceHistogram(tags []tagio.Tag, win int64, a, b uint8, minDelay, maxDelay int64) []uint64 {
	if minDelay > maxDelay {
		return []uint64{}
	}
	minDelay, maxDelay = minDelay/win, maxDelay/win
	histogram := make([]uint64, maxDelay-minDelay+1)
	if len(tags) == 0 {
		return histogram
	}

	absMinDelay := minDelay
	if absMinDelay < 0 {
		absMinDelay = -absMinDelay
	}
	horizon := maxDelay
	if absMinDelay > horizon {
		horizon = absMinDelay
	}
	horizonQ := horizon

	i := 0
	pull := func() (quantTag, bool) {
		if i >= len(tags) {
			return quantTag{}, false
		}
		t := tags[i]
		i++
		return quantTag{time: t.Time / win, channel: t.Channel}, true
	}

	var buffer []quantTag
	if t, ok := pull(); ok {
		buffer = append(buffer, t)
	}

	for len(buffer) > 0 {
		t0 := buffer[0]
		buffer = buffer[1:]

		for i < len(tags) && tags[i].Time/win-t0.time <= horizonQ {
			t := tags[i]
			i++
			buffer = append(buffer, quantTag{time: t.Time / win, channel: t.Channel})
		}

		switch {
		case t0.channel == a:
			skipping := minDelay > 0
			for _, c := range buffer {
				if c.channel != b {
					continue
				}
				d := c.time - t0.time
				if skipping {
					if d < minDelay {
						continue
					}
					skipping = false
				}
				if d > maxDelay {
					break
				}
				histogram[d-minDelay]++
			}
		case minDelay <= 0 && t0.channel == b:
			skipping := maxDelay < 0
			for _, c := range buffer {
				if c.channel != a {
					continue
				}
				delay := t0.time - c.time
				if skipping {
					if delay > maxDelay {
						continue
					}
					skipping = false
				}
				if delay < minDelay {
					break
				}
				histogram[delay-minDelay]++
			}
		}

		if len(buffer) == 0 {
			if t, ok := pull(); ok {
				buffer = append(buffer, t)
			}
		}
	}

	return histogram
}

// G2 normalizes CoincidenceHistogram by the total acquisition time and the
// two channels' singles rates, giving the second-order coherence g^(2) per
// delay bin.
func G2(tags []tagio.Tag, win int64, a, b uint8, minDelay, maxDelay int64) []float64 {
	hist := CoincidenceHistogram(tags, win, a, b, minDelay, maxDelay)
	out := make([]float64, len(hist))
	if len(tags) == 0 {
		return out
	}

	totalTime := float64(tags[len(tags)-1].Time - tags[0].Time)
	singlesA := float64(Singles(tags, a))
	singlesB := float64(Singles(tags, b))
	if singlesA == 0 || singlesB == 0 {
		return out
	}

	for i, c := range hist {
		out[i] = float64(c) * totalTime / float64(win) / singlesA / singlesB
	}
	return out
}

// CountPatterns computes, for every requested pattern key of weight 1 or 2,
// its count over tags: weight-1 via Singles, weight-2 via Coincidence at
// zero delay using the key's window (defaulting to defaultWindow when the
// key's window is zero; a weight-2 key left with no window contributes no
// entry). Keys of unsupported weight silently contribute no entry. The tag
// buffer is shared read-only across the parallel workers.
func CountPatterns(tags []tagio.Tag, keys []tagio.PatternKey, defaultWindow uint32) map[tagio.PatternKey]uint64 {
	results := make([]uint64, len(keys))
	ok := make([]bool, len(keys))

	var g errgroup.Group
	for idx, key := range keys {
		idx, key := idx, key
		popcount := bits.OnesCount16(key.Patmask)
		if popcount != 1 && popcount != 2 {
			continue
		}

		g.Go(func() error {
			win := key.Window
			if win == 0 {
				win = defaultWindow
			}

			switch popcount {
			case 1:
				ch, found := bitmask.MaskToSingle(key.Patmask)
				if !found {
					return nil
				}
				results[idx] = Singles(tags, ch)
				ok[idx] = true
			case 2:
				a, b, found := bitmask.MaskToPair(key.Patmask)
				if !found || win == 0 {
					return nil
				}
				results[idx] = Coincidence(tags, a, b, int64(win), 0)
				ok[idx] = true
			}
			return nil
		})
	}
	// Errors are never produced by the worker closures above; CountPatterns
	// has no failure mode of its own, so the error is discarded.
	_ = g.Wait()

	out := make(map[tagio.PatternKey]uint64, len(keys))
	for idx, key := range keys {
		if ok[idx] {
			out[key] = results[idx]
		}
	}
	return out
}
