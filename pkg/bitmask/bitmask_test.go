package bitmask

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChansToMask(t *testing.T) {
	assert.Equal(t, uint16(0b01), ChansToMask([]uint8{1}))
	assert.Equal(t, uint16(0b10), ChansToMask([]uint8{2}))
	assert.Equal(t, uint16(0b11), ChansToMask([]uint8{1, 2}))
	assert.Equal(t, uint16(0x8000), ChansToMask([]uint8{16}))
}

// Bijective exhaustively checks all 2^16 masks round-trip through
// ChansToMask(MaskToChans(m)) == m, and that MaskToSingle/MaskToPair agree
// with popcount.
func TestBijective(t *testing.T) {
	for m := 0; m <= math.MaxUint16; m++ {
		mask := uint16(m)
		chs := MaskToChans(mask)
		for _, ch := range chs {
			require.NotZero(t, ch)
		}

		mask2 := ChansToMask(chs)
		require.Equal(t, mask, mask2)

		switch len(chs) {
		case 1:
			single, ok := MaskToSingle(mask)
			require.True(t, ok)
			require.Equal(t, chs[0], single)
			_, _, ok = MaskToPair(mask)
			require.False(t, ok)
		case 2:
			_, ok := MaskToSingle(mask)
			require.False(t, ok)
			a, b, ok := MaskToPair(mask)
			require.True(t, ok)
			require.Equal(t, chs[0], a)
			require.Equal(t, chs[1], b)
		default:
			_, ok := MaskToSingle(mask)
			require.False(t, ok)
			_, _, ok = MaskToPair(mask)
			require.False(t, ok)
		}
	}
}

func TestGenericBitOps(t *testing.T) {
	var v uint8
	v = Set(v, 3)
	assert.True(t, Check(v, 3))
	assert.Equal(t, uint8(0b1000), v)

	v = Toggle(v, 3)
	assert.False(t, Check(v, 3))

	v = Change(v, 0, true)
	assert.True(t, Check(v, 0))
	v = Change(v, 0, false)
	assert.False(t, Check(v, 0))

	v = Clear(v, 0)
	assert.Equal(t, uint8(0), v)

	var v64 uint64
	v64 = Set(v64, 63)
	assert.True(t, Check(v64, 63))
}

func TestUint128(t *testing.T) {
	var v Uint128
	v = Set128(v, 0)
	v = Set128(v, 64)
	v = Set128(v, 127)

	assert.True(t, Check128(v, 0))
	assert.True(t, Check128(v, 64))
	assert.True(t, Check128(v, 127))
	assert.False(t, Check128(v, 1))

	v = Clear128(v, 64)
	assert.False(t, Check128(v, 64))

	v = Toggle128(v, 1)
	assert.True(t, Check128(v, 1))

	v = Change128(v, 1, false)
	assert.False(t, Check128(v, 1))
}
