package bridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReference_RoundTrip(t *testing.T) {
	t.Parallel()

	seqs := []int{0, 1, 9, 10, 99, 100, 12345, MaxSeq - 1, MaxSeq}
	tags := []ScopeTag{TagFrame, TagLocals, TagVariable}

	seen := make(map[int]Reference)
	for thread := 0; thread <= MaxThread; thread++ {
		for frame := 0; frame <= MaxFrame; frame++ {
			for _, seq := range seqs {
				for _, tag := range tags {
					r := Reference{Tag: tag, Thread: thread, Frame: frame, Seq: seq}
					n := r.Encode()
					require.Positive(t, n)
					require.LessOrEqual(t, n, math.MaxInt32)

					got, ok := DecodeReference(n)
					require.True(t, ok)
					require.Equal(t, r, got)

					prev, dup := seen[n]
					require.False(t, dup, "%v and %v both encode to %d", prev, r, n)
					seen[n] = r
				}
			}
		}
	}
}

func TestReference_Layout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30102, Reference{Tag: TagVariable, Thread: 1, Frame: 2}.Encode())
	assert.Equal(t, 730102, Reference{Tag: TagVariable, Thread: 1, Frame: 2, Seq: 7}.Encode())
	assert.Equal(t, 10000, Reference{Tag: TagFrame}.Encode())
}

func TestReference_OutOfRange(t *testing.T) {
	t.Parallel()

	bad := []Reference{
		{Tag: TagFrame, Thread: 100},
		{Tag: TagFrame, Frame: 100},
		{Tag: TagFrame, Thread: -1},
		{Tag: TagLocals, Seq: MaxSeq + 1},
		{Tag: 0},
		{Tag: 4},
	}
	for _, r := range bad {
		assert.False(t, r.Valid(), "%v", r)
		assert.Panics(t, func() { r.Encode() }, "%v", r)
	}
}

func TestDecodeReference_Invalid(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -5, 1, 9999, 40000, 50101} {
		_, ok := DecodeReference(n)
		assert.False(t, ok, "%d", n)
	}
}
