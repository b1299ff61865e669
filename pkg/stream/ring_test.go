package stream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/types"
)

func frameN(n int) *types.Frame {
	return &types.Frame{Type: types.FrameLog, Message: fmt.Sprintf("entry-%d", n)}
}

func TestRingReplayOrder(t *testing.T) {
	r := NewRing(5)
	for i := 1; i <= 3; i++ {
		r.Add(frameN(i))
	}

	out := r.Last(0)
	require.Len(t, out, 3)
	assert.Equal(t, "entry-1", out[0].Message)
	assert.Equal(t, "entry-3", out[2].Message)
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Add(frameN(i))
	}

	require.Equal(t, 3, r.Len())
	out := r.Last(0)
	assert.Equal(t, "entry-3", out[0].Message)
	assert.Equal(t, "entry-4", out[1].Message)
	assert.Equal(t, "entry-5", out[2].Message)
}

func TestRingLastN(t *testing.T) {
	r := NewRing(1000)
	for i := 1; i <= 1500; i++ {
		r.Add(frameN(i))
	}

	// 1500 produced, capacity 1000, tail 200: entries 1301..1500
	out := r.Last(200)
	require.Len(t, out, 200)
	assert.Equal(t, "entry-1301", out[0].Message)
	assert.Equal(t, "entry-1500", out[199].Message)
}

func TestRingLastMoreThanBuffered(t *testing.T) {
	r := NewRing(10)
	r.Add(frameN(1))

	out := r.Last(100)
	require.Len(t, out, 1)
	assert.Equal(t, "entry-1", out[0].Message)
}

func TestRingEmpty(t *testing.T) {
	r := NewRing(10)
	assert.Empty(t, r.Last(5))
	assert.Equal(t, 0, r.Len())
}
