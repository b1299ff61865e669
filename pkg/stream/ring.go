package stream

import (
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Ring is a fixed-capacity buffer retaining the most recent frames for
// replay to late joiners. Not safe for concurrent use; the owning
// stream serializes access under its lock.
type Ring struct {
	buf   []*types.Frame
	head  int // next write position
	count int
}

// NewRing creates a ring holding up to capacity frames
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]*types.Frame, capacity)}
}

// Add appends a frame, overwriting the oldest once full
func (r *Ring) Add(frame *types.Frame) {
	r.buf[r.head] = frame
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of buffered frames
func (r *Ring) Len() int {
	return r.count
}

// Last returns up to n of the most recent frames in production order.
// n <= 0 returns everything buffered.
func (r *Ring) Last(n int) []*types.Frame {
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]*types.Frame, 0, n)
	start := r.head - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
