package physics

import (
	"sync"

	"github.com/san-kum/cellsim/internal/geom"
)

// Frame is the solver's output buffer, laid out by store slot.
type Frame struct {
	Position    []geom.Vec3
	Velocity    []geom.Vec3
	Orientation []geom.Quat
}

func (f *Frame) Len() int { return len(f.Position) }

func (f *Frame) resize(n int) {
	f.Position = grow(f.Position, n)
	f.Velocity = grow(f.Velocity, n)
	f.Orientation = grow(f.Orientation, n)
}

func grow[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

// FramePool recycles frames between steps.
type FramePool struct {
	pool sync.Pool
}

func NewFramePool() *FramePool {
	return &FramePool{
		pool: sync.Pool{
			New: func() any { return new(Frame) },
		},
	}
}

// Get returns a frame sized for n slots. Its contents are unspecified.
func (p *FramePool) Get(n int) *Frame {
	f := p.pool.Get().(*Frame)
	f.resize(n)
	return f
}

func (p *FramePool) Put(f *Frame) {
	if f != nil {
		p.pool.Put(f)
	}
}
