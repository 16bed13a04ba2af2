package physics

import (
	"math"

	"github.com/san-kum/cellsim/internal/geom"
)

type binKey struct{ x, y, z int32 }

// Grid bins slots by position so neighbour queries only scan the 27
// surrounding bins. Slots are appended in ascending order, so every query
// visits candidates in the same order on every run.
type Grid struct {
	size float64
	bins map[binKey][]int32
}

func NewGrid(size float64) *Grid {
	return &Grid{size: size, bins: make(map[binKey][]int32)}
}

// binLimit keeps bin coordinates and their +-1 neighbours inside int32.
const binLimit = 1 << 30

func (g *Grid) key(p geom.Vec3) binKey {
	return binKey{
		x: g.coord(p.X),
		y: g.coord(p.Y),
		z: g.coord(p.Z),
	}
}

// coord saturates far positions into the outermost bins instead of
// converting an out-of-range float.
func (g *Grid) coord(v float64) int32 {
	c := math.Floor(v / g.size)
	switch {
	case c >= binLimit:
		return binLimit
	case c <= -binLimit:
		return -binLimit
	}
	return int32(c)
}

// Build rebins the given positions. Slots with skip set, or with non-finite
// positions, are left out.
func (g *Grid) Build(pos []geom.Vec3, skip func(slot int) bool) {
	clear(g.bins)
	for i, p := range pos {
		if (skip != nil && skip(i)) || !p.IsFinite() {
			continue
		}
		k := g.key(p)
		g.bins[k] = append(g.bins[k], int32(i))
	}
}

// Neighbors calls fn for every binned slot in the bins around p. Iteration
// stops early when fn returns false.
func (g *Grid) Neighbors(p geom.Vec3, fn func(slot int) bool) {
	if !p.IsFinite() {
		return
	}
	c := g.key(p)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				for _, j := range g.bins[binKey{c.x + dx, c.y + dy, c.z + dz}] {
					if !fn(int(j)) {
						return
					}
				}
			}
		}
	}
}

func (g *Grid) Size() float64 { return g.size }
func (g *Grid) Bins() int     { return len(g.bins) }
