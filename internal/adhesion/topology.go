package adhesion

import (
	"slices"

	"github.com/san-kum/cellsim/internal/cells"
)

// Topology is a frozen view of the graph taken before the parallel physics
// pass. It shares nothing with the graph, so later edits apply only to the
// next snapshot.
type Topology struct {
	bonds    []Bond
	incident map[cells.CellID][]int
}

// Snapshot freezes the current bond set.
func (g *Graph) Snapshot() *Topology {
	t := &Topology{
		bonds:    g.Bonds(),
		incident: make(map[cells.CellID][]int, len(g.adj)),
	}
	for i, b := range t.bonds {
		t.incident[b.A] = append(t.incident[b.A], i)
		t.incident[b.B] = append(t.incident[b.B], i)
	}
	return t
}

func (t *Topology) Len() int { return len(t.bonds) }

// Bond returns the i-th bond in ascending id order.
func (t *Topology) Bond(i int) Bond { return t.bonds[i] }

// Bonds returns a copy of all bonds in ascending id order.
func (t *Topology) Bonds() []Bond { return slices.Clone(t.bonds) }

// Incident returns indices of the bonds touching id, in ascending bond id
// order. The slice must not be modified.
func (t *Topology) Incident(id cells.CellID) []int { return t.incident[id] }

// Bonded reports whether a and b share a bond in the snapshot.
func (t *Topology) Bonded(a, b cells.CellID) bool {
	for _, i := range t.incident[a] {
		if t.bonds[i].Other(a) == b {
			return true
		}
	}
	return false
}
