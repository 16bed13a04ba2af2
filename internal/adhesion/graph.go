package adhesion

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/san-kum/cellsim/internal/cells"
)

var (
	ErrCapacityExceeded = errors.New("adhesion: capacity exceeded")
	ErrDuplicateBond    = errors.New("adhesion: cells already bonded")
	ErrSelfBond         = errors.New("adhesion: cell cannot bond to itself")
	ErrAlreadyRemoved   = errors.New("adhesion: bond already removed")
	ErrUnknownCell      = errors.New("adhesion: unknown cell")
	ErrInvariant        = errors.New("adhesion: invariant violated")
)

type BondID uint32

// Spring holds the mechanical parameters of a bond.
type Spring struct {
	RestLength  float64
	Stiffness   float64
	Damping     float64
	CanBreak    bool
	BreakStrain float64
}

// Bond connects two distinct cells. A is always the lower id.
type Bond struct {
	ID BondID
	A  cells.CellID
	B  cells.CellID
	Spring
}

// Other returns the endpoint of b that is not id.
func (b Bond) Other(id cells.CellID) cells.CellID {
	if b.A == id {
		return b.B
	}
	return b.A
}

// Limits reports the maximum degree allowed for a live cell. Implementations
// return an error wrapping cells.ErrNotFound (or ErrUnknownCell) for ids that
// are not alive.
type Limits interface {
	MaxAdhesions(id cells.CellID) (int, error)
}

// LimitFunc adapts a function to the Limits interface.
type LimitFunc func(id cells.CellID) (int, error)

func (f LimitFunc) MaxAdhesions(id cells.CellID) (int, error) { return f(id) }

// Graph is the symmetric bond topology. It holds cell ids only and never
// owns cell records.
type Graph struct {
	bonds  map[BondID]Bond
	adj    map[cells.CellID][]BondID
	nextID BondID
	limits Limits
}

func New(limits Limits) *Graph {
	return &Graph{
		bonds:  make(map[BondID]Bond),
		adj:    make(map[cells.CellID][]BondID),
		nextID: 1,
		limits: limits,
	}
}

// SetLimits replaces the degree limit source, e.g. after the genome changed.
func (g *Graph) SetLimits(l Limits) { g.limits = l }

func (g *Graph) Len() int { return len(g.bonds) }

// Bond connects a and b. The graph is unchanged when an error is returned.
func (g *Graph) Bond(a, b cells.CellID, s Spring) (BondID, error) {
	if a == b {
		return 0, ErrSelfBond
	}
	if _, ok := g.between(a, b); ok {
		return 0, ErrDuplicateBond
	}
	if err := g.checkRoom(a); err != nil {
		return 0, err
	}
	if err := g.checkRoom(b); err != nil {
		return 0, err
	}

	if a > b {
		a, b = b, a
	}
	id := g.nextID
	g.nextID++
	g.bonds[id] = Bond{ID: id, A: a, B: b, Spring: s}
	g.attach(a, id)
	g.attach(b, id)
	return id, nil
}

// Unbond removes a bond from both endpoints. Removing a bond twice reports
// ErrAlreadyRemoved and leaves the graph unchanged.
func (g *Graph) Unbond(id BondID) error {
	b, ok := g.bonds[id]
	if !ok {
		return ErrAlreadyRemoved
	}
	delete(g.bonds, id)
	g.detach(b.A, id)
	g.detach(b.B, id)
	return nil
}

// Rewire moves the from endpoint of a bond to another cell, keeping the bond
// id and spring.
func (g *Graph) Rewire(id BondID, from, to cells.CellID) error {
	b, ok := g.bonds[id]
	if !ok {
		return ErrAlreadyRemoved
	}
	if b.A != from && b.B != from {
		return fmt.Errorf("adhesion: bond %d does not touch cell %d", id, from)
	}
	if from == to {
		return nil
	}
	other := b.Other(from)
	if other == to {
		return ErrSelfBond
	}
	if err := g.checkRoom(to); err != nil {
		return err
	}
	if _, dup := g.between(other, to); dup {
		return ErrDuplicateBond
	}

	g.detach(from, id)
	b.A, b.B = other, to
	if b.A > b.B {
		b.A, b.B = b.B, b.A
	}
	g.bonds[id] = b
	g.attach(to, id)
	return nil
}

// RemoveCell drops every bond that names id and returns how many were
// removed. It is wired as the cell store's kill callback.
func (g *Graph) RemoveCell(id cells.CellID) int {
	ids := g.adj[id]
	for _, bid := range slices.Clone(ids) {
		_ = g.Unbond(bid)
	}
	delete(g.adj, id)
	return len(ids)
}

// BondsOf returns the bond ids of a cell in ascending order.
func (g *Graph) BondsOf(id cells.CellID) []BondID {
	return slices.Clone(g.adj[id])
}

func (g *Graph) Degree(id cells.CellID) int { return len(g.adj[id]) }

func (g *Graph) Get(id BondID) (Bond, bool) {
	b, ok := g.bonds[id]
	return b, ok
}

// Partner returns the cell on the other side of bond id from cell.
func (g *Graph) Partner(id BondID, cell cells.CellID) (cells.CellID, error) {
	b, ok := g.bonds[id]
	if !ok {
		return 0, ErrAlreadyRemoved
	}
	if b.A != cell && b.B != cell {
		return 0, fmt.Errorf("adhesion: bond %d does not touch cell %d", id, cell)
	}
	return b.Other(cell), nil
}

// Bonded reports whether a and b share a bond.
func (g *Graph) Bonded(a, b cells.CellID) bool {
	_, ok := g.between(a, b)
	return ok
}

// Bonds returns every bond in ascending id order.
func (g *Graph) Bonds() []Bond {
	out := make([]Bond, 0, len(g.bonds))
	for _, b := range g.bonds {
		out = append(out, b)
	}
	slices.SortFunc(out, func(x, y Bond) int { return cmp.Compare(x.ID, y.ID) })
	return out
}

// Verify checks symmetry and degree bounds across the whole graph.
func (g *Graph) Verify() error {
	for id, b := range g.bonds {
		if b.A == b.B {
			return fmt.Errorf("%w: bond %d is a self bond", ErrInvariant, id)
		}
		if _, ok := slices.BinarySearch(g.adj[b.A], id); !ok {
			return fmt.Errorf("%w: bond %d missing from cell %d", ErrInvariant, id, b.A)
		}
		if _, ok := slices.BinarySearch(g.adj[b.B], id); !ok {
			return fmt.Errorf("%w: bond %d missing from cell %d", ErrInvariant, id, b.B)
		}
	}
	for cell, ids := range g.adj {
		for _, id := range ids {
			b, ok := g.bonds[id]
			if !ok || (b.A != cell && b.B != cell) {
				return fmt.Errorf("%w: cell %d lists foreign bond %d", ErrInvariant, cell, id)
			}
		}
		if g.limits == nil {
			continue
		}
		limit, err := g.limits.MaxAdhesions(cell)
		if err != nil {
			return fmt.Errorf("%w: cell %d: %v", ErrInvariant, cell, err)
		}
		if len(ids) > limit {
			return fmt.Errorf("%w: cell %d has %d bonds, max %d", ErrInvariant, cell, len(ids), limit)
		}
	}
	return nil
}

// Clone returns an independent copy bound to limits.
func (g *Graph) Clone(limits Limits) *Graph {
	c := &Graph{
		bonds:  make(map[BondID]Bond, len(g.bonds)),
		adj:    make(map[cells.CellID][]BondID, len(g.adj)),
		nextID: g.nextID,
		limits: limits,
	}
	for id, b := range g.bonds {
		c.bonds[id] = b
	}
	for cell, ids := range g.adj {
		c.adj[cell] = slices.Clone(ids)
	}
	return c
}

// Reset drops every bond and restarts id issue.
func (g *Graph) Reset() {
	g.bonds = make(map[BondID]Bond)
	g.adj = make(map[cells.CellID][]BondID)
	g.nextID = 1
}

func (g *Graph) checkRoom(id cells.CellID) error {
	if g.limits == nil {
		return nil
	}
	limit, err := g.limits.MaxAdhesions(id)
	if err != nil {
		return fmt.Errorf("%w %d: %w", ErrUnknownCell, id, err)
	}
	if len(g.adj[id]) >= limit {
		return ErrCapacityExceeded
	}
	return nil
}

func (g *Graph) between(a, b cells.CellID) (BondID, bool) {
	x, y := a, b
	if len(g.adj[y]) < len(g.adj[x]) {
		x, y = y, x
	}
	for _, id := range g.adj[x] {
		if g.bonds[id].Other(x) == y {
			return id, true
		}
	}
	return 0, false
}

func (g *Graph) attach(cell cells.CellID, id BondID) {
	ids := g.adj[cell]
	i, _ := slices.BinarySearch(ids, id)
	g.adj[cell] = slices.Insert(ids, i, id)
}

func (g *Graph) detach(cell cells.CellID, id BondID) {
	ids := g.adj[cell]
	i, ok := slices.BinarySearch(ids, id)
	if !ok {
		return
	}
	ids = slices.Delete(ids, i, i+1)
	if len(ids) == 0 {
		delete(g.adj, cell)
		return
	}
	g.adj[cell] = ids
}
