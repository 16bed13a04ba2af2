package cells

import (
	"errors"
	"iter"

	"github.com/san-kum/cellsim/internal/geom"
)

var (
	// ErrNotFound is returned for ids that were killed or never spawned.
	ErrNotFound = errors.New("cells: cell not found")

	// ErrCapacity is returned by Spawn once the population cap is reached.
	ErrCapacity = errors.New("cells: population capacity reached")
)

// CellID identifies a cell for its whole lifetime. Ids are issued from a
// counter and are not reused until Reset, so a stale id can never alias a
// newer cell. Zero means "no cell".
type CellID uint32

// Cell is a value copy of one row of the store.
type Cell struct {
	ID          CellID
	Parent      CellID
	Position    geom.Vec3
	Velocity    geom.Vec3
	Orientation geom.Quat
	Mass        float64
	Age         float64
	Mode        int
	Splits      int
}

// Columns exposes the store's structure-of-arrays by slot. The slices alias
// the store and must be treated as read-only. They stay valid until the next
// structural mutation (Spawn, Compact, Reset).
type Columns struct {
	IDs         []CellID
	Alive       []bool
	Position    []geom.Vec3
	Velocity    []geom.Vec3
	Orientation []geom.Quat
	Mass        []float64
	Mode        []int
}

// Store owns every cell record. Slots of killed cells are left as holes
// until Compact, which keeps slot order equal to ascending id order.
type Store struct {
	ids      []CellID
	parent   []CellID
	alive    []bool
	pos      []geom.Vec3
	vel      []geom.Vec3
	orient   []geom.Quat
	mass     []float64
	age      []float64
	mode     []int
	splits   []int
	index    map[CellID]int
	nextID   CellID
	live     int
	capacity int
	onKill   []func(CellID)
}

// New returns an empty store. capacity bounds the live population; zero
// means unbounded.
func New(capacity int) *Store {
	return &Store{
		index:    make(map[CellID]int),
		nextID:   1,
		capacity: capacity,
	}
}

// OnKill registers a callback run synchronously by Kill before the cell is
// removed.
func (s *Store) OnKill(fn func(CellID)) {
	s.onKill = append(s.onKill, fn)
}

func (s *Store) Len() int       { return s.live }
func (s *Store) Slots() int     { return len(s.ids) }
func (s *Store) Capacity() int  { return s.capacity }
func (s *Store) NextID() CellID { return s.nextID }

// Spawn allocates a fresh id for a cell at rest.
func (s *Store) Spawn(position geom.Vec3, orientation geom.Quat, mode int, mass float64) (CellID, error) {
	return s.Insert(Cell{Position: position, Orientation: orientation, Mode: mode, Mass: mass})
}

// Insert appends c under a fresh id. c.ID is ignored.
func (s *Store) Insert(c Cell) (CellID, error) {
	if s.capacity > 0 && s.live >= s.capacity {
		return 0, ErrCapacity
	}
	id := s.nextID
	s.nextID++

	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.parent = append(s.parent, c.Parent)
	s.alive = append(s.alive, true)
	s.pos = append(s.pos, c.Position)
	s.vel = append(s.vel, c.Velocity)
	s.orient = append(s.orient, c.Orientation)
	s.mass = append(s.mass, c.Mass)
	s.age = append(s.age, c.Age)
	s.mode = append(s.mode, c.Mode)
	s.splits = append(s.splits, c.Splits)
	s.live++
	return id, nil
}

// Kill removes a live cell. Kill callbacks run first so that nothing still
// names the id once it is gone.
func (s *Store) Kill(id CellID) error {
	slot, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	for _, fn := range s.onKill {
		fn(id)
	}
	s.alive[slot] = false
	delete(s.index, id)
	s.live--
	return nil
}

func (s *Store) Has(id CellID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Store) Get(id CellID) (Cell, error) {
	slot, ok := s.index[id]
	if !ok {
		return Cell{}, ErrNotFound
	}
	return s.row(slot), nil
}

// Slot returns the storage slot of a live id.
func (s *Store) Slot(id CellID) (int, bool) {
	slot, ok := s.index[id]
	return slot, ok
}

// Update applies fn to a copy of the cell and writes it back. The id and
// parent are not writable.
func (s *Store) Update(id CellID, fn func(c *Cell)) error {
	slot, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	c := s.row(slot)
	fn(&c)
	s.pos[slot] = c.Position
	s.vel[slot] = c.Velocity
	s.orient[slot] = c.Orientation
	s.mass[slot] = c.Mass
	s.age[slot] = c.Age
	s.mode[slot] = c.Mode
	s.splits[slot] = c.Splits
	return nil
}

// All yields every live cell in slot order. The sequence can be ranged over
// any number of times.
func (s *Store) All() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for slot := range s.ids {
			if !s.alive[slot] {
				continue
			}
			if !yield(s.row(slot)) {
				return
			}
		}
	}
}

// IDs returns the live ids in ascending order.
func (s *Store) IDs() []CellID {
	out := make([]CellID, 0, s.live)
	for slot, id := range s.ids {
		if s.alive[slot] {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) Columns() Columns {
	return Columns{
		IDs:         s.ids,
		Alive:       s.alive,
		Position:    s.pos,
		Velocity:    s.vel,
		Orientation: s.orient,
		Mass:        s.mass,
		Mode:        s.mode,
	}
}

// SetMotion overwrites the kinematic columns slot by slot. The slices must
// have been computed against this store's current slot layout.
func (s *Store) SetMotion(pos, vel []geom.Vec3, orient []geom.Quat) {
	copy(s.pos, pos)
	copy(s.vel, vel)
	copy(s.orient, orient)
}

// Compact drops the slots of killed cells, preserving order, and returns the
// number of slots reclaimed.
func (s *Store) Compact() int {
	w := 0
	for r := range s.ids {
		if !s.alive[r] {
			continue
		}
		if w != r {
			s.ids[w] = s.ids[r]
			s.parent[w] = s.parent[r]
			s.alive[w] = true
			s.pos[w] = s.pos[r]
			s.vel[w] = s.vel[r]
			s.orient[w] = s.orient[r]
			s.mass[w] = s.mass[r]
			s.age[w] = s.age[r]
			s.mode[w] = s.mode[r]
			s.splits[w] = s.splits[r]
		}
		s.index[s.ids[w]] = w
		w++
	}
	reclaimed := len(s.ids) - w
	s.ids = s.ids[:w]
	s.parent = s.parent[:w]
	s.alive = s.alive[:w]
	s.pos = s.pos[:w]
	s.vel = s.vel[:w]
	s.orient = s.orient[:w]
	s.mass = s.mass[:w]
	s.age = s.age[:w]
	s.mode = s.mode[:w]
	s.splits = s.splits[:w]
	return reclaimed
}

// Reset removes every cell and restarts id issue. Kill callbacks are not run.
func (s *Store) Reset() {
	*s = Store{
		index:    make(map[CellID]int),
		nextID:   1,
		capacity: s.capacity,
		onKill:   s.onKill,
	}
}

// Clone returns a deep copy without the kill callbacks.
func (s *Store) Clone() *Store {
	c := &Store{
		ids:      append([]CellID(nil), s.ids...),
		parent:   append([]CellID(nil), s.parent...),
		alive:    append([]bool(nil), s.alive...),
		pos:      append([]geom.Vec3(nil), s.pos...),
		vel:      append([]geom.Vec3(nil), s.vel...),
		orient:   append([]geom.Quat(nil), s.orient...),
		mass:     append([]float64(nil), s.mass...),
		age:      append([]float64(nil), s.age...),
		mode:     append([]int(nil), s.mode...),
		splits:   append([]int(nil), s.splits...),
		index:    make(map[CellID]int, len(s.index)),
		nextID:   s.nextID,
		live:     s.live,
		capacity: s.capacity,
	}
	for id, slot := range s.index {
		c.index[id] = slot
	}
	return c
}

func (s *Store) row(slot int) Cell {
	return Cell{
		ID:          s.ids[slot],
		Parent:      s.parent[slot],
		Position:    s.pos[slot],
		Velocity:    s.vel[slot],
		Orientation: s.orient[slot],
		Mass:        s.mass[slot],
		Age:         s.age[slot],
		Mode:        s.mode[slot],
		Splits:      s.splits[slot],
	}
}
