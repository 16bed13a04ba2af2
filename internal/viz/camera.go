package viz

import (
	"math"
	"sort"

	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

// Camera projects world positions onto the canvas with a simple perspective
// around a target point.
type Camera struct {
	Target           geom.Vec3
	Distance         float64
	RotX, RotY, RotZ float64
	Zoom             float64
}

func NewCamera() *Camera {
	return &Camera{Distance: 50, Zoom: 1.0}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) RotateZ(a float64) { c.RotZ += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(20, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.05, c.Zoom/1.2) }

func (c *Camera) rotate(p geom.Vec3) geom.Vec3 {
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	cz, sz := math.Cos(c.RotZ), math.Sin(c.RotZ)
	p.X, p.Y = p.X*cz-p.Y*sz, p.X*sz+p.Y*cz
	return p
}

// Project maps p to dot coordinates on a sw by sh dot surface. It returns the
// screen scale at p so radii can be projected too; ok is false behind the
// camera.
func (c *Camera) Project(p geom.Vec3, sw, sh int) (x, y int, depth, scale float64, ok bool) {
	rot := c.rotate(p.Sub(c.Target)).Scale(c.Zoom)
	if rot.Z >= c.Distance-0.1 {
		return 0, 0, 0, 0, false
	}
	persp := c.Distance / (c.Distance - rot.Z)
	unit := float64(min(sw, sh)) / 40
	scale = persp * unit * c.Zoom
	x = int(rot.X*persp*unit) + sw/2
	y = int(-rot.Y*persp*unit) + sh/2
	return x, y, rot.Z, scale, true
}

// Frame centres the camera on the colony and picks a zoom that fits it.
func (c *Camera) Frame(snap sim.Snapshot) {
	if len(snap.Cells) == 0 {
		c.Target = geom.Vec3{}
		return
	}
	var centre geom.Vec3
	for _, cell := range snap.Cells {
		centre = centre.Add(cell.Position)
	}
	centre = centre.Scale(1 / float64(len(snap.Cells)))
	extent := 1.0
	for _, cell := range snap.Cells {
		extent = math.Max(extent, cell.Position.Dist(centre)+cell.Radius)
	}
	c.Target = centre
	c.Zoom = math.Min(20, 18/extent)
}

type projected struct {
	x, y  int
	r     int
	depth float64
}

// Render draws bonds as lines and cells as circles, far cells first.
func Render(cv *Canvas, snap sim.Snapshot, cam *Camera) {
	sw, sh := cv.Dots()
	pos := make(map[uint32]projected, len(snap.Cells))
	order := make([]projected, 0, len(snap.Cells))
	for _, cell := range snap.Cells {
		x, y, depth, scale, ok := cam.Project(cell.Position, sw, sh)
		if !ok {
			continue
		}
		p := projected{x: x, y: y, r: int(math.Round(cell.Radius * scale)), depth: depth}
		pos[uint32(cell.ID)] = p
		order = append(order, p)
	}

	for _, l := range snap.Links {
		a, okA := pos[uint32(l.A)]
		b, okB := pos[uint32(l.B)]
		if okA && okB {
			cv.DrawLine(a.x, a.y, b.x, b.y)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].depth < order[j].depth })
	for _, p := range order {
		cv.Circle(p.x, p.y, p.r)
	}
}
