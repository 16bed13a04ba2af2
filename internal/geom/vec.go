// Package geom provides the small vector and quaternion types shared by the
// genome, the cell store and the solver.
package geom

import "math"

type Vec3 struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(f float64) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }
func (v Vec3) Neg() Vec3            { return Vec3{-v.X, -v.Y, -v.Z} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Len2() float64        { return v.Dot(v) }
func (v Vec3) Len() float64         { return math.Sqrt(v.Len2()) }
func (v Vec3) IsZero() bool         { return v.X == 0 && v.Y == 0 && v.Z == 0 }
func (v Vec3) Dist(o Vec3) float64  { return v.Sub(o).Len() }

func (v Vec3) AddScaled(o Vec3, f float64) Vec3 {
	return Vec3{v.X + o.X*f, v.Y + o.Y*f, v.Z + o.Z*f}
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Normalize returns the unit vector along v, or the zero vector when v has no
// length.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v Vec3) IsFinite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
