package geom

import "math"

// Quat is a rotation quaternion with the scalar part in W.
type Quat struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
	W float64 `yaml:"w" json:"w"`
}

var Identity = Quat{W: 1}

// AxisAngle builds the rotation of angle radians around axis.
func AxisAngle(axis Vec3, angle float64) Quat {
	a := axis.Normalize()
	if a.IsZero() {
		return Identity
	}
	s, c := math.Sincos(angle / 2)
	return Quat{X: a.X * s, Y: a.Y * s, Z: a.Z * s, W: c}
}

// Mul composes rotations: the result applies o first, then q.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

func (q Quat) Len() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalize returns q scaled to unit length. Degenerate input collapses to
// the identity.
func (q Quat) Normalize() Quat {
	l := q.Len()
	if l == 0 || !finite(l) {
		return Identity
	}
	inv := 1 / l
	return Quat{q.X * inv, q.Y * inv, q.Z * inv, q.W * inv}
}

func (q Quat) Conj() Quat { return Quat{-q.X, -q.Y, -q.Z, q.W} }

// Rotate applies q to v. q is expected to be unit length.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

func (q Quat) IsFinite() bool {
	return finite(q.X) && finite(q.Y) && finite(q.Z) && finite(q.W)
}
