package geom

import "github.com/chewxy/math32"

type Quaternion = Vector4

func NewQuaternion(x, y, z, w Element) *Quaternion {
	return &Quaternion{X: x, Y: y, Z: z, W: w}
}

func NewIdentityQuaternion() *Quaternion {
	return &Quaternion{W: 1}
}

func NewQuaternionFromArray(arr [4]Element) *Quaternion {
	return &Quaternion{X: arr[0], Y: arr[1], Z: arr[2], W: arr[3]}
}

func NewQuaternionFromAxisAngle(axis *Vector3, angle Element) *Quaternion {
	s := math32.Sin(angle / 2)
	return &Quaternion{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: math32.Cos(angle / 2),
	}
}

func (v *Quaternion) Inverse() *Quaternion {
	return &Quaternion{X: -v.X, Y: -v.Y, Z: -v.Z, W: v.W}
}

// Returns Hamilton product
func (a *Quaternion) Mul(b *Quaternion) *Quaternion {
	return &Quaternion{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z, // 1
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y, // i
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X, // j
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W, // k
	}
}

func (q *Quaternion) ApplyTo(v *Vector3) *Vector3 {
	p := &Quaternion{X: v.X, Y: v.Y, Z: v.Z}
	r := q.Mul(p).Mul(q.Inverse())
	return &Vector3{X: r.X, Y: r.Y, Z: r.Z}
}

// Slerp interpolates on the shorter arc. Falls back to normalized
// lerp when the rotations are nearly parallel.
func (q *Quaternion) Slerp(q2 *Quaternion, t Element) *Quaternion {
	b := *q2
	cos := q.Dot(q2)
	if cos < 0 {
		cos = -cos
		b = Quaternion{X: -q2.X, Y: -q2.Y, Z: -q2.Z, W: -q2.W}
	}
	if cos > 0.9995 {
		return q.Lerp(&b, t).Normalize()
	}
	theta := math32.Acos(cos)
	sin := math32.Sin(theta)
	w1 := math32.Sin((1-t)*theta) / sin
	w2 := math32.Sin(t*theta) / sin
	return &Quaternion{
		X: q.X*w1 + b.X*w2,
		Y: q.Y*w1 + b.Y*w2,
		Z: q.Z*w1 + b.Z*w2,
		W: q.W*w1 + b.W*w2,
	}
}
