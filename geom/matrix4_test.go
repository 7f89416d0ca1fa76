package geom

import (
	"math"
	"testing"
)

func TestMatrix4Inverse(t *testing.T) {
	const eps = 0.0001

	m := NewTRSMatrix4(
		NewVector3(1, -2, 3),
		NewQuaternionFromAxisAngle(NewVector3(0, 1, 0), 0.5),
		NewVector3(2, 2, 2))
	inv := m.Inverse()
	r := m.Mul(inv)

	id := NewMatrix4()
	for i := range r {
		if d := r[i] - id[i]; d > eps || d < -eps {
			t.Fatal("m * m^-1 != I: ", r)
		}
	}
}

func TestMatrix4TRS(t *testing.T) {
	const eps = 0.0001

	tr := NewVector3(5, 6, 7)
	rot := NewQuaternionFromAxisAngle(NewVector3(0, 0, 1), math.Pi/2)
	sc := NewVector3(2, 3, 4)
	m := NewTRSMatrix4(tr, rot, sc)

	// (1,0,0) scales to (2,0,0), rotates to (0,2,0), translates to (5,8,7)
	v := m.ApplyTo(NewVector3(1, 0, 0))
	if v.Sub(NewVector3(5, 8, 7)).Len() > eps {
		t.Error("unexpected transform: ", v)
	}

	t2, r2, s2 := m.Decompose()
	if t2.Sub(tr).Len() > eps {
		t.Error("translation: ", t2)
	}
	if s2.Sub(sc).Len() > eps {
		t.Error("scale: ", s2)
	}
	if r2.Dot(rot) < 0 {
		r2 = &Quaternion{X: -r2.X, Y: -r2.Y, Z: -r2.Z, W: -r2.W}
	}
	if r2.Sub(rot).Len() > eps {
		t.Error("rotation: ", r2)
	}
}

func TestMatrix4Det(t *testing.T) {
	m := NewScaleMatrix4(2, 3, 4)
	if d := m.Det(); d != 24 {
		t.Error("det: ", d)
	}
	if d := NewMatrix4().Det(); d != 1 {
		t.Error("det: ", d)
	}
}
