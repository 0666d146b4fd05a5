package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := float32(math.Sqrt(float64(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
}

func TestQuatSlerp(t *testing.T) {
	q1 := QuatIdentity()
	q2 := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	result0 := q1.Slerp(q2, 0)
	if math.Abs(float64(result0.W-q1.W)) > 0.001 {
		t.Errorf("Slerp at t=0 should equal q1")
	}

	result1 := q1.Slerp(q2, 1)
	if math.Abs(float64(result1.W-q2.W)) > 0.001 {
		t.Errorf("Slerp at t=1 should equal q2")
	}

	// 90 degrees halfway is 45 degrees
	result5 := q1.Slerp(q2, 0.5)
	expectedW := float32(math.Cos(float64(math.Pi / 8)))
	if math.Abs(float64(result5.W-expectedW)) > 0.01 {
		t.Errorf("Slerp at t=0.5: expected W ~%v, got %v", expectedW, result5.W)
	}
}

func TestQuatRotate(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 0, Z: 1}, float32(math.Pi/2))
	got := q.Rotate(Vec3{X: 1})
	want := Vec3{Y: 1}
	if !got.NearlyEqual(want, 0.0001) {
		t.Errorf("Rotate (1,0,0) by 90deg around Z: got %v, want %v", got, want)
	}

	back := q.Conjugate().Rotate(got)
	if !back.NearlyEqual(Vec3{X: 1}, 0.0001) {
		t.Errorf("Conjugate should undo the rotation, got %v", back)
	}
}

func TestQuatAngleTo(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/3))
	got := QuatIdentity().AngleTo(q)
	if math.Abs(float64(got)-math.Pi/3) > 0.001 {
		t.Errorf("AngleTo: expected %v, got %v", math.Pi/3, got)
	}
	if a := q.AngleTo(q); a > 0.001 {
		t.Errorf("AngleTo self should be 0, got %v", a)
	}
}

func TestQuatToMat4MatchesRotate(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1, Y: 1, Z: 0}.Normalize(), 1.1)
	p := Vec3{X: 0.3, Y: -2, Z: 5}

	got := q.ToMat4().TransformVec3(p)
	want := q.Rotate(p)
	if !got.NearlyEqual(want, 0.0001) {
		t.Errorf("ToMat4 and Rotate disagree: %v vs %v", got, want)
	}
}

func TestQuatToMat4Identity(t *testing.T) {
	m := QuatIdentity().ToMat4()

	identity := Identity()
	for i := 0; i < 16; i++ {
		if math.Abs(float64(m[i]-identity[i])) > 0.0001 {
			t.Errorf("Identity quat should produce identity matrix, element %d: got %v, want %v", i, m[i], identity[i])
		}
	}
}
