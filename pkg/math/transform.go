package math

// Transform is a rigid transform with non-uniform scale. Points are
// scaled, then rotated, then translated.
type Transform struct {
	Translation Vec3
	Rotation    Quat
	Scale       Vec3
}

// TransformIdentity returns the identity transform.
func TransformIdentity() Transform {
	return Transform{Rotation: QuatIdentity(), Scale: Vec3One()}
}

// TransformFromTranslation returns an unrotated, unscaled transform at p.
func TransformFromTranslation(p Vec3) Transform {
	return Transform{Translation: p, Rotation: QuatIdentity(), Scale: Vec3One()}
}

// Compose expresses t, given relative to parent, in parent's own space.
// For bone transforms this turns a bone-space transform into component
// space when parent is the parent bone's component-space transform.
func (t Transform) Compose(parent Transform) Transform {
	return Transform{
		Translation: parent.Rotation.Rotate(parent.Scale.Mul(t.Translation)).Add(parent.Translation),
		Rotation:    parent.Rotation.Mul(t.Rotation).Normalize(),
		Scale:       parent.Scale.Mul(t.Scale),
	}
}

// RelativeTo is the inverse of Compose: it returns t expressed in
// parent's local space.
func (t Transform) RelativeTo(parent Transform) Transform {
	inv := parent.Rotation.Conjugate()
	return Transform{
		Translation: inv.Rotate(t.Translation.Sub(parent.Translation)).Div(parent.Scale),
		Rotation:    inv.Mul(t.Rotation).Normalize(),
		Scale:       t.Scale.Div(parent.Scale),
	}
}

// Blend interpolates from t to other by w: translation and scale
// linearly, rotation by slerp. The endpoints return an operand
// unchanged so repeated no-op blends do not drift.
func (t Transform) Blend(other Transform, w float32) Transform {
	if w <= 0 {
		return t
	}
	if w >= 1 {
		return other
	}
	return Transform{
		Translation: t.Translation.Lerp(other.Translation, w),
		Rotation:    t.Rotation.Slerp(other.Rotation, w).Normalize(),
		Scale:       t.Scale.Lerp(other.Scale, w),
	}
}

// TransformPoint applies the transform to a point.
func (t Transform) TransformPoint(p Vec3) Vec3 {
	return t.Rotation.Rotate(t.Scale.Mul(p)).Add(t.Translation)
}

// ToMat4 returns the equivalent column-major matrix (T * R * S).
func (t Transform) ToMat4() Mat4 {
	return Translate(t.Translation.X, t.Translation.Y, t.Translation.Z).
		Mul(t.Rotation.ToMat4()).
		Mul(Scale(t.Scale.X, t.Scale.Y, t.Scale.Z))
}

// NearlyEqual compares translation and scale per component and rotation
// up to sign.
func (t Transform) NearlyEqual(other Transform, eps float32) bool {
	if !t.Translation.NearlyEqual(other.Translation, eps) || !t.Scale.NearlyEqual(other.Scale, eps) {
		return false
	}
	return absf(t.Rotation.Dot(other.Rotation)) >= 1-eps
}
