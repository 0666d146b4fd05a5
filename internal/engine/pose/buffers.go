// Package pose provides the double-buffered pose state of a skeletal mesh
// and the update-rate bookkeeping that decides how each tick's pose is
// produced.
package pose

import (
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// CurveSet holds named animation curve values.
type CurveSet map[string]float32

// AttributeKey identifies a custom attribute on a skeleton bone.
type AttributeKey struct {
	Bone int
	Name string
}

// AttributeSet holds custom float attributes keyed by bone and name.
type AttributeSet map[AttributeKey]float32

// Buffers is one complete pose: bone-space and component-space transforms
// indexed by compact bone index, plus curves and attributes.
type Buffers struct {
	BoneSpace      []math.Transform
	ComponentSpace []math.Transform
	Curves         CurveSet
	Attributes     AttributeSet
	// Frame is the tick that produced the pose.
	Frame uint64

	bones *skeleton.BoneContainer
}

// NewBuffers allocates buffers for a container, filled with the
// reference pose.
func NewBuffers(bones *skeleton.BoneContainer) *Buffers {
	b := &Buffers{}
	b.Reset(bones)
	return b
}

// Bones returns the container the buffers are sized for.
func (b *Buffers) Bones() *skeleton.BoneContainer {
	return b.bones
}

// Num returns the bone count of the buffers.
func (b *Buffers) Num() int {
	return len(b.BoneSpace)
}

// Matches reports whether the buffers are sized for the given container.
func (b *Buffers) Matches(bones *skeleton.BoneContainer) bool {
	return b.bones != nil && b.bones.Serial() == bones.Serial() && len(b.BoneSpace) == bones.Num()
}

// Reset sizes the buffers for a container and fills them with the
// reference pose. Slices are reused when capacity allows.
func (b *Buffers) Reset(bones *skeleton.BoneContainer) {
	n := bones.Num()
	b.bones = bones
	b.BoneSpace = resize(b.BoneSpace, n)
	b.ComponentSpace = resize(b.ComponentSpace, n)
	bones.FillRefPose(b.BoneSpace)
	bones.FillComponentSpace(b.BoneSpace, b.ComponentSpace)
	b.Curves = make(CurveSet)
	b.Attributes = make(AttributeSet)
	b.Frame = 0
}

// Rebind sizes the buffers for a new container, keeping the bone-space
// value of every bone present in both and using the reference pose for
// the rest. A container of another skeleton resets to its reference pose.
func (b *Buffers) Rebind(bones *skeleton.BoneContainer) {
	if b.bones == nil || b.bones.Skeleton() != bones.Skeleton() {
		b.Reset(bones)
		return
	}
	old := b.bones
	prev := b.BoneSpace

	next := make([]math.Transform, bones.Num())
	for ci := range next {
		oi := old.CompactIndex(bones.SkeletonIndex(ci))
		if oi >= 0 && oi < len(prev) {
			next[ci] = prev[oi]
		} else {
			next[ci] = bones.RefPose(ci)
		}
	}

	b.bones = bones
	b.BoneSpace = next
	b.ComponentSpace = resize(b.ComponentSpace, bones.Num())
	bones.FillComponentSpace(b.BoneSpace, b.ComponentSpace)

	for k := range b.Attributes {
		if bones.CompactIndex(k.Bone) < 0 {
			delete(b.Attributes, k)
		}
	}
}

// CopyFrom copies every element of src into b.
func (b *Buffers) CopyFrom(src *Buffers) {
	b.bones = src.bones
	b.BoneSpace = resize(b.BoneSpace, len(src.BoneSpace))
	copy(b.BoneSpace, src.BoneSpace)
	b.ComponentSpace = resize(b.ComponentSpace, len(src.ComponentSpace))
	copy(b.ComponentSpace, src.ComponentSpace)
	b.Curves = make(CurveSet, len(src.Curves))
	for k, v := range src.Curves {
		b.Curves[k] = v
	}
	b.Attributes = make(AttributeSet, len(src.Attributes))
	for k, v := range src.Attributes {
		b.Attributes[k] = v
	}
	b.Frame = src.Frame
}

// Interpolate sets b to the linear blend of from and to at alpha.
// from and to must be sized for the same container.
func (b *Buffers) Interpolate(from, to *Buffers, alpha float32) {
	n := len(to.BoneSpace)
	b.bones = to.bones
	b.BoneSpace = resize(b.BoneSpace, n)
	b.ComponentSpace = resize(b.ComponentSpace, n)
	for i := 0; i < n; i++ {
		b.BoneSpace[i] = from.BoneSpace[i].Blend(to.BoneSpace[i], alpha)
	}
	to.bones.FillComponentSpace(b.BoneSpace, b.ComponentSpace)

	b.Curves = lerpFloats(from.Curves, to.Curves, alpha)
	b.Attributes = lerpFloats(from.Attributes, to.Attributes, alpha)
	b.Frame = to.Frame
}

// lerpFloats blends keys present in both maps and takes the target value
// for keys only present in to.
func lerpFloats[K comparable](from, to map[K]float32, alpha float32) map[K]float32 {
	out := make(map[K]float32, len(to))
	for k, v := range to {
		if f, ok := from[k]; ok {
			out[k] = f + alpha*(v-f)
		} else {
			out[k] = v
		}
	}
	return out
}

func resize(s []math.Transform, n int) []math.Transform {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]math.Transform, n)
}
