package skeleton

import (
	"fmt"
	"sync/atomic"

	"github.com/Faultbox/skelmesh/pkg/math"
)

var containerSerial atomic.Uint64

// BoneContainer is a required-bones list: the subset of a skeleton that
// is evaluated at the current LOD. Pose buffers are indexed by compact
// index, the position of a bone within this list.
type BoneContainer struct {
	skel    *Skeleton
	bones   []int // compact -> skeleton index, ascending
	parents []int // compact -> compact parent, -1 for roots
	compact []int // skeleton -> compact, -1 when not required
	serial  uint64
}

// NewBoneContainer builds a container for the given skeleton bone indices.
// Missing ancestors are added so the list is closed under parents.
func NewBoneContainer(s *Skeleton, required []int) (*BoneContainer, error) {
	include := make([]bool, s.Num())
	for _, b := range required {
		if b < 0 || b >= s.Num() {
			return nil, fmt.Errorf("skeleton: required bone %d out of range [0,%d)", b, s.Num())
		}
		for i := b; i >= 0 && !include[i]; i = s.Parent(i) {
			include[i] = true
		}
	}

	c := &BoneContainer{
		skel:    s,
		compact: make([]int, s.Num()),
		serial:  containerSerial.Add(1),
	}
	for i := range c.compact {
		c.compact[i] = -1
	}
	for i, in := range include {
		if in {
			c.compact[i] = len(c.bones)
			c.bones = append(c.bones, i)
		}
	}

	c.parents = make([]int, len(c.bones))
	for ci, si := range c.bones {
		p := s.Parent(si)
		if p < 0 {
			c.parents[ci] = -1
			continue
		}
		c.parents[ci] = c.compact[p]
	}
	return c, nil
}

// FullContainer requires every bone of the skeleton.
func FullContainer(s *Skeleton) *BoneContainer {
	all := make([]int, s.Num())
	for i := range all {
		all[i] = i
	}
	c, err := NewBoneContainer(s, all)
	if err != nil {
		panic(err)
	}
	return c
}

// Skeleton returns the skeleton the container indexes into.
func (c *BoneContainer) Skeleton() *Skeleton {
	return c.skel
}

// Num returns the required-bones count.
func (c *BoneContainer) Num() int {
	return len(c.bones)
}

// Serial identifies this container. Every NewBoneContainer call yields a
// new serial, so buffers sized for one container can detect a swap.
func (c *BoneContainer) Serial() uint64 {
	return c.serial
}

// SkeletonIndex maps a compact index to its skeleton bone index.
func (c *BoneContainer) SkeletonIndex(compact int) int {
	return c.bones[compact]
}

// CompactIndex maps a skeleton bone index to its compact index, or -1
// when the bone is not required.
func (c *BoneContainer) CompactIndex(bone int) int {
	if bone < 0 || bone >= len(c.compact) {
		return -1
	}
	return c.compact[bone]
}

// Parent returns the compact parent index of a compact bone, -1 for roots.
func (c *BoneContainer) Parent(compact int) int {
	return c.parents[compact]
}

// RefPose returns the bone-space reference transform of a compact bone.
func (c *BoneContainer) RefPose(compact int) math.Transform {
	return c.skel.bones[c.bones[compact]].RefPose
}

// FillRefPose writes the reference pose into a bone-space buffer.
func (c *BoneContainer) FillRefPose(boneSpace []math.Transform) {
	for i := range c.bones {
		boneSpace[i] = c.RefPose(i)
	}
}

// FillComponentSpace composes bone-space transforms down the hierarchy
// in a single forward pass.
func (c *BoneContainer) FillComponentSpace(boneSpace, componentSpace []math.Transform) {
	for i := range c.bones {
		p := c.parents[i]
		if p < 0 {
			componentSpace[i] = boneSpace[i]
			continue
		}
		componentSpace[i] = boneSpace[i].Compose(componentSpace[p])
	}
}
