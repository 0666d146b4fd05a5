// Package skeleton provides the bone hierarchy and the required-bones
// container that pose buffers are indexed by.
package skeleton

import (
	"errors"
	"fmt"

	"github.com/Faultbox/skelmesh/pkg/math"
)

// ErrInvalidHierarchy is returned when a bone's parent does not precede it.
var ErrInvalidHierarchy = errors.New("skeleton: parent index must precede bone index")

// Bone is a single skeleton joint.
type Bone struct {
	Name string
	// Parent is the parent bone index, or -1 for a root.
	Parent int
	// RefPose is the bind transform relative to the parent.
	RefPose math.Transform
}

// Skeleton is an immutable bone hierarchy. Bones are numbered so every
// parent index is lower than its child's, which lets component space be
// built in one forward pass.
type Skeleton struct {
	bones  []Bone
	byName map[string]int
}

// New validates the hierarchy and builds a Skeleton.
func New(bones []Bone) (*Skeleton, error) {
	if len(bones) == 0 {
		return nil, errors.New("skeleton: no bones")
	}
	s := &Skeleton{
		bones:  make([]Bone, len(bones)),
		byName: make(map[string]int, len(bones)),
	}
	copy(s.bones, bones)

	for i, b := range s.bones {
		if b.Parent < -1 || b.Parent >= i {
			return nil, fmt.Errorf("bone %d (%s) has parent %d: %w", i, b.Name, b.Parent, ErrInvalidHierarchy)
		}
		if b.Name != "" {
			if _, dup := s.byName[b.Name]; dup {
				return nil, fmt.Errorf("skeleton: duplicate bone name %q", b.Name)
			}
			s.byName[b.Name] = i
		}
	}
	return s, nil
}

// Num returns the number of bones.
func (s *Skeleton) Num() int {
	return len(s.bones)
}

// Bone returns bone i.
func (s *Skeleton) Bone(i int) Bone {
	return s.bones[i]
}

// Index looks a bone up by name.
func (s *Skeleton) Index(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Parent returns the parent index of bone i, -1 for roots.
func (s *Skeleton) Parent(i int) int {
	return s.bones[i].Parent
}
