package skeleton

import (
	"errors"
	"testing"

	"github.com/Faultbox/skelmesh/pkg/math"
)

// chain builds root -> child -> grandchild with unit X offsets.
func chain(t *testing.T) *Skeleton {
	t.Helper()
	s, err := New([]Bone{
		{Name: "root", Parent: -1, RefPose: math.TransformIdentity()},
		{Name: "child", Parent: 0, RefPose: math.TransformFromTranslation(math.Vec3{X: 1})},
		{Name: "grandchild", Parent: 1, RefPose: math.TransformFromTranslation(math.Vec3{X: 1})},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsForwardParent(t *testing.T) {
	_, err := New([]Bone{
		{Name: "a", Parent: 1},
		{Name: "b", Parent: -1},
	})
	if !errors.Is(err, ErrInvalidHierarchy) {
		t.Errorf("expected ErrInvalidHierarchy, got %v", err)
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]Bone{
		{Name: "a", Parent: -1},
		{Name: "a", Parent: 0},
	})
	if err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestIndex(t *testing.T) {
	s := chain(t)
	if i, ok := s.Index("grandchild"); !ok || i != 2 {
		t.Errorf("Index(grandchild) = %d, %v", i, ok)
	}
	if _, ok := s.Index("missing"); ok {
		t.Error("Index(missing) should fail")
	}
}

func TestContainerAddsAncestors(t *testing.T) {
	s := chain(t)
	c, err := NewBoneContainer(s, []int{2})
	if err != nil {
		t.Fatalf("NewBoneContainer: %v", err)
	}
	if c.Num() != 3 {
		t.Fatalf("expected ancestors to be pulled in, got %d bones", c.Num())
	}
	for ci := 0; ci < c.Num(); ci++ {
		if p := c.Parent(ci); p >= ci {
			t.Errorf("compact bone %d has parent %d, want < %d", ci, p, ci)
		}
	}
}

func TestContainerCompactIndexing(t *testing.T) {
	s, err := New([]Bone{
		{Name: "root", Parent: -1, RefPose: math.TransformIdentity()},
		{Name: "spine", Parent: 0, RefPose: math.TransformIdentity()},
		{Name: "finger", Parent: 1, RefPose: math.TransformIdentity()},
		{Name: "head", Parent: 1, RefPose: math.TransformIdentity()},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// LOD drops the finger
	c, err := NewBoneContainer(s, []int{0, 1, 3})
	if err != nil {
		t.Fatalf("NewBoneContainer: %v", err)
	}
	if c.Num() != 3 {
		t.Fatalf("expected 3 required bones, got %d", c.Num())
	}
	if c.CompactIndex(2) != -1 {
		t.Errorf("finger should not be required, got compact %d", c.CompactIndex(2))
	}
	if c.CompactIndex(3) != 2 || c.SkeletonIndex(2) != 3 {
		t.Errorf("head mapping wrong: compact %d, skeleton %d", c.CompactIndex(3), c.SkeletonIndex(2))
	}
	if c.Parent(2) != 1 {
		t.Errorf("head compact parent = %d, want 1", c.Parent(2))
	}
}

func TestContainerOutOfRange(t *testing.T) {
	if _, err := NewBoneContainer(chain(t), []int{5}); err == nil {
		t.Error("expected out of range error")
	}
}

func TestContainerSerialsDiffer(t *testing.T) {
	s := chain(t)
	a := FullContainer(s)
	b := FullContainer(s)
	if a.Serial() == b.Serial() {
		t.Error("each container should get its own serial")
	}
}

func TestFillComponentSpace(t *testing.T) {
	c := FullContainer(chain(t))
	bs := make([]math.Transform, c.Num())
	cs := make([]math.Transform, c.Num())
	c.FillRefPose(bs)
	c.FillComponentSpace(bs, cs)

	want := math.Vec3{X: 2}
	if !cs[2].Translation.NearlyEqual(want, 0.0001) {
		t.Errorf("grandchild component translation = %v, want %v", cs[2].Translation, want)
	}
}
