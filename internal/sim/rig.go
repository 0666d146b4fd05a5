package sim

import (
	gomath "math"

	"github.com/Faultbox/skelmesh/internal/engine/anim"
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// Humanoid bone indices.
const (
	Pelvis = iota
	Spine
	Neck
	Head
	UpperArmL
	LowerArmL
	UpperArmR
	LowerArmR
	ThighL
	CalfL
	ThighR
	CalfR
)

func at(x, y, z float32) math.Transform {
	return math.TransformFromTranslation(math.Vec3{X: x, Y: y, Z: z})
}

// Humanoid builds a twelve-bone biped standing on the origin.
func Humanoid() (*skeleton.Skeleton, error) {
	return skeleton.New([]skeleton.Bone{
		{Name: "pelvis", Parent: -1, RefPose: at(0, 1, 0)},
		{Name: "spine", Parent: Pelvis, RefPose: at(0, 0.2, 0)},
		{Name: "neck", Parent: Spine, RefPose: at(0, 0.4, 0)},
		{Name: "head", Parent: Neck, RefPose: at(0, 0.15, 0)},
		{Name: "upperarm_l", Parent: Spine, RefPose: at(0.2, 0.35, 0)},
		{Name: "lowerarm_l", Parent: UpperArmL, RefPose: at(0.3, 0, 0)},
		{Name: "upperarm_r", Parent: Spine, RefPose: at(-0.2, 0.35, 0)},
		{Name: "lowerarm_r", Parent: UpperArmR, RefPose: at(-0.3, 0, 0)},
		{Name: "thigh_l", Parent: Pelvis, RefPose: at(0.1, -0.05, 0)},
		{Name: "calf_l", Parent: ThighL, RefPose: at(0, -0.45, 0)},
		{Name: "thigh_r", Parent: Pelvis, RefPose: at(-0.1, -0.05, 0)},
		{Name: "calf_r", Parent: ThighR, RefPose: at(0, -0.45, 0)},
	})
}

// LODs returns the required bones per level of detail. LOD 1 drops the
// forearms and calves; LOD 2 keeps the torso and head.
func LODs(s *skeleton.Skeleton) ([]*skeleton.BoneContainer, error) {
	lod1, err := skeleton.NewBoneContainer(s, []int{Head, UpperArmL, UpperArmR, ThighL, ThighR})
	if err != nil {
		return nil, err
	}
	lod2, err := skeleton.NewBoneContainer(s, []int{Head})
	if err != nil {
		return nil, err
	}
	return []*skeleton.BoneContainer{skeleton.FullContainer(s), lod1, lod2}, nil
}

// WaveClip bends the right forearm back and forth once a second.
func WaveClip() *anim.Clip {
	up := math.Vec3{Z: 1}
	return &anim.Clip{
		Name:   "wave",
		Length: 1,
		Tracks: []anim.Track{{
			Bone: LowerArmR,
			Rotation: []anim.Key[math.Quat]{
				{Time: 0, Value: math.QuatFromAxisAngle(up, 0.2)},
				{Time: 0.5, Value: math.QuatFromAxisAngle(up, 1.2)},
				{Time: 1, Value: math.QuatFromAxisAngle(up, 0.2)},
			},
		}},
		Curves: map[string][]anim.Key[float32]{
			"wave": {{Time: 0, Value: 0}, {Time: 0.5, Value: 1}, {Time: 1, Value: 0}},
		},
	}
}

// WalkGraph swings legs and arms in a sine walk cycle on top of an
// optional keyframed overlay.
type WalkGraph struct {
	// Cadence is strides per second.
	Cadence float64
	Overlay *anim.Clip
}

// Evaluate implements anim.Graph.
func (g WalkGraph) Evaluate(req *anim.Request) error {
	if g.Overlay != nil {
		if err := g.Overlay.Evaluate(req); err != nil {
			return err
		}
	}
	t := float64(req.Frame) * req.DeltaSeconds
	phase := float32(gomath.Sin(2 * gomath.Pi * g.Cadence * t))

	right := math.Vec3{X: 1}
	forward := math.Vec3{Z: 1}
	rotate := func(bone int, axis math.Vec3, angle float32) {
		ci := req.Bones.CompactIndex(bone)
		if ci < 0 {
			return
		}
		req.Output.BoneSpace[ci].Rotation = math.QuatFromAxisAngle(axis, angle)
	}
	rotate(ThighL, right, 0.5*phase)
	rotate(ThighR, right, -0.5*phase)
	rotate(CalfL, right, 0.4*max(0, -phase))
	rotate(CalfR, right, 0.4*max(0, phase))
	rotate(UpperArmL, right, -0.4*phase)
	rotate(UpperArmR, right, 0.4*phase)
	rotate(Spine, forward, 0.1*phase)

	req.Output.BoneSpace[0].Translation.Y += 0.03 * absf(phase)
	req.Output.Curves["stride"] = phase
	return nil
}

// HeadStabilizer is a post-process graph that keeps the head level with
// the ground regardless of the torso.
type HeadStabilizer struct{}

// Evaluate implements anim.Graph.
func (HeadStabilizer) Evaluate(req *anim.Request) error {
	head := req.Bones.CompactIndex(Head)
	neck := req.Bones.CompactIndex(Neck)
	if head < 0 || neck < 0 || req.Input == nil {
		return nil
	}
	req.Output.BoneSpace[head].Rotation = req.Input.ComponentSpace[neck].Rotation.Conjugate()
	return nil
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
