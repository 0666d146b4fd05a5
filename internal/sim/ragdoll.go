package sim

import (
	"sync"

	"github.com/Faultbox/skelmesh/internal/engine/physics"
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/pkg/math"
)

var gravity = math.Vec3{Y: -9.8}

// Ragdoll is a minimal rigid-body scene. Simulated bodies fall onto the
// ground plane; kinematic bodies snap to their targets on Step.
type Ragdoll struct {
	mu       sync.Mutex
	bodies   []physics.BodyState
	velocity map[int]math.Vec3
	targets  map[int]math.Transform
	resets   int
}

// NewRagdoll places a body on every listed bone at its reference pose.
func NewRagdoll(s *skeleton.Skeleton, simulated, kinematic []int, weight float32) *Ragdoll {
	full := skeleton.FullContainer(s)
	bs := make([]math.Transform, full.Num())
	cs := make([]math.Transform, full.Num())
	full.FillRefPose(bs)
	full.FillComponentSpace(bs, cs)

	r := &Ragdoll{
		velocity: make(map[int]math.Vec3),
		targets:  make(map[int]math.Transform),
	}
	for _, b := range simulated {
		r.bodies = append(r.bodies, physics.BodyState{Bone: b, Transform: cs[b], BlendWeight: weight, Simulated: true, Valid: true})
	}
	for _, b := range kinematic {
		r.bodies = append(r.bodies, physics.BodyState{Bone: b, Transform: cs[b], Valid: true})
	}
	return r
}

// BodyStates implements physics.Scene.
func (r *Ragdoll) BodyStates() []physics.BodyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]physics.BodyState(nil), r.bodies...)
}

// SetKinematicTarget implements physics.Scene.
func (r *Ragdoll) SetKinematicTarget(bone int, target math.Transform, teleport physics.TeleportType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[bone] = target
	if teleport == physics.ResetPhysics {
		clear(r.velocity)
		r.resets++
	}
}

// Resets returns how many velocity resets were requested.
func (r *Ragdoll) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

// Step advances the scene by dt seconds.
func (r *Ragdoll) Step(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := float32(dt)
	for i := range r.bodies {
		b := &r.bodies[i]
		if !b.Simulated {
			if t, ok := r.targets[b.Bone]; ok {
				b.Transform = t
			}
			continue
		}
		v := r.velocity[b.Bone].Add(gravity.Scale(h))
		p := b.Transform.Translation.Add(v.Scale(h))
		if p.Y < 0 {
			p.Y = 0
			v = math.Vec3{}
		}
		b.Transform.Translation = p
		r.velocity[b.Bone] = v
	}
	clear(r.targets)
}
