// Package physics blends simulated rigid-body transforms into the
// animated pose and pushes kinematic targets back to the physics scene.
package physics

import (
	"github.com/Faultbox/skelmesh/pkg/math"
)

// TeleportType tells the physics scene how to treat a kinematic move.
type TeleportType int

const (
	// NoTeleport moves the body continuously; velocity is derived.
	NoTeleport TeleportType = iota
	// TeleportPhysics moves the body without deriving velocity.
	TeleportPhysics
	// ResetPhysics moves the body and clears its simulation state.
	ResetPhysics
)

func (t TeleportType) String() string {
	switch t {
	case NoTeleport:
		return "none"
	case TeleportPhysics:
		return "teleport"
	case ResetPhysics:
		return "reset"
	default:
		return "unknown"
	}
}

// BodyState is one rigid body as reported by the physics scene.
// Transforms are in component space.
type BodyState struct {
	// Bone is the skeleton bone index the body drives.
	Bone      int
	Transform math.Transform
	// BlendWeight in [0,1]: 0 keeps the animation, 1 takes the body.
	BlendWeight float32
	// Simulated is false for kinematic bodies that follow animation.
	Simulated bool
	// Valid is false when the body is missing or not yet created.
	Valid bool
}

// Scene is the read/write contract with the physics collaborator.
type Scene interface {
	// BodyStates returns the bodies after the most recent physics step.
	BodyStates() []BodyState
	// SetKinematicTarget moves a kinematic body to a component-space target.
	SetKinematicTarget(bone int, target math.Transform, teleport TeleportType)
}
