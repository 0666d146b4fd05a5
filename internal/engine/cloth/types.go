// Package cloth schedules cloth simulation on the blended pose and
// publishes its results under two read contracts.
package cloth

import (
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// TeleportMode tells the solver how to treat a discontinuous move.
type TeleportMode int

const (
	// None simulates continuously.
	None TeleportMode = iota
	// Teleport re-baselines positions and keeps velocities.
	Teleport
	// TeleportAndReset re-baselines positions and zeroes velocities.
	TeleportAndReset
)

func (m TeleportMode) String() string {
	switch m {
	case None:
		return "none"
	case Teleport:
		return "teleport"
	case TeleportAndReset:
		return "teleport_and_reset"
	default:
		return "unknown"
	}
}

// ThreadPolicy selects the read contract of GetSimulationData.
type ThreadPolicy int

const (
	// GameThread reads without blocking. The caller guarantees the task
	// finished, either through the wait-for-completion setting or an
	// explicit WaitForCompletion this frame.
	GameThread ThreadPolicy = iota
	// AnyThread blocks until the outstanding task finishes.
	AnyThread
)

// SectionID identifies a cloth section of the mesh.
type SectionID int32

// SectionData is the simulated state of one cloth section in component
// space.
type SectionData struct {
	Positions []math.Vec3
	Normals   []math.Vec3
}

// Snapshot is one published simulation frame. It is immutable once
// published; readers must not modify it.
type Snapshot struct {
	Frame    uint64
	Sections map[SectionID]SectionData
	Teleport TeleportMode
}

// Sphere is a collision sphere.
type Sphere struct {
	Center math.Vec3
	Radius float32
}

// CollisionSource is an external body whose shapes collide with cloth,
// e.g. another component's physics asset. Spheres are relative to
// Transform, which is in the same space as the owner's root transform.
type CollisionSource struct {
	ID        string
	Transform math.Transform
	Spheres   []Sphere
}

// StepInput is handed to the solver on the simulation goroutine. The
// solver owns it for the duration of the step.
type StepInput struct {
	Frame        uint64
	DeltaSeconds float64
	Bones        *skeleton.BoneContainer
	// Pose is a private copy of the blended component-space pose.
	Pose     []math.Transform
	Root     math.Transform
	Teleport TeleportMode
	// Collisions are in component space. CollisionsChanged is false when
	// they equal the previous step's.
	Collisions        []Sphere
	CollisionsChanged bool
}

// Solver steps the cloth simulation.
type Solver interface {
	Step(in *StepInput) (map[SectionID]SectionData, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(in *StepInput) (map[SectionID]SectionData, error)

// Step calls f.
func (f SolverFunc) Step(in *StepInput) (map[SectionID]SectionData, error) {
	return f(in)
}
