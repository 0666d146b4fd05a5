package anim

import (
	"github.com/Faultbox/skelmesh/internal/engine/pose"
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
)

// EvaluationContext bundles everything one evaluation needs. It is built
// per evaluating tick, owned by the evaluation task while dispatched and
// handed back by Join; it must never be shared between tasks.
type EvaluationContext struct {
	Frame        uint64
	DeltaSeconds float64
	LOD          int

	Bones  *skeleton.BoneContainer
	Target *pose.Buffers

	DoEvaluation           bool
	DoInterpolation        bool
	DuplicateToCacheBones  bool
	DuplicateToCacheCurves bool
	ForceRefPose           bool

	Graph     Graph
	PostGraph Graph
	Mesh      *Mesh

	// Failure is set when the graph failed and the reference pose was
	// substituted. It wraps ErrEvaluationFailed.
	Failure error
}

// CommitOptions translates the context flags for pose.Cache.Complete.
func (c *EvaluationContext) CommitOptions() pose.CommitOptions {
	return pose.CommitOptions{
		Interpolate:      c.DoInterpolation,
		DuplicateToCache: c.DuplicateToCacheBones || c.DuplicateToCacheCurves,
	}
}
