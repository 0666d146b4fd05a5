// Package anim schedules animation-graph evaluation, optionally on a
// background goroutine, and joins the result before anything reads it.
package anim

import (
	"github.com/Faultbox/skelmesh/internal/engine/pose"
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
)

// Request is what a graph sees during one evaluation.
type Request struct {
	Frame        uint64
	DeltaSeconds float64
	LOD          int
	Bones        *skeleton.BoneContainer
	// Input is the primary graph's result when evaluating a post-process
	// graph, nil otherwise.
	Input *pose.Buffers
	// Output arrives holding the reference pose (or Input's pose for a
	// post-process graph). The graph writes bone-space transforms, curves
	// and attributes; component space is derived afterwards.
	Output *pose.Buffers
}

// Graph produces a bone-space pose. Implementations run on the
// evaluation goroutine and must only touch the request.
type Graph interface {
	Evaluate(req *Request) error
}

// GraphFunc adapts a function to Graph.
type GraphFunc func(req *Request) error

// Evaluate calls f.
func (f GraphFunc) Evaluate(req *Request) error {
	return f(req)
}

// Mesh identifies the skeletal mesh asset being evaluated.
type Mesh struct {
	Name     string
	Skeleton *skeleton.Skeleton
}
