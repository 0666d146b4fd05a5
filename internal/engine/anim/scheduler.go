package anim

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/skelmesh/internal/engine/pose"
	"github.com/Faultbox/skelmesh/internal/engine/task"
	"github.com/Faultbox/skelmesh/internal/logger"
)

// ErrEvaluationFailed marks a tick whose graph failed; the reference pose
// was used instead.
var ErrEvaluationFailed = errors.New("anim: evaluation failed")

// State is the scheduler's position in its dispatch cycle.
type State int

const (
	// Idle has no evaluation outstanding.
	Idle State = iota
	// Dispatched has an evaluation running or queued.
	Dispatched
	// Joining is waiting for the outstanding evaluation to finish.
	Joining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatched:
		return "dispatched"
	case Joining:
		return "joining"
	default:
		return "unknown"
	}
}

// Options configures a Scheduler.
type Options struct {
	// Parallel runs evaluation on its own goroutine. Otherwise the task
	// runs inside RequestEvaluation and Join returns immediately.
	Parallel bool
	// PostProcessLODThreshold is the highest LOD that runs the
	// post-process graph; negative means every LOD.
	PostProcessLODThreshold int
}

// Scheduler runs at most one evaluation at a time. All methods except
// Outstanding must be called from the owning (game) goroutine.
type Scheduler struct {
	opts  Options
	state State

	handle *task.Handle[*EvaluationContext]
	frame  uint64

	// postInput holds the primary result while the post-process graph
	// runs. Only the single in-flight task touches it.
	postInput *pose.Buffers

	inFlight  atomic.Int32
	listeners []func(*EvaluationContext)

	log *zap.Logger
}

// NewScheduler creates an idle scheduler.
func NewScheduler(opts Options) *Scheduler {
	return &Scheduler{
		opts: opts,
		log:  logger.Named("anim"),
	}
}

// State returns the current dispatch state.
func (s *Scheduler) State() State {
	return s.state
}

// Outstanding returns the number of evaluation tasks currently running.
// It is safe to call from any goroutine.
func (s *Scheduler) Outstanding() int {
	return int(s.inFlight.Load())
}

// OnEvaluationComplete registers fn to run on the game goroutine each
// time an evaluation is joined.
func (s *Scheduler) OnEvaluationComplete(fn func(*EvaluationContext)) {
	s.listeners = append(s.listeners, fn)
}

// RequestEvaluation dispatches ctx. If a previous evaluation is still
// outstanding it is joined first and returned so the caller can commit
// or discard it; otherwise the return value is nil.
func (s *Scheduler) RequestEvaluation(ctx *EvaluationContext) *EvaluationContext {
	var drained *EvaluationContext
	if s.state == Dispatched {
		s.log.Debug("evaluation requested while one is outstanding, joining first",
			zap.Uint64("outstanding_frame", s.frame),
			zap.Uint64("frame", ctx.Frame),
		)
		drained = s.Join()
	}

	if s.opts.Parallel {
		s.handle = task.Go(func() *EvaluationContext { return s.run(ctx) })
	} else {
		s.handle = task.Run(func() *EvaluationContext { return s.run(ctx) })
	}
	s.state = Dispatched
	s.frame = ctx.Frame
	return drained
}

// Join blocks until the outstanding evaluation finishes and hands its
// context back. It returns nil when nothing is outstanding.
func (s *Scheduler) Join() *EvaluationContext {
	if s.state != Dispatched {
		return nil
	}
	s.state = Joining
	ctx := s.handle.Wait()
	s.handle = nil
	s.state = Idle

	for _, fn := range s.listeners {
		fn(ctx)
	}
	return ctx
}

// Evaluate runs ctx synchronously on the calling goroutine. The
// scheduler must be idle.
func (s *Scheduler) Evaluate(ctx *EvaluationContext) *EvaluationContext {
	if s.state != Idle {
		panic(fmt.Sprintf("anim: synchronous evaluation while %s", s.state))
	}
	ctx = s.run(ctx)
	for _, fn := range s.listeners {
		fn(ctx)
	}
	return ctx
}

// run is the task body. It never panics: graph failures are replaced by
// the reference pose.
func (s *Scheduler) run(ctx *EvaluationContext) *EvaluationContext {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	out := ctx.Target
	out.Reset(ctx.Bones)
	out.Frame = ctx.Frame
	ctx.Failure = nil

	if ctx.DoEvaluation && !ctx.ForceRefPose && ctx.Graph != nil {
		if err := s.evaluateGraphs(ctx); err != nil {
			ctx.Failure = fmt.Errorf("%w: frame %d: %v", ErrEvaluationFailed, ctx.Frame, err)
			s.log.Warn("animation graph failed, using reference pose",
				zap.Uint64("frame", ctx.Frame),
				zap.String("mesh", meshName(ctx.Mesh)),
				zap.Error(err),
			)
			out.Reset(ctx.Bones)
			out.Frame = ctx.Frame
		}
	}

	ctx.Bones.FillComponentSpace(out.BoneSpace, out.ComponentSpace)
	return ctx
}

func (s *Scheduler) evaluateGraphs(ctx *EvaluationContext) error {
	req := &Request{
		Frame:        ctx.Frame,
		DeltaSeconds: ctx.DeltaSeconds,
		LOD:          ctx.LOD,
		Bones:        ctx.Bones,
		Output:       ctx.Target,
	}
	if err := s.safeEvaluate(ctx.Graph, req); err != nil {
		return fmt.Errorf("primary graph: %w", err)
	}

	if ctx.PostGraph == nil || !s.runPostProcess(ctx.LOD) {
		return nil
	}

	// The post-process graph reads a frozen copy of the primary result
	// and writes into the target in place.
	if s.postInput == nil {
		s.postInput = &pose.Buffers{}
	}
	s.postInput.CopyFrom(ctx.Target)
	ctx.Bones.FillComponentSpace(s.postInput.BoneSpace, s.postInput.ComponentSpace)
	req.Input = s.postInput
	if err := s.safeEvaluate(ctx.PostGraph, req); err != nil {
		return fmt.Errorf("post-process graph: %w", err)
	}
	return nil
}

func (s *Scheduler) runPostProcess(lod int) bool {
	return s.opts.PostProcessLODThreshold < 0 || lod <= s.opts.PostProcessLODThreshold
}

func (s *Scheduler) safeEvaluate(g Graph, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("graph panicked: %v", r)
		}
	}()
	if err := g.Evaluate(req); err != nil {
		return err
	}
	if n := len(req.Output.BoneSpace); n != req.Bones.Num() {
		return fmt.Errorf("graph resized pose to %d bones, want %d", n, req.Bones.Num())
	}
	return nil
}

func meshName(m *Mesh) string {
	if m == nil {
		return ""
	}
	return m.Name
}
