// Package skelmesh drives the per-tick pose pipeline of one skeletal
// mesh: evaluation, update-rate reuse, physics blending and cloth.
package skelmesh

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/skelmesh/internal/config"
	"github.com/Faultbox/skelmesh/internal/engine/anim"
	"github.com/Faultbox/skelmesh/internal/engine/cloth"
	"github.com/Faultbox/skelmesh/internal/engine/physics"
	"github.com/Faultbox/skelmesh/internal/engine/pose"
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/internal/logger"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// ErrStalePose means physics blending was about to read a pose older than
// the last joined evaluation.
var ErrStalePose = errors.New("skelmesh: blend input older than joined evaluation")

// PoseProvider exposes the final pose of a tick.
type PoseProvider interface {
	RequiredBones() *skeleton.BoneContainer
	LiveComponentSpace() []math.Transform
	RootBoneOffset() math.Vec3
}

// PhysicsDriven is implemented by components that blend rigid-body
// results and drive kinematic bodies.
type PhysicsDriven interface {
	SetPhysicsBlendWeight(w float32)
	FlushKinematicUpdates() int
}

// ClothHost is implemented by components that own a cloth pipeline.
type ClothHost interface {
	Cloth() *cloth.Pipeline
}

var (
	_ PoseProvider  = (*Component)(nil)
	_ PhysicsDriven = (*Component)(nil)
	_ ClothHost     = (*Component)(nil)
)

// Dependencies are the external collaborators of a Component. Scene and
// Solver may be nil.
type Dependencies struct {
	Graph     anim.Graph
	PostGraph anim.Graph
	Scene     physics.Scene
	Solver    cloth.Solver
}

// TickInput is what the tick driver knows about one frame.
type TickInput struct {
	Frame        uint64
	DeltaSeconds float64
	Visible      bool
	LOD          int
	// Root is the component's world transform.
	Root math.Transform
	// ForceRefresh demands a full evaluation this tick.
	ForceRefresh bool
	// Paused reuses the last pose.
	Paused bool
	// Teleport applies to kinematic pushes and to cloth.
	Teleport        physics.TeleportType
	DeferralAllowed bool
}

// TickResult describes what a tick did.
type TickResult struct {
	Frame    uint64
	Strategy pose.Strategy
	Alpha    float32
	// Evaluated is set when an evaluation was committed this tick.
	Evaluated bool
	// Resynced is set when a stale evaluation was dropped and redone
	// synchronously for new required bones.
	Resynced bool
	// EvaluationFailure wraps anim.ErrEvaluationFailed when the reference
	// pose was substituted.
	EvaluationFailure error
	BlendedBones      int
	KinematicUpdates  int
	// ComponentSpace is the final pose. It is valid until the next tick.
	ComponentSpace []math.Transform
}

// Component owns the pose pipeline of one skeletal mesh instance. It is
// driven from a single goroutine.
type Component struct {
	cfg  *config.Config
	mesh *anim.Mesh

	graph     anim.Graph
	postGraph anim.Graph
	scene     physics.Scene

	cache     *pose.Cache
	scheduler *anim.Scheduler
	blender   *physics.Blender
	cloth     *cloth.Pipeline

	// final holds live plus physics blending.
	final *pose.Buffers
	ref   *pose.Buffers

	in         TickInput
	decision   pose.Decision
	pending    *anim.EvaluationContext
	sinceEval  float64
	lastJoined uint64

	finalized []func(*TickResult) error

	log *zap.Logger
}

// New creates a component for mesh evaluating the given required bones.
func New(mesh *anim.Mesh, bones *skeleton.BoneContainer, cfg *config.Config, deps Dependencies) *Component {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Component{
		cfg:       cfg,
		mesh:      mesh,
		graph:     deps.Graph,
		postGraph: deps.PostGraph,
		scene:     deps.Scene,
		cache:     pose.NewCache(bones),
		scheduler: anim.NewScheduler(anim.Options{
			Parallel:                cfg.Animation.Parallel,
			PostProcessLODThreshold: cfg.Animation.PostProcessLODThreshold,
		}),
		blender: physics.NewBlender(physics.Options{
			BlendWeight:                  cfg.Physics.BlendWeight,
			AllowDeferredKinematicUpdate: cfg.Physics.AllowDeferredKinematicUpdate,
			DeferKinematicUpdate:         cfg.Physics.DeferKinematicUpdate,
		}),
		final: pose.NewBuffers(bones),
		ref:   pose.NewBuffers(bones),
		log:   logger.Named("skelmesh"),
	}
	if mesh != nil {
		c.log = c.log.With(zap.String("mesh", mesh.Name))
	}
	if deps.Solver != nil {
		c.cloth = cloth.NewPipeline(deps.Solver, cloth.Options{
			WaitForCompletion:         cfg.Cloth.WaitForCompletion,
			TeleportDistanceThreshold: cfg.Cloth.TeleportDistanceThreshold,
			TeleportRotationThreshold: cfg.Cloth.TeleportRotationThreshold,
			Parallel:                  cfg.Cloth.Parallel,
			StrictContracts:           cfg.Debug.StrictContracts,
		})
	}
	c.cache.SetForceRefPose(cfg.Animation.ForceRefPose)
	return c
}

// SetGraph replaces the animation graph from the next evaluation on.
func (c *Component) SetGraph(g anim.Graph) {
	c.graph = g
}

// SetPostProcessGraph replaces the post-process graph from the next
// evaluation on.
func (c *Component) SetPostProcessGraph(g anim.Graph) {
	c.postGraph = g
}

// SetRequiredBones switches the required bones. An evaluation still
// outstanding for the old list is redone when it is joined.
func (c *Component) SetRequiredBones(bones *skeleton.BoneContainer) {
	c.cache.SetRequiredBones(bones)
}

// RequiredBones returns the current required-bones container.
func (c *Component) RequiredBones() *skeleton.BoneContainer {
	return c.cache.Bones()
}

// SetForceRefPose pins or releases the reference pose.
func (c *Component) SetForceRefPose(v bool) {
	c.cache.SetForceRefPose(v)
}

// SetPhysicsBlendWeight changes the global physics blend weight.
func (c *Component) SetPhysicsBlendWeight(w float32) {
	c.blender.SetBlendWeight(w)
}

// Cloth returns the cloth pipeline, or nil without a solver.
func (c *Component) Cloth() *cloth.Pipeline {
	return c.cloth
}

// LiveComponentSpace returns the final component-space pose of the last
// tick.
func (c *Component) LiveComponentSpace() []math.Transform {
	return c.final.ComponentSpace
}

// SkinningMatrices appends one matrix per required bone to dst[:0]. Each
// maps the bone's reference component-space pose onto its final pose,
// in the column-major layout render submission uploads.
func (c *Component) SkinningMatrices(dst []math.Mat4) []math.Mat4 {
	bones := c.final.Bones()
	if !c.ref.Matches(bones) {
		c.ref.Reset(bones)
	}
	dst = dst[:0]
	for i, tr := range c.final.ComponentSpace {
		invBind := math.TransformIdentity().RelativeTo(c.ref.ComponentSpace[i])
		dst = append(dst, tr.ToMat4().Mul(invBind.ToMat4()))
	}
	return dst
}

// RootBoneOffset returns the live root translation relative to the
// reference pose.
func (c *Component) RootBoneOffset() math.Vec3 {
	return c.cache.RootBoneOffset()
}

// Outstanding reports whether an evaluation is in flight.
func (c *Component) Outstanding() bool {
	return c.pending != nil
}

// OnEvaluationComplete registers fn to run each time an evaluation is
// joined.
func (c *Component) OnEvaluationComplete(fn func(*anim.EvaluationContext)) {
	c.scheduler.OnEvaluationComplete(fn)
}

// OnBoneTransformsFinalized registers fn to run at the end of every tick.
// Errors from observers are returned by EndTick.
func (c *Component) OnBoneTransformsFinalized(fn func(*TickResult) error) {
	c.finalized = append(c.finalized, fn)
}

// OnTeleport registers fn to run when cloth consumes a teleport.
func (c *Component) OnTeleport(fn func(frame uint64, mode cloth.TeleportMode)) {
	if c.cloth != nil {
		c.cloth.OnTeleport(fn)
	}
}

// FlushKinematicUpdates applies deferred kinematic targets. Call it right
// before the physics step.
func (c *Component) FlushKinematicUpdates() int {
	if c.scene == nil {
		return 0
	}
	return c.blender.FlushDeferred(c.scene)
}

// Tick runs a whole frame: BeginTick, deferred kinematic flush, the
// caller's physics step, EndTick.
func (c *Component) Tick(in TickInput, step func()) (*TickResult, error) {
	c.BeginTick(in)
	c.FlushKinematicUpdates()
	if step != nil {
		step()
	}
	return c.EndTick()
}

// BeginTick decides how this frame's pose is produced and, if it needs
// evaluating, dispatches the evaluation.
func (c *Component) BeginTick(in TickInput) {
	if c.pending != nil {
		// BeginTick without EndTick. Fold the old evaluation in first so
		// the target buffers return to the cache.
		c.log.Debug("tick began with evaluation outstanding", zap.Uint64("frame", in.Frame))
		ctx := c.scheduler.Join()
		c.pending = nil
		if _, err := c.commit(ctx); err != nil {
			c.log.Warn("dropping outstanding evaluation", zap.Error(err))
		}
	}

	c.in = in
	c.sinceEval += in.DeltaSeconds

	interval := c.cfg.Animation.UpdateRateInterval.Seconds()
	budget := pose.UpdateRateBudget{
		Interval:     interval,
		Interpolate:  c.cfg.Animation.Interpolate,
		ForceRefresh: in.ForceRefresh,
		Disabled:     in.Paused,
	}
	c.decision = c.cache.DecideTickStrategy(c.sinceEval, budget, in.Visible)

	if c.decision.Strategy != pose.FullEvaluate {
		c.cache.Apply(c.decision)
		return
	}

	// Only a refresh that the interval made due blends in.
	due := interval > 0 && !c.decision.Forced
	c.sinceEval = 0
	ctx := c.newContext(in.Frame, in.DeltaSeconds, in.LOD)
	ctx.DoInterpolation = budget.Interpolate && due
	ctx.DuplicateToCacheBones = interval > 0 && !ctx.DoInterpolation
	ctx.DuplicateToCacheCurves = ctx.DuplicateToCacheBones
	c.scheduler.RequestEvaluation(ctx)
	c.pending = ctx
}

// EndTick joins the evaluation, blends physics, pushes kinematic targets
// and schedules cloth. The physics step for the frame must have run.
func (c *Component) EndTick() (*TickResult, error) {
	res := &TickResult{
		Frame:    c.in.Frame,
		Strategy: c.decision.Strategy,
		Alpha:    c.decision.Alpha,
	}

	if c.pending != nil {
		ctx := c.scheduler.Join()
		c.pending = nil
		resynced, err := c.commit(ctx)
		if err != nil {
			return res, err
		}
		res.Evaluated = true
		res.Resynced = resynced != nil
		if resynced != nil {
			ctx = resynced
		}
		res.EvaluationFailure = ctx.Failure
	}

	live := c.cache.Live()
	if live.Frame < c.lastJoined {
		err := fmt.Errorf("%w: pose frame %d, joined frame %d", ErrStalePose, live.Frame, c.lastJoined)
		if c.cfg.Debug.StrictContracts {
			panic(err)
		}
		return res, err
	}

	c.final.CopyFrom(live)
	bones := c.cache.Bones()
	if c.scene != nil {
		res.BlendedBones = c.blender.BlendInto(c.final, c.scene.BodyStates())
		res.KinematicUpdates = c.blender.PushKinematicTargets(
			c.scene, bones, c.final.ComponentSpace, c.in.Teleport, c.in.DeferralAllowed)
	}
	res.ComponentSpace = c.final.ComponentSpace

	var errs error
	if c.cloth != nil {
		c.cloth.ForceTeleport(clothTeleport(c.in.Teleport))
		errs = multierr.Append(errs, c.cloth.UpdateClothStateAndSimulate(cloth.SimulateInput{
			Frame:        c.in.Frame,
			DeltaSeconds: c.in.DeltaSeconds,
			Bones:        bones,
			Pose:         c.final.ComponentSpace,
			Root:         c.in.Root,
		}))
	}

	for _, fn := range c.finalized {
		errs = multierr.Append(errs, fn(res))
	}
	return res, errs
}

// commit folds a joined evaluation into the cache. When the required
// bones changed while it ran, the result is dropped and the pose is
// evaluated again synchronously; that context is returned.
func (c *Component) commit(ctx *anim.EvaluationContext) (*anim.EvaluationContext, error) {
	c.lastJoined = ctx.Frame
	err := c.cache.Complete(ctx.Target, ctx.CommitOptions())
	if !errors.Is(err, pose.ErrBufferMismatch) {
		return nil, err
	}

	c.log.Info("required bones changed during evaluation, re-evaluating synchronously",
		zap.Uint64("frame", ctx.Frame),
		zap.Int("bones", c.cache.Bones().Num()),
	)
	sync := c.newContext(ctx.Frame, ctx.DeltaSeconds, ctx.LOD)
	sync = c.scheduler.Evaluate(sync)
	if err := c.cache.Complete(sync.Target, sync.CommitOptions()); err != nil {
		return nil, fmt.Errorf("synchronous re-evaluation: %w", err)
	}
	return sync, nil
}

func (c *Component) newContext(frame uint64, dt float64, lod int) *anim.EvaluationContext {
	return &anim.EvaluationContext{
		Frame:        frame,
		DeltaSeconds: dt,
		LOD:          lod,
		Bones:        c.cache.Bones(),
		Target:       c.cache.Acquire(),
		DoEvaluation: true,
		ForceRefPose: c.cache.ForceRefPose(),
		Graph:        c.graph,
		PostGraph:    c.postGraph,
		Mesh:         c.mesh,
	}
}

func clothTeleport(t physics.TeleportType) cloth.TeleportMode {
	switch t {
	case physics.TeleportPhysics:
		return cloth.Teleport
	case physics.ResetPhysics:
		return cloth.TeleportAndReset
	default:
		return cloth.None
	}
}
