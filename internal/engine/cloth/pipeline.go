package cloth

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/internal/engine/task"
	"github.com/Faultbox/skelmesh/internal/logger"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// ErrStaleRead is returned by a GameThread read that is not guaranteed to
// see the current frame's simulation.
var ErrStaleRead = errors.New("cloth: game-thread read without completed simulation")

// Options configures a Pipeline.
type Options struct {
	// WaitForCompletion joins the simulation before
	// UpdateClothStateAndSimulate returns.
	WaitForCompletion bool
	// Teleport thresholds in world units and degrees. Non-positive
	// values disable the check.
	TeleportDistanceThreshold float32
	TeleportRotationThreshold float32
	// Parallel runs the solver on its own goroutine.
	Parallel bool
	// StrictContracts panics on read-contract violations instead of
	// returning ErrStaleRead.
	StrictContracts bool
}

// SimulateInput is the per-frame input of UpdateClothStateAndSimulate.
type SimulateInput struct {
	Frame        uint64
	DeltaSeconds float64
	Bones        *skeleton.BoneContainer
	// Pose is the blended component-space pose. It is copied.
	Pose []math.Transform
	// Root is the component's transform in world space.
	Root math.Transform
}

type trackedSource struct {
	src     CollisionSource
	applied math.Transform
	fresh   bool
}

// Pipeline owns cloth simulation for one component. Everything except
// GetSimulationData(AnyThread) and Outstanding is called from the owning
// goroutine.
type Pipeline struct {
	opts   Options
	solver Solver

	snapshot atomic.Pointer[Snapshot]
	handle   atomic.Pointer[task.Handle[*Snapshot]]
	inFlight atomic.Int32
	frame    uint64
	waited   bool

	pending  TeleportMode
	prevRoot math.Transform
	hasRoot  bool

	suspended bool
	resumed   bool

	sources              map[string]*trackedSource
	collisions           []Sphere
	collisionRoot        math.Transform
	hasCollisionRoot     bool
	sourcesDirty         bool
	forceCollisionUpdate bool

	teleportListeners []func(frame uint64, mode TeleportMode)

	log *zap.Logger
}

// NewPipeline creates a pipeline stepping solver. The first published
// snapshot is empty.
func NewPipeline(solver Solver, opts Options) *Pipeline {
	p := &Pipeline{
		opts:    opts,
		solver:  solver,
		sources: make(map[string]*trackedSource),
		log:     logger.Named("cloth"),
	}
	p.snapshot.Store(&Snapshot{Sections: map[SectionID]SectionData{}})
	return p
}

// SetWaitForCompletion changes the wait policy.
func (p *Pipeline) SetWaitForCompletion(v bool) {
	p.opts.WaitForCompletion = v
}

// OnTeleport registers fn to run when a simulation consumes a teleport.
func (p *Pipeline) OnTeleport(fn func(frame uint64, mode TeleportMode)) {
	p.teleportListeners = append(p.teleportListeners, fn)
}

// Outstanding returns the number of running simulation tasks. It is safe
// to call from any goroutine.
func (p *Pipeline) Outstanding() int {
	return int(p.inFlight.Load())
}

// Suspended reports whether stepping is halted.
func (p *Pipeline) Suspended() bool {
	return p.suspended
}

// ForceTeleport requests mode for the next simulation. The strongest
// request wins.
func (p *Pipeline) ForceTeleport(mode TeleportMode) {
	p.pending = maxMode(p.pending, mode)
}

// ForceCollisionUpdate makes the next simulation re-send collision shapes
// even if no source moved.
func (p *Pipeline) ForceCollisionUpdate() {
	p.forceCollisionUpdate = true
}

// CheckTeleport compares root against the previous frame's root and
// returns the mode the next simulation will use. The previous root is
// updated.
func (p *Pipeline) CheckTeleport(root math.Transform) TeleportMode {
	if p.hasRoot {
		detected := DetectTeleport(p.prevRoot, root,
			p.opts.TeleportDistanceThreshold, p.opts.TeleportRotationThreshold)
		if detected != None {
			p.log.Debug("teleport detected",
				zap.Float32("distance", p.prevRoot.Translation.Distance(root.Translation)),
			)
		}
		p.pending = maxMode(p.pending, detected)
	}
	p.prevRoot = root
	p.hasRoot = true
	return p.pending
}

// Suspend halts stepping. The last snapshot stays readable.
func (p *Pipeline) Suspend() {
	if p.suspended {
		return
	}
	p.WaitForCompletion()
	p.suspended = true
	p.log.Debug("simulation suspended")
}

// Resume restarts stepping. The next simulation teleports.
func (p *Pipeline) Resume() {
	if !p.suspended {
		return
	}
	p.suspended = false
	p.resumed = true
	p.log.Debug("simulation resumed")
}

// AddCollisionSource registers or replaces src.
func (p *Pipeline) AddCollisionSource(src CollisionSource) {
	p.sources[src.ID] = &trackedSource{src: src, fresh: true}
	p.sourcesDirty = true
}

// RemoveCollisionSource unregisters the source with id.
func (p *Pipeline) RemoveCollisionSource(id string) bool {
	if _, ok := p.sources[id]; !ok {
		return false
	}
	delete(p.sources, id)
	p.sourcesDirty = true
	return true
}

// MoveCollisionSource updates the transform of a registered source.
func (p *Pipeline) MoveCollisionSource(id string, t math.Transform) bool {
	ts, ok := p.sources[id]
	if !ok {
		return false
	}
	ts.src.Transform = t
	return true
}

// UpdateClothStateAndSimulate joins any outstanding simulation and starts
// the next one. Nothing is stepped while suspended.
func (p *Pipeline) UpdateClothStateAndSimulate(in SimulateInput) error {
	if in.Bones != nil && len(in.Pose) != in.Bones.Num() {
		return fmt.Errorf("cloth: pose has %d bones, container has %d", len(in.Pose), in.Bones.Num())
	}
	p.join()
	p.frame = in.Frame
	p.waited = false

	p.CheckTeleport(in.Root)
	if p.suspended {
		return nil
	}

	mode := p.pending
	if p.resumed {
		mode = maxMode(mode, Teleport)
	}
	p.pending = None
	p.resumed = false

	step := &StepInput{
		Frame:        in.Frame,
		DeltaSeconds: in.DeltaSeconds,
		Bones:        in.Bones,
		Pose:         append([]math.Transform(nil), in.Pose...),
		Root:         in.Root,
		Teleport:     mode,
	}
	step.Collisions, step.CollisionsChanged = p.updateCollisions(in.Root)

	if mode != None {
		for _, fn := range p.teleportListeners {
			fn(in.Frame, mode)
		}
	}

	if p.opts.Parallel {
		p.handle.Store(task.Go(func() *Snapshot { return p.step(step) }))
	} else {
		// Inline steps have published before Run returns.
		task.Run(func() *Snapshot { return p.step(step) }).Wait()
		p.waited = true
	}

	if p.opts.WaitForCompletion {
		p.WaitForCompletion()
	}
	return nil
}

// WaitForCompletion blocks until the outstanding simulation finishes.
// Afterwards GameThread reads are valid for the rest of the frame.
func (p *Pipeline) WaitForCompletion() {
	p.join()
	p.waited = true
}

// GetSimulationData returns the latest published snapshot. GameThread
// reads never block; if the current frame's task may still be running the
// previous snapshot is returned with ErrStaleRead. AnyThread reads block
// until the task finishes.
func (p *Pipeline) GetSimulationData(policy ThreadPolicy) (*Snapshot, error) {
	if policy == AnyThread {
		if h := p.handle.Load(); h != nil {
			h.Wait()
		}
		return p.snapshot.Load(), nil
	}

	if p.opts.WaitForCompletion || p.waited || p.handle.Load() == nil {
		return p.snapshot.Load(), nil
	}
	if p.opts.StrictContracts {
		panic(fmt.Sprintf("%v (frame %d)", ErrStaleRead, p.frame))
	}
	p.log.Warn("stale cloth read", zap.Uint64("frame", p.frame))
	return p.snapshot.Load(), fmt.Errorf("%w: frame %d", ErrStaleRead, p.frame)
}

func (p *Pipeline) join() {
	if h := p.handle.Swap(nil); h != nil {
		h.Wait()
	}
}

// step is the task body. Solver failures keep the previous snapshot.
func (p *Pipeline) step(in *StepInput) (snap *Snapshot) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("cloth solver panicked", zap.Uint64("frame", in.Frame), zap.Any("panic", r))
			snap = p.snapshot.Load()
		}
	}()

	sections, err := p.solver.Step(in)
	if err != nil {
		p.log.Warn("cloth solver failed, keeping previous state",
			zap.Uint64("frame", in.Frame),
			zap.Error(err),
		)
		return p.snapshot.Load()
	}
	if sections == nil {
		sections = map[SectionID]SectionData{}
	}
	snap = &Snapshot{Frame: in.Frame, Sections: sections, Teleport: in.Teleport}
	p.snapshot.Store(snap)
	return snap
}

// updateCollisions returns the collision spheres in component space and
// whether they changed since the last simulation. Moving the root moves
// every sphere in component space.
func (p *Pipeline) updateCollisions(root math.Transform) ([]Sphere, bool) {
	changed := p.forceCollisionUpdate || p.sourcesDirty
	if len(p.sources) > 0 && (!p.hasCollisionRoot || p.collisionRoot != root) {
		changed = true
	}
	for _, ts := range p.sources {
		if ts.fresh || ts.applied != ts.src.Transform {
			changed = true
		}
	}
	if !changed {
		return p.collisions, false
	}

	ids := make([]string, 0, len(p.sources))
	for id := range p.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	spheres := make([]Sphere, 0, len(p.collisions))
	for _, id := range ids {
		ts := p.sources[id]
		for _, s := range ts.src.Spheres {
			world := ts.src.Transform.TransformPoint(s.Center)
			local := math.TransformFromTranslation(world).RelativeTo(root).Translation
			spheres = append(spheres, Sphere{
				Center: local,
				Radius: s.Radius * ts.src.Transform.Scale.X / nonZero(root.Scale.X),
			})
		}
		ts.applied = ts.src.Transform
		ts.fresh = false
	}

	p.collisions = spheres
	p.collisionRoot = root
	p.hasCollisionRoot = true
	p.sourcesDirty = false
	p.forceCollisionUpdate = false
	return spheres, true
}

func nonZero(v float32) float32 {
	if v == 0 {
		return 1
	}
	return v
}
