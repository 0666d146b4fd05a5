package pose

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/internal/logger"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// ErrBufferMismatch is returned by Complete when the required-bones list
// changed while the evaluation target was lent out. The result is
// discarded and the caller must evaluate again synchronously.
var ErrBufferMismatch = errors.New("pose: required bones changed during evaluation")

// Strategy is how a tick produces its pose.
type Strategy int

const (
	// FullEvaluate runs the animation graph.
	FullEvaluate Strategy = iota
	// Interpolate blends between the previous and the newest evaluated pose.
	Interpolate
	// Reuse keeps the last evaluated pose without computation.
	Reuse
)

func (s Strategy) String() string {
	switch s {
	case FullEvaluate:
		return "full"
	case Interpolate:
		return "interpolate"
	case Reuse:
		return "reuse"
	default:
		return "unknown"
	}
}

// UpdateRateBudget is the update-rate policy for one tick.
type UpdateRateBudget struct {
	// Interval is the time in seconds between full evaluations.
	// Zero or negative evaluates every tick.
	Interval float64
	// Interpolate allows blending on ticks between evaluations.
	Interpolate bool
	// ForceRefresh demands a full evaluation this tick.
	ForceRefresh bool
	// Disabled means animation is paused; the pose is reused.
	Disabled bool
}

// Decision is the outcome of DecideTickStrategy.
type Decision struct {
	Strategy Strategy
	// Alpha is the interpolation factor in [0,1] for Interpolate.
	Alpha float32
	// Forced marks a FullEvaluate that the update-rate interval did not
	// schedule. Its result must go live at once.
	Forced bool
}

// CommitOptions controls how Complete folds an evaluated pose into the cache.
type CommitOptions struct {
	// Interpolate keeps the result as the interpolation target instead of
	// making it live.
	Interpolate bool
	// DuplicateToCache copies the new live pose into the cached buffers so
	// later Reuse ticks can restore it.
	DuplicateToCache bool
}

// Cache owns the live and cached pose buffers of one component.
// It is not safe for concurrent use; the owning tick driver serializes
// access and lends the evaluation target out through Acquire.
type Cache struct {
	bones *skeleton.BoneContainer

	live   *Buffers
	cached *Buffers
	// from is the live pose at the moment the current interpolation
	// target was committed.
	from *Buffers

	evaluated     bool
	cachedValid   bool
	interpolating bool
	bonesDirty    bool

	forceRefPose        bool
	forceRefPoseToggled bool

	lent       bool
	lentSerial uint64

	rootBoneOffset math.Vec3

	log *zap.Logger
}

// NewCache creates a cache sized for the container, holding the
// reference pose.
func NewCache(bones *skeleton.BoneContainer) *Cache {
	return &Cache{
		bones:  bones,
		live:   NewBuffers(bones),
		cached: NewBuffers(bones),
		from:   NewBuffers(bones),
		log:    logger.Named("pose"),
	}
}

// Bones returns the current required-bones container.
func (c *Cache) Bones() *skeleton.BoneContainer {
	return c.bones
}

// Live returns the buffers readers consume this tick.
func (c *Cache) Live() *Buffers {
	return c.live
}

// Cached returns the last fully evaluated buffers, or nil while they are
// lent to an evaluation.
func (c *Cache) Cached() *Buffers {
	return c.cached
}

// Evaluated reports whether a full evaluation has ever completed.
func (c *Cache) Evaluated() bool {
	return c.evaluated
}

// Outstanding reports whether the evaluation target is lent out.
func (c *Cache) Outstanding() bool {
	return c.lent
}

// RootBoneOffset returns the live root translation relative to the
// reference pose.
func (c *Cache) RootBoneOffset() math.Vec3 {
	return c.rootBoneOffset
}

// ForceRefPose reports whether evaluation is pinned to the reference pose.
func (c *Cache) ForceRefPose() bool {
	return c.forceRefPose
}

// SetForceRefPose pins or releases the reference pose. A change forces
// the next tick to evaluate fully.
func (c *Cache) SetForceRefPose(v bool) {
	if c.forceRefPose != v {
		c.forceRefPose = v
		c.forceRefPoseToggled = true
	}
}

// SetRequiredBones switches to a new required-bones list. Buffers owned
// by the cache are rebound immediately so the live pose always matches
// the list; a lent target is left alone and rejected by Complete.
func (c *Cache) SetRequiredBones(bones *skeleton.BoneContainer) {
	if bones.Serial() == c.bones.Serial() {
		return
	}
	c.log.Debug("required bones changed",
		zap.Int("from", c.bones.Num()),
		zap.Int("to", bones.Num()),
		zap.Bool("outstanding", c.lent),
	)
	c.bones = bones
	c.bonesDirty = true
	c.interpolating = false

	c.live.Rebind(bones)
	c.from.Rebind(bones)
	if c.cached != nil {
		c.cached.Rebind(bones)
	}
	c.updateRootBoneOffset()
}

// DecideTickStrategy picks the cheapest correct way to produce this
// tick's pose.
func (c *Cache) DecideTickStrategy(timeSinceLastFullEval float64, budget UpdateRateBudget, isVisible bool) Decision {
	if !c.evaluated || c.forceRefPoseToggled || c.bonesDirty || !c.live.Matches(c.bones) {
		return Decision{Strategy: FullEvaluate, Alpha: 1, Forced: true}
	}
	if !isVisible || budget.Disabled {
		return Decision{Strategy: Reuse}
	}
	if budget.ForceRefresh || budget.Interval <= 0 {
		return Decision{Strategy: FullEvaluate, Alpha: 1, Forced: true}
	}
	if timeSinceLastFullEval >= budget.Interval {
		return Decision{Strategy: FullEvaluate, Alpha: 1}
	}
	if budget.Interpolate && c.interpolating && c.cached != nil {
		alpha := float32(timeSinceLastFullEval / budget.Interval)
		return Decision{Strategy: Interpolate, Alpha: clamp01(alpha)}
	}
	return Decision{Strategy: Reuse}
}

// Apply carries out an Interpolate or Reuse decision on the live
// buffers. FullEvaluate decisions are a no-op here; they complete
// through Acquire and Complete.
func (c *Cache) Apply(d Decision) {
	switch d.Strategy {
	case Interpolate:
		if c.interpolating && c.cached != nil {
			c.live.Interpolate(c.from, c.cached, d.Alpha)
			c.updateRootBoneOffset()
			return
		}
		c.reuse()
	case Reuse:
		c.reuse()
	}
}

func (c *Cache) reuse() {
	if c.cachedValid && c.cached != nil {
		c.live.CopyFrom(c.cached)
		c.updateRootBoneOffset()
	}
	// Otherwise live already holds the last full result.
}

// Swap exchanges the live and cached buffers without copying. It does
// nothing while the cached buffers are lent out.
func (c *Cache) Swap() {
	if c.cached == nil {
		return
	}
	c.live, c.cached = c.cached, c.live
}

// Acquire lends the cached buffers out as the evaluation target, sized
// for the current required bones. Ownership returns with Complete.
func (c *Cache) Acquire() *Buffers {
	target := c.cached
	c.cached = nil
	if target == nil {
		target = NewBuffers(c.bones)
	} else if !target.Matches(c.bones) {
		target.Reset(c.bones)
	}
	c.cachedValid = false
	c.lent = true
	c.lentSerial = c.bones.Serial()
	return target
}

// Complete takes an evaluated target back. When the required bones
// changed since Acquire the result is dropped, the buffers are resized
// and kept for reuse, and ErrBufferMismatch is returned.
func (c *Cache) Complete(target *Buffers, opts CommitOptions) error {
	c.lent = false

	if c.lentSerial != c.bones.Serial() || !target.Matches(c.bones) {
		c.log.Warn("dropping evaluation for stale required bones",
			zap.Int("result_bones", target.Num()),
			zap.Int("required_bones", c.bones.Num()),
		)
		target.Reset(c.bones)
		c.cached = target
		return ErrBufferMismatch
	}

	c.cached = target

	if opts.Interpolate && c.evaluated && !c.bonesDirty && !c.forceRefPoseToggled {
		// Interpolation restarts from the pose currently on screen.
		c.from.CopyFrom(c.live)
		// Live is now the alpha=0 blend toward this result.
		c.live.Frame = target.Frame
		c.interpolating = true
		c.cachedValid = true
	} else {
		c.Swap()
		c.interpolating = false
		c.cachedValid = opts.DuplicateToCache
		if opts.DuplicateToCache {
			c.cached.CopyFrom(c.live)
		}
		c.updateRootBoneOffset()
	}

	c.evaluated = true
	c.bonesDirty = false
	c.forceRefPoseToggled = false
	return nil
}

func (c *Cache) updateRootBoneOffset() {
	if c.live.Num() == 0 {
		c.rootBoneOffset = math.Vec3{}
		return
	}
	ref := c.bones.RefPose(0).Translation
	c.rootBoneOffset = c.live.ComponentSpace[0].Translation.Sub(ref)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
