package physics

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/skelmesh/internal/engine/pose"
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/internal/logger"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// Options configures a Blender.
type Options struct {
	// BlendWeight scales every body's blend weight.
	BlendWeight float32
	// AllowDeferredKinematicUpdate permits callers to defer pushes.
	AllowDeferredKinematicUpdate bool
	// DeferKinematicUpdate queues pushes until FlushDeferred when the
	// caller allows it.
	DeferKinematicUpdate bool
}

type deferredTarget struct {
	target   math.Transform
	teleport TeleportType
}

// Blender merges physics results into animated poses. It is used from
// the game goroutine only.
type Blender struct {
	opts     Options
	deferred map[int]deferredTarget
	log      *zap.Logger
}

// NewBlender creates a Blender.
func NewBlender(opts Options) *Blender {
	return &Blender{
		opts:     opts,
		deferred: make(map[int]deferredTarget),
		log:      logger.Named("physics"),
	}
}

// SetBlendWeight changes the global weight multiplier.
func (b *Blender) SetBlendWeight(w float32) {
	b.opts.BlendWeight = w
}

func (b *Blender) weight(body BodyState) float32 {
	if !body.Valid {
		return 0
	}
	w := body.BlendWeight * b.opts.BlendWeight
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// Blend returns animPose with every valid body blended in by weight.
// Bones without a body, and bodies on bones outside the required list,
// pass the animation through.
func (b *Blender) Blend(bones *skeleton.BoneContainer, animPose []math.Transform, bodies []BodyState) []math.Transform {
	out := make([]math.Transform, len(animPose))
	copy(out, animPose)
	for _, body := range bodies {
		ci := bones.CompactIndex(body.Bone)
		if ci < 0 || ci >= len(out) {
			continue
		}
		out[ci] = blendOne(animPose[ci], body.Transform, b.weight(body))
	}
	return out
}

// BlendInto blends bodies into buf's component space and rewrites the
// bone space of blended bones so both stay paired. Unblended bones keep
// their bone-space transform and follow a blended parent. It returns the
// number of bones that took physics input.
func (b *Blender) BlendInto(buf *pose.Buffers, bodies []BodyState) int {
	bones := buf.Bones()
	n := buf.Num()

	weights := make([]float32, n)
	targets := make([]math.Transform, n)
	active := false
	for _, body := range bodies {
		ci := bones.CompactIndex(body.Bone)
		if ci < 0 || ci >= n {
			continue
		}
		w := b.weight(body)
		weights[ci] = w
		targets[ci] = body.Transform
		if w > 0 {
			active = true
		}
	}
	if !active {
		return 0
	}

	blended := 0
	dirty := make([]bool, n)
	for i := 0; i < n; i++ {
		p := bones.Parent(i)
		parentDirty := p >= 0 && dirty[p]

		if w := weights[i]; w > 0 {
			buf.ComponentSpace[i] = blendOne(buf.ComponentSpace[i], targets[i], w)
			if p >= 0 {
				buf.BoneSpace[i] = buf.ComponentSpace[i].RelativeTo(buf.ComponentSpace[p])
			} else {
				buf.BoneSpace[i] = buf.ComponentSpace[i]
			}
			dirty[i] = true
			blended++
			continue
		}
		if parentDirty {
			buf.ComponentSpace[i] = buf.BoneSpace[i].Compose(buf.ComponentSpace[p])
			dirty[i] = true
		}
	}
	return blended
}

func blendOne(anim, body math.Transform, w float32) math.Transform {
	switch {
	case w <= 0:
		return anim
	case w >= 1:
		return body
	default:
		return anim.Blend(body, w)
	}
}

// PushKinematicTargets sends the pose to every valid kinematic body.
// When deferralAllowed and deferral is configured the targets are queued
// instead; only the last target per body survives until FlushDeferred.
// It returns the number of bodies updated or queued.
func (b *Blender) PushKinematicTargets(scene Scene, bones *skeleton.BoneContainer, componentSpace []math.Transform, teleport TeleportType, deferralAllowed bool) int {
	deferring := deferralAllowed && b.opts.AllowDeferredKinematicUpdate && b.opts.DeferKinematicUpdate

	count := 0
	for _, body := range scene.BodyStates() {
		if !body.Valid || body.Simulated {
			continue
		}
		ci := bones.CompactIndex(body.Bone)
		if ci < 0 || ci >= len(componentSpace) {
			continue
		}
		target := componentSpace[ci]
		count++

		if !deferring {
			scene.SetKinematicTarget(body.Bone, target, teleport)
			continue
		}
		tp := teleport
		if prev, queued := b.deferred[body.Bone]; queued && prev.teleport > tp {
			// A coalesced move keeps the strongest teleport request.
			tp = prev.teleport
		}
		b.deferred[body.Bone] = deferredTarget{target: target, teleport: tp}
	}
	return count
}

// Pending returns the number of queued kinematic updates.
func (b *Blender) Pending() int {
	return len(b.deferred)
}

// FlushDeferred applies queued kinematic targets in bone order and clears
// the queue. Call it right before the physics step.
func (b *Blender) FlushDeferred(scene Scene) int {
	if len(b.deferred) == 0 {
		return 0
	}
	bonesIdx := make([]int, 0, len(b.deferred))
	for bone := range b.deferred {
		bonesIdx = append(bonesIdx, bone)
	}
	sort.Ints(bonesIdx)

	for _, bone := range bonesIdx {
		d := b.deferred[bone]
		scene.SetKinematicTarget(bone, d.target, d.teleport)
	}
	clear(b.deferred)
	b.log.Debug("flushed deferred kinematic updates", zap.Int("bodies", len(bonesIdx)))
	return len(bonesIdx)
}
