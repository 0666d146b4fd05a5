// Package sim runs a headless walk-cycle scenario through the pose
// pipeline: a procedural biped with a ragdoll arm and a cloth cape.
package sim

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/skelmesh/internal/config"
	"github.com/Faultbox/skelmesh/internal/engine/anim"
	"github.com/Faultbox/skelmesh/internal/engine/cloth"
	"github.com/Faultbox/skelmesh/internal/engine/physics"
	"github.com/Faultbox/skelmesh/internal/engine/pose"
	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/internal/engine/skelmesh"
	"github.com/Faultbox/skelmesh/internal/logger"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// Options describes the scenario.
type Options struct {
	Frames       int
	DeltaSeconds float64
	// WalkSpeed is the root speed in units per second along X.
	WalkSpeed float32
	// LODEvery cycles the level of detail every n frames; 0 disables.
	LODEvery int
	// HideEvery hides the mesh for one in four windows of n frames.
	HideEvery int
	// TeleportAt jumps the root by TeleportDistance on that frame.
	TeleportAt       int
	TeleportDistance float32
	// ResetAt requests a physics reset on that frame.
	ResetAt int
}

// DefaultOptions returns a ten-second scenario at 60 Hz.
func DefaultOptions() Options {
	return Options{
		Frames:           600,
		DeltaSeconds:     1.0 / 60,
		WalkSpeed:        1.5,
		LODEvery:         120,
		HideEvery:        45,
		TeleportAt:       300,
		TeleportDistance: 500,
		ResetAt:          450,
	}
}

// BonePose is one bone of the dumped final pose.
type BonePose struct {
	Name        string      `yaml:"name"`
	Translation [3]float32  `yaml:"translation,flow"`
	Rotation    [4]float32  `yaml:"rotation,flow"`
	Skinning    [16]float32 `yaml:"skinning,flow"`
}

// Report summarizes a run.
type Report struct {
	Frames       int          `yaml:"frames"`
	Evaluations  int          `yaml:"evaluations"`
	Interpolated int          `yaml:"interpolated"`
	Reused       int          `yaml:"reused"`
	Resynced     int          `yaml:"resynced"`
	Failures     int          `yaml:"failures"`
	Teleports    int          `yaml:"teleports"`
	StaleReads   int          `yaml:"stale_reads"`
	FinalPose    []BonePose   `yaml:"final_pose"`
	Cape         [][3]float32 `yaml:"cape,flow"`
}

// Sim owns one component and its collaborators.
type Sim struct {
	opts Options
	cfg  *config.Config

	skel    *skeleton.Skeleton
	lods    []*skeleton.BoneContainer
	comp    *skelmesh.Component
	ragdoll *Ragdoll
	cape    *Cape

	report Report
	log    *zap.Logger
}

// New builds the scenario.
func New(cfg *config.Config, opts Options) (*Sim, error) {
	if opts.Frames <= 0 || opts.DeltaSeconds <= 0 {
		return nil, fmt.Errorf("sim: frames and delta must be positive, got %d and %v", opts.Frames, opts.DeltaSeconds)
	}
	skel, err := Humanoid()
	if err != nil {
		return nil, fmt.Errorf("building skeleton: %w", err)
	}
	lods, err := LODs(skel)
	if err != nil {
		return nil, fmt.Errorf("building LODs: %w", err)
	}

	wave := WaveClip()
	if err := wave.Validate(); err != nil {
		return nil, err
	}

	s := &Sim{
		opts:    opts,
		cfg:     cfg,
		skel:    skel,
		lods:    lods,
		ragdoll: NewRagdoll(skel, []int{LowerArmL}, []int{Pelvis, Spine}, 0.8),
		cape:    NewCape(Spine, 8, 0.1),
		log:     logger.Named("sim"),
	}
	s.comp = skelmesh.New(&anim.Mesh{Name: "biped", Skeleton: skel}, lods[0], cfg, skelmesh.Dependencies{
		Graph:     WalkGraph{Cadence: 1.2, Overlay: wave},
		PostGraph: HeadStabilizer{},
		Scene:     s.ragdoll,
		Solver:    s.cape,
	})
	s.comp.OnTeleport(func(frame uint64, mode cloth.TeleportMode) {
		s.report.Teleports++
		s.log.Debug("cloth teleport", zap.Uint64("frame", frame), zap.Stringer("mode", mode))
	})
	s.comp.OnBoneTransformsFinalized(s.record)

	s.comp.Cloth().AddCollisionSource(cloth.CollisionSource{
		ID:        "post",
		Transform: math.TransformFromTranslation(math.Vec3{X: 3, Y: 1, Z: -0.3}),
		Spheres:   []cloth.Sphere{{Radius: 0.25}},
	})
	return s, nil
}

// Component returns the simulated component.
func (s *Sim) Component() *skelmesh.Component {
	return s.comp
}

// Ragdoll returns the physics scene.
func (s *Sim) Ragdoll() *Ragdoll {
	return s.ragdoll
}

// Run ticks the whole scenario and returns its report.
func (s *Sim) Run() (*Report, error) {
	start := time.Now()
	statsTimer := start
	lod := 0
	root := math.TransformIdentity()

	s.log.Info("starting simulation",
		zap.Int("frames", s.opts.Frames),
		zap.Bool("parallel", s.cfg.Animation.Parallel),
		zap.Duration("update_interval", s.cfg.Animation.UpdateRateInterval),
	)

	for f := 1; f <= s.opts.Frames; f++ {
		frame := uint64(f)
		dt := s.opts.DeltaSeconds

		// 1. Move the root
		root.Translation.X += s.opts.WalkSpeed * float32(dt)
		if f == s.opts.TeleportAt {
			root.Translation.X += s.opts.TeleportDistance
		}

		// 2. Level of detail
		if s.opts.LODEvery > 0 && f%s.opts.LODEvery == 0 {
			lod = (lod + 1) % len(s.lods)
			s.comp.SetRequiredBones(s.lods[lod])
		}

		in := skelmesh.TickInput{
			Frame:           frame,
			DeltaSeconds:    dt,
			Visible:         s.visible(f),
			LOD:             lod,
			Root:            root,
			DeferralAllowed: true,
		}
		if f == s.opts.ResetAt {
			in.Teleport = physics.ResetPhysics
		}

		// 3. Tick with the physics step between dispatch and join
		if _, err := s.comp.Tick(in, func() { s.ragdoll.Step(dt) }); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f, err)
		}

		// 4. Read cloth the way render submission would
		s.readCloth()

		if time.Since(statsTimer) >= time.Second {
			s.log.Debug("progress", zap.Int("frame", f), zap.Int("evaluations", s.report.Evaluations))
			statsTimer = time.Now()
		}
	}

	if c := s.comp.Cloth(); c != nil {
		c.WaitForCompletion()
	}
	s.finish()
	s.log.Info("simulation finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("evaluations", s.report.Evaluations),
		zap.Int("interpolated", s.report.Interpolated),
		zap.Int("reused", s.report.Reused),
		zap.Int("teleports", s.report.Teleports),
	)
	return &s.report, nil
}

func (s *Sim) visible(f int) bool {
	if s.opts.HideEvery <= 0 {
		return true
	}
	return (f/s.opts.HideEvery)%4 != 3
}

func (s *Sim) record(res *skelmesh.TickResult) error {
	s.report.Frames++
	switch res.Strategy {
	case pose.Interpolate:
		s.report.Interpolated++
	case pose.Reuse:
		s.report.Reused++
	}
	if res.Evaluated {
		s.report.Evaluations++
	}
	if res.Resynced {
		s.report.Resynced++
	}
	if res.EvaluationFailure != nil {
		s.report.Failures++
		s.log.Warn("evaluation failed", zap.Uint64("frame", res.Frame), zap.Error(res.EvaluationFailure))
	}
	return nil
}

func (s *Sim) readCloth() {
	c := s.comp.Cloth()
	policy := cloth.AnyThread
	if s.cfg.Cloth.WaitForCompletion {
		policy = cloth.GameThread
	}
	if _, err := c.GetSimulationData(policy); errors.Is(err, cloth.ErrStaleRead) {
		s.report.StaleReads++
	}
}

func (s *Sim) finish() {
	bones := s.comp.RequiredBones()
	cs := s.comp.LiveComponentSpace()
	skin := s.comp.SkinningMatrices(nil)
	s.report.FinalPose = make([]BonePose, len(cs))
	for i, tr := range cs {
		s.report.FinalPose[i] = BonePose{
			Name:        s.skel.Bone(bones.SkeletonIndex(i)).Name,
			Translation: [3]float32{tr.Translation.X, tr.Translation.Y, tr.Translation.Z},
			Rotation:    [4]float32{tr.Rotation.X, tr.Rotation.Y, tr.Rotation.Z, tr.Rotation.W},
			Skinning:    skin[i],
		}
	}

	snap, err := s.comp.Cloth().GetSimulationData(cloth.GameThread)
	if err != nil {
		return
	}
	for _, p := range snap.Sections[CapeSection].Positions {
		s.report.Cape = append(s.report.Cape, [3]float32{p.X, p.Y, p.Z})
	}
}
