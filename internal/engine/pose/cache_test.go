package pose

import (
	"errors"
	"testing"

	"github.com/Faultbox/skelmesh/internal/engine/skeleton"
	"github.com/Faultbox/skelmesh/pkg/math"
)

func testSkeleton(t *testing.T) *skeleton.Skeleton {
	t.Helper()
	s, err := skeleton.New([]skeleton.Bone{
		{Name: "root", Parent: -1, RefPose: math.TransformIdentity()},
		{Name: "spine", Parent: 0, RefPose: math.TransformFromTranslation(math.Vec3{Y: 1})},
		{Name: "head", Parent: 1, RefPose: math.TransformFromTranslation(math.Vec3{Y: 1})},
		{Name: "hand", Parent: 1, RefPose: math.TransformFromTranslation(math.Vec3{X: 1})},
	})
	if err != nil {
		t.Fatalf("skeleton.New: %v", err)
	}
	return s
}

// evaluate runs a fake full evaluation that offsets the root by x.
func evaluate(t *testing.T, c *Cache, x float32, opts CommitOptions) {
	t.Helper()
	target := c.Acquire()
	target.BoneSpace[0] = math.TransformFromTranslation(math.Vec3{X: x})
	target.Bones().FillComponentSpace(target.BoneSpace, target.ComponentSpace)
	if err := c.Complete(target, opts); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestDecideTickStrategy(t *testing.T) {
	s := testSkeleton(t)

	fresh := func() *Cache { return NewCache(skeleton.FullContainer(s)) }
	evaluated := func(opts CommitOptions) func() *Cache {
		return func() *Cache {
			c := fresh()
			evaluate(t, c, 0, opts)
			return c
		}
	}
	interpolating := func() *Cache {
		c := evaluated(CommitOptions{DuplicateToCache: true})()
		evaluate(t, c, 1, CommitOptions{Interpolate: true})
		return c
	}

	budget := UpdateRateBudget{Interval: 0.1, Interpolate: true}

	tests := []struct {
		name    string
		cache   func() *Cache
		since   float64
		budget  UpdateRateBudget
		visible bool
		want    Strategy
		alpha   float32
		forced  bool
	}{
		{"never evaluated", fresh, 0, budget, true, FullEvaluate, 1, true},
		{"never evaluated and hidden", fresh, 0, budget, false, FullEvaluate, 1, true},
		{"hidden reuses", evaluated(CommitOptions{}), 0.01, budget, false, Reuse, 0, false},
		{"disabled reuses", evaluated(CommitOptions{}), 0.01, UpdateRateBudget{Interval: 0.1, Disabled: true}, true, Reuse, 0, false},
		{"no interval evaluates every tick", evaluated(CommitOptions{}), 0, UpdateRateBudget{}, true, FullEvaluate, 1, true},
		{"interval elapsed", evaluated(CommitOptions{}), 0.1, budget, true, FullEvaluate, 1, false},
		{"force refresh", evaluated(CommitOptions{}), 0.01, UpdateRateBudget{Interval: 0.1, ForceRefresh: true}, true, FullEvaluate, 1, true},
		{"within interval without target reuses", evaluated(CommitOptions{DuplicateToCache: true}), 0.05, budget, true, Reuse, 0, false},
		{"within interval interpolates", interpolating, 0.05, budget, true, Interpolate, 0.5, false},
		{"interpolation not allowed", interpolating, 0.05, UpdateRateBudget{Interval: 0.1}, true, Reuse, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cache().DecideTickStrategy(tt.since, tt.budget, tt.visible)
			if got.Strategy != tt.want {
				t.Fatalf("strategy = %v, want %v", got.Strategy, tt.want)
			}
			if got.Alpha != tt.alpha {
				t.Errorf("alpha = %v, want %v", got.Alpha, tt.alpha)
			}
			if got.Forced != tt.forced {
				t.Errorf("forced = %v, want %v", got.Forced, tt.forced)
			}
		})
	}
}

func TestInterpolationAlphaClamped(t *testing.T) {
	c := NewCache(skeleton.FullContainer(testSkeleton(t)))
	evaluate(t, c, 0, CommitOptions{})
	evaluate(t, c, 10, CommitOptions{Interpolate: true})

	d := c.DecideTickStrategy(-0.5, UpdateRateBudget{Interval: 1, Interpolate: true}, true)
	if d.Strategy != Interpolate || d.Alpha != 0 {
		t.Errorf("negative elapsed: got %+v, want interpolate at 0", d)
	}
}

func TestInterpolateIsLinear(t *testing.T) {
	c := NewCache(skeleton.FullContainer(testSkeleton(t)))
	evaluate(t, c, 0, CommitOptions{})
	evaluate(t, c, 10, CommitOptions{Interpolate: true})

	// Live stays on screen until interpolation moves it
	if x := c.Live().BoneSpace[0].Translation.X; x != 0 {
		t.Fatalf("live root moved on commit: %v", x)
	}

	for _, alpha := range []float32{0.25, 0.5, 1} {
		c.Apply(Decision{Strategy: Interpolate, Alpha: alpha})
		want := 10 * alpha
		if got := c.Live().BoneSpace[0].Translation.X; got != want {
			t.Errorf("alpha %v: root x = %v, want %v", alpha, got, want)
		}
		// Component space follows bone space
		if got := c.Live().ComponentSpace[2].Translation.X; got != want {
			t.Errorf("alpha %v: head component x = %v, want %v", alpha, got, want)
		}
	}
	if off := c.RootBoneOffset(); off.X != 10 {
		t.Errorf("root bone offset = %v, want x=10", off)
	}
}

func TestSwapExchangesIdentities(t *testing.T) {
	c := NewCache(skeleton.FullContainer(testSkeleton(t)))
	live, cached := c.Live(), c.Cached()
	c.Swap()
	if c.Live() != cached || c.Cached() != live {
		t.Error("Swap should exchange buffer pointers")
	}
}

func TestReuseRestoresLastFullEvaluation(t *testing.T) {
	c := NewCache(skeleton.FullContainer(testSkeleton(t)))
	evaluate(t, c, 3, CommitOptions{DuplicateToCache: true})
	full := c.Live().Num()

	// Something scribbles over live (e.g. a blend pass)
	c.Live().BoneSpace[0].Translation.X = 99

	c.Apply(Decision{Strategy: Reuse})
	if got := c.Live().BoneSpace[0].Translation.X; got != 3 {
		t.Errorf("reuse should restore cached root x=3, got %v", got)
	}
	if c.Live().Num() != full {
		t.Errorf("reuse produced %d bones, previous full evaluation had %d", c.Live().Num(), full)
	}
}

func TestReuseWithoutDuplicateKeepsLive(t *testing.T) {
	c := NewCache(skeleton.FullContainer(testSkeleton(t)))
	evaluate(t, c, 1, CommitOptions{})
	evaluate(t, c, 2, CommitOptions{})

	c.Apply(Decision{Strategy: Reuse})
	if got := c.Live().BoneSpace[0].Translation.X; got != 2 {
		t.Errorf("reuse without a valid cache should keep live x=2, got %v", got)
	}
}

func TestLiveMatchesRequiredBonesAcrossLODChanges(t *testing.T) {
	s := testSkeleton(t)
	full := skeleton.FullContainer(s)
	reduced, err := skeleton.NewBoneContainer(s, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("NewBoneContainer: %v", err)
	}

	c := NewCache(full)
	lods := []*skeleton.BoneContainer{full, reduced, reduced, full, reduced}
	for i, bones := range lods {
		c.SetRequiredBones(bones)
		if c.Live().Num() != bones.Num() {
			t.Fatalf("step %d: live has %d bones before evaluation, want %d", i, c.Live().Num(), bones.Num())
		}
		d := c.DecideTickStrategy(0, UpdateRateBudget{Interval: 1}, true)
		if i > 0 && lods[i-1] != bones && d.Strategy != FullEvaluate {
			t.Errorf("step %d: bone change should force full evaluation, got %v", i, d.Strategy)
		}
		evaluate(t, c, float32(i), CommitOptions{DuplicateToCache: true})
		c.Swap()
		if c.Live().Num() != bones.Num() {
			t.Errorf("step %d: after Swap live has %d bones, want %d", i, c.Live().Num(), bones.Num())
		}
	}
}

func TestRebindKeepsSurvivingBones(t *testing.T) {
	s := testSkeleton(t)
	full := skeleton.FullContainer(s)
	reduced, _ := skeleton.NewBoneContainer(s, []int{0, 1, 3})

	c := NewCache(full)
	evaluate(t, c, 5, CommitOptions{})
	c.SetRequiredBones(reduced)

	hand := reduced.CompactIndex(3)
	if hand != 2 {
		t.Fatalf("hand compact index = %d, want 2", hand)
	}
	if got := c.Live().ComponentSpace[hand].Translation; !got.NearlyEqual(math.Vec3{X: 6, Y: 1}, 0.0001) {
		t.Errorf("hand component translation = %v, want (6,1,0)", got)
	}
}

func TestRebindAcrossSkeletonsResets(t *testing.T) {
	other, err := skeleton.New([]skeleton.Bone{
		{Name: "root", Parent: -1, RefPose: math.TransformFromTranslation(math.Vec3{X: 7})},
		{Name: "tail", Parent: 0, RefPose: math.TransformFromTranslation(math.Vec3{Z: -1})},
	})
	if err != nil {
		t.Fatalf("skeleton.New: %v", err)
	}

	c := NewCache(skeleton.FullContainer(testSkeleton(t)))
	evaluate(t, c, 5, CommitOptions{})
	c.SetRequiredBones(skeleton.FullContainer(other))

	live := c.Live()
	if live.Num() != 2 {
		t.Fatalf("live has %d bones, want 2", live.Num())
	}
	want := []math.Vec3{{X: 7}, {X: 7, Z: -1}}
	for i, w := range want {
		if got := live.ComponentSpace[i].Translation; !got.NearlyEqual(w, 0.0001) {
			t.Errorf("bone %d at %v, want reference %v", i, got, w)
		}
	}
}

func TestCompleteRejectsStaleBones(t *testing.T) {
	s := testSkeleton(t)
	full := skeleton.FullContainer(s)
	reduced, _ := skeleton.NewBoneContainer(s, []int{0, 1})

	c := NewCache(full)
	evaluate(t, c, 0, CommitOptions{})

	target := c.Acquire()
	if !c.Outstanding() {
		t.Fatal("cache should report the target as lent")
	}
	c.SetRequiredBones(reduced)

	err := c.Complete(target, CommitOptions{})
	if !errors.Is(err, ErrBufferMismatch) {
		t.Fatalf("expected ErrBufferMismatch, got %v", err)
	}
	if c.Live().Num() != reduced.Num() {
		t.Errorf("live has %d bones, want %d", c.Live().Num(), reduced.Num())
	}

	// The recycled target is sized for the new list
	retry := c.Acquire()
	if retry.Num() != reduced.Num() {
		t.Errorf("retry target has %d bones, want %d", retry.Num(), reduced.Num())
	}
	if err := c.Complete(retry, CommitOptions{}); err != nil {
		t.Errorf("retry Complete: %v", err)
	}
}

func TestForceRefPoseToggleForcesEvaluation(t *testing.T) {
	c := NewCache(skeleton.FullContainer(testSkeleton(t)))
	evaluate(t, c, 0, CommitOptions{})

	budget := UpdateRateBudget{Interval: 10}
	if d := c.DecideTickStrategy(0, budget, true); d.Strategy != Reuse {
		t.Fatalf("expected reuse before toggle, got %v", d.Strategy)
	}

	c.SetForceRefPose(true)
	if d := c.DecideTickStrategy(0, budget, true); d.Strategy != FullEvaluate {
		t.Errorf("toggle should force full evaluation, got %v", d.Strategy)
	}

	evaluate(t, c, 0, CommitOptions{})
	c.SetForceRefPose(true) // no change
	if d := c.DecideTickStrategy(0, budget, true); d.Strategy != Reuse {
		t.Errorf("setting the same value should not force evaluation, got %v", d.Strategy)
	}
}

func TestForcedCommitSkipsInterpolation(t *testing.T) {
	s := testSkeleton(t)
	reduced, err := skeleton.NewBoneContainer(s, []int{1})
	if err != nil {
		t.Fatalf("NewBoneContainer: %v", err)
	}

	tests := []struct {
		name   string
		change func(c *Cache)
	}{
		{"ref pose toggled", func(c *Cache) { c.SetForceRefPose(true) }},
		{"required bones changed", func(c *Cache) { c.SetRequiredBones(reduced) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache(skeleton.FullContainer(s))
			evaluate(t, c, 1, CommitOptions{DuplicateToCache: true})
			tt.change(c)
			evaluate(t, c, 5, CommitOptions{Interpolate: true})
			if x := c.Live().BoneSpace[0].Translation.X; x != 5 {
				t.Errorf("live root X = %v, want 5", x)
			}
			d := c.DecideTickStrategy(0.01, UpdateRateBudget{Interval: 1, Interpolate: true}, true)
			if d.Strategy != Reuse {
				t.Errorf("next tick strategy = %v, want reuse", d.Strategy)
			}
		})
	}
}

func TestInterpolateCurves(t *testing.T) {
	c := NewCache(skeleton.FullContainer(testSkeleton(t)))

	target := c.Acquire()
	target.Curves["jaw_open"] = 0
	if err := c.Complete(target, CommitOptions{}); err != nil {
		t.Fatal(err)
	}

	target = c.Acquire()
	target.Curves["jaw_open"] = 1
	target.Curves["blink"] = 0.5
	if err := c.Complete(target, CommitOptions{Interpolate: true}); err != nil {
		t.Fatal(err)
	}

	c.Apply(Decision{Strategy: Interpolate, Alpha: 0.5})
	if got := c.Live().Curves["jaw_open"]; got != 0.5 {
		t.Errorf("jaw_open = %v, want 0.5", got)
	}
	if got := c.Live().Curves["blink"]; got != 0.5 {
		t.Errorf("blink (target only) = %v, want 0.5", got)
	}
}
