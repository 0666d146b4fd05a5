package anim

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/skelmesh/pkg/math"
)

// ErrInvalidClip is returned by Clip.Validate.
var ErrInvalidClip = errors.New("anim: invalid clip")

// Key is one keyframe. Time is in seconds from the clip start.
type Key[V any] struct {
	Time  float32
	Value V
}

// Track animates one skeleton bone. An empty channel leaves the
// reference pose in place.
type Track struct {
	Bone        int
	Rotation    []Key[math.Quat]
	Translation []Key[math.Vec3]
	Scale       []Key[math.Vec3]
}

// Clip is a looping keyframed animation. It implements Graph.
type Clip struct {
	Name   string
	Length float32
	// Rate scales playback speed; zero plays at normal speed.
	Rate   float32
	Tracks []Track
	Curves map[string][]Key[float32]
}

// Validate checks that keys are sorted and inside the clip.
func (c *Clip) Validate() error {
	if c.Length <= 0 {
		return fmt.Errorf("%w: %q has length %v", ErrInvalidClip, c.Name, c.Length)
	}
	for _, tr := range c.Tracks {
		if err := checkKeys(c, fmt.Sprintf("bone %d rotation", tr.Bone), times(tr.Rotation)); err != nil {
			return err
		}
		if err := checkKeys(c, fmt.Sprintf("bone %d translation", tr.Bone), times(tr.Translation)); err != nil {
			return err
		}
		if err := checkKeys(c, fmt.Sprintf("bone %d scale", tr.Bone), times(tr.Scale)); err != nil {
			return err
		}
	}
	for name, keys := range c.Curves {
		if err := checkKeys(c, "curve "+name, times(keys)); err != nil {
			return err
		}
	}
	return nil
}

// Time maps a request to the looped clip time.
func (c *Clip) Time(frame uint64, dt float64) float32 {
	rate := float64(c.Rate)
	if rate == 0 {
		rate = 1
	}
	t := gomath.Mod(float64(frame)*dt*rate, float64(c.Length))
	if t < 0 {
		t += float64(c.Length)
	}
	return float32(t)
}

// Evaluate samples every track at the request's clip time. Bones outside
// the required set are skipped.
func (c *Clip) Evaluate(req *Request) error {
	if c.Length <= 0 {
		return fmt.Errorf("%w: %q has length %v", ErrInvalidClip, c.Name, c.Length)
	}
	t := c.Time(req.Frame, req.DeltaSeconds)

	for i := range c.Tracks {
		tr := &c.Tracks[i]
		ci := req.Bones.CompactIndex(tr.Bone)
		if ci < 0 {
			continue
		}
		out := &req.Output.BoneSpace[ci]
		if q, ok := sample(tr.Rotation, t, math.Quat.Slerp); ok {
			out.Rotation = q
		}
		if v, ok := sample(tr.Translation, t, math.Vec3.Lerp); ok {
			out.Translation = v
		}
		if v, ok := sample(tr.Scale, t, math.Vec3.Lerp); ok {
			out.Scale = v
		}
	}

	for name, keys := range c.Curves {
		if v, ok := sample(keys, t, lerpf); ok {
			req.Output.Curves[name] = v
		}
	}
	return nil
}

// sample interpolates keys at time t. Keys must be sorted by time; t
// before the first key or after the last clamps to that key.
func sample[V any](keys []Key[V], t float32, lerp func(a, b V, t float32) V) (V, bool) {
	var zero V
	if len(keys) == 0 {
		return zero, false
	}
	if len(keys) == 1 {
		return keys[0].Value, true
	}

	var prev, next int
	for i := range keys {
		if keys[i].Time > t {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next {
		return keys[prev].Value, true
	}

	k0, k1 := keys[prev], keys[next]
	a := float32(0)
	if k1.Time != k0.Time {
		a = (t - k0.Time) / (k1.Time - k0.Time)
	}
	return lerp(k0.Value, k1.Value, a), true
}

func lerpf(a, b, t float32) float32 {
	return a + t*(b-a)
}

func times[V any](keys []Key[V]) []float32 {
	out := make([]float32, len(keys))
	for i, k := range keys {
		out[i] = k.Time
	}
	return out
}

func checkKeys(c *Clip, channel string, ts []float32) error {
	for i, t := range ts {
		if t < 0 || t > c.Length {
			return fmt.Errorf("%w: %q %s key %d at %v outside [0,%v]", ErrInvalidClip, c.Name, channel, i, t, c.Length)
		}
		if i > 0 && t < ts[i-1] {
			return fmt.Errorf("%w: %q %s keys not sorted at %d", ErrInvalidClip, c.Name, channel, i)
		}
	}
	return nil
}
