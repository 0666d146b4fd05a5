package sim

import (
	"fmt"

	"github.com/Faultbox/skelmesh/internal/engine/cloth"
	"github.com/Faultbox/skelmesh/pkg/math"
)

// CapeSection is the section id of the cape.
const CapeSection cloth.SectionID = 0

// Cape is a verlet particle strip hanging from one bone. Particles live
// in world space so root teleports are visible to it.
type Cape struct {
	Anchor    int
	Particles int
	Spacing   float32
	Damping   float32

	cur, prev []math.Vec3
	root      math.Transform
	started   bool
}

// NewCape creates a cape anchored at the given skeleton bone.
func NewCape(anchor, particles int, spacing float32) *Cape {
	return &Cape{Anchor: anchor, Particles: particles, Spacing: spacing, Damping: 0.98}
}

// Step implements cloth.Solver.
func (c *Cape) Step(in *cloth.StepInput) (map[cloth.SectionID]cloth.SectionData, error) {
	ci := in.Bones.CompactIndex(c.Anchor)
	if ci < 0 {
		return nil, fmt.Errorf("cape anchor bone %d not required", c.Anchor)
	}
	anchor := in.Root.TransformPoint(in.Pose[ci].Translation)

	switch {
	case !c.started || in.Teleport == cloth.TeleportAndReset:
		c.layout(anchor)
	case in.Teleport == cloth.Teleport:
		delta := in.Root.Translation.Sub(c.root.Translation)
		for i := range c.cur {
			c.cur[i] = c.cur[i].Add(delta)
			c.prev[i] = c.prev[i].Add(delta)
		}
	}
	c.root = in.Root

	h := float32(in.DeltaSeconds)
	for i := 1; i < len(c.cur); i++ {
		v := c.cur[i].Sub(c.prev[i]).Scale(c.Damping)
		c.prev[i] = c.cur[i]
		c.cur[i] = c.cur[i].Add(v).Add(gravity.Scale(h * h))
	}
	c.cur[0] = anchor
	c.prev[0] = anchor

	spheres := make([]cloth.Sphere, len(in.Collisions))
	for i, s := range in.Collisions {
		spheres[i] = cloth.Sphere{Center: in.Root.TransformPoint(s.Center), Radius: s.Radius}
	}
	for iter := 0; iter < 4; iter++ {
		c.constrain()
		c.collide(spheres)
	}

	return map[cloth.SectionID]cloth.SectionData{CapeSection: c.section(in.Root)}, nil
}

func (c *Cape) layout(anchor math.Vec3) {
	c.cur = make([]math.Vec3, c.Particles)
	c.prev = make([]math.Vec3, c.Particles)
	for i := range c.cur {
		c.cur[i] = anchor.Sub(math.Vec3{Y: c.Spacing * float32(i)})
	}
	copy(c.prev, c.cur)
	c.started = true
}

func (c *Cape) constrain() {
	for i := 1; i < len(c.cur); i++ {
		d := c.cur[i].Sub(c.cur[i-1])
		l := d.Length()
		if l == 0 {
			continue
		}
		c.cur[i] = c.cur[i-1].Add(d.Scale(c.Spacing / l))
	}
}

func (c *Cape) collide(spheres []cloth.Sphere) {
	for _, s := range spheres {
		for i := 1; i < len(c.cur); i++ {
			d := c.cur[i].Sub(s.Center)
			if l := d.Length(); l < s.Radius && l > 0 {
				c.cur[i] = s.Center.Add(d.Scale(s.Radius / l))
			}
		}
	}
}

func (c *Cape) section(root math.Transform) cloth.SectionData {
	out := cloth.SectionData{
		Positions: make([]math.Vec3, len(c.cur)),
		Normals:   make([]math.Vec3, len(c.cur)),
	}
	for i, p := range c.cur {
		out.Positions[i] = math.TransformFromTranslation(p).RelativeTo(root).Translation
	}
	for i := range out.Positions {
		j := min(i+1, len(out.Positions)-1)
		k := max(j-1, 0)
		along := out.Positions[j].Sub(out.Positions[k]).Normalize()
		out.Normals[i] = along.Cross(math.Vec3{X: 1}).Normalize()
	}
	return out
}
