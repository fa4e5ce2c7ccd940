// Package lod decides which nodes a view needs: boxes outside the view
// frustum are culled and a node is refined while its screen space error is
// above a threshold. The result is the demand list fed to the fetcher.
package lod

import (
	"errors"
	"math"
	"sort"

	"rocktree.lol/decode"
	"rocktree.lol/index"
	"rocktree.lol/octree"
)

// Vec3 is a point or direction in globe coordinates.
type Vec3 [3]float64

func (a Vec3) Dot(b Vec3) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func (a Vec3) Len() float64 { return math.Sqrt(a.Dot(a)) }

// Plane is the set of points x with N·x + D = 0, N pointing inside.
type Plane struct {
	N Vec3
	D float64
}

func plane(a, b, c, d float64) Plane {
	n := Vec3{a, b, c}
	l := n.Len()
	if l == 0 {
		return Plane{}
	}
	return Plane{N: Vec3{a / l, b / l, c / l}, D: d / l}
}

// Frustum is the left, right, bottom, top, near and far planes of a view.
type Frustum [6]Plane

// FrustumFromMatrix extracts the planes of a column major view projection
// matrix with clip depth in -1..1.
func FrustumFromMatrix(vp [16]float64) (f Frustum) {
	m := func(col, row int) float64 { return vp[col*4+row] }
	for i := 0; i < 3; i++ {
		f[2*i] = plane(m(0, 3)+m(0, i), m(1, 3)+m(1, i), m(2, 3)+m(2, i), m(3, 3)+m(3, i))
		f[2*i+1] = plane(m(0, 3)-m(0, i), m(1, 3)-m(1, i), m(2, 3)-m(2, i), m(3, 3)-m(3, i))
	}
	return
}

// IntersectsOBB reports whether any part of o may be inside f. A box is only
// rejected when it lies wholly behind one plane.
func (f *Frustum) IntersectsOBB(o *decode.OBB) bool {
	for _, p := range f {
		var r float64
		for i := 0; i < 3; i++ {
			r += o.Extents[i] * math.Abs(Vec3(o.Axis(i)).Dot(p.N))
		}
		if p.N.Dot(o.Center)+p.D < -r {
			return false
		}
	}
	return true
}

// DefaultThreshold is the screen space error in pixels above which a node is
// refined.
const DefaultThreshold = 0.6

// Metrics measures the screen space error of nodes seen from a camera.
type Metrics struct {
	Camera Vec3
	// PixelsPerMeter is the projected size of a meter at unit distance.
	PixelsPerMeter float64
	Threshold      float64
}

// NewMetrics derives the metrics of a perspective camera with vertical field
// of view fovY in radians and a viewport screenHeight pixels high.
func NewMetrics(camera Vec3, fovY, screenHeight float64) Metrics {
	return Metrics{
		Camera:         camera,
		PixelsPerMeter: screenHeight / (2 * math.Tan(fovY/2)),
		Threshold:      DefaultThreshold,
	}
}

// Error is the screen space error of a node at center.
func (m Metrics) Error(center Vec3, metersPerTexel float32) float64 {
	d := center.Sub(m.Camera).Len()
	if d <= 0 {
		return math.Inf(1)
	}
	return float64(metersPerTexel) * m.PixelsPerMeter / d
}

// ShouldRefine reports whether a node needs its children drawn.
func (m Metrics) ShouldRefine(center Vec3, metersPerTexel float32) bool {
	return m.Error(center, metersPerTexel) > m.Threshold
}

// View is what a traversal is computed for.
type View struct {
	Frustum Frustum
	Metrics Metrics
	// MaxLevel stops refinement at a depth, zero is unbounded.
	MaxLevel int
	// MaxNodes caps the length of the demand, zero is unbounded.
	MaxNodes int
}

// Traverse walks the loaded bulks breadth first from the root and returns the
// nodes to demand: every node that is inside the frustum and needs refining,
// level by level and nearest first within a level. A node whose children
// live in a bulk not yet loaded is still returned, so that its bulk gets
// fetched, and the walk stops below it.
func Traverse(x *index.T, v View) (demand []octree.Path) {
	frontier := []octree.Path{octree.Root}
	for len(frontier) > 0 {
		type cand struct {
			p    octree.Path
			dist float64
		}
		var next []cand
		for _, p := range frontier {
			children, err := x.Children(p)
			if err != nil {
				if !errors.Is(err, index.ErrBulkMissing) && !errors.Is(err, index.ErrNoSuchNode) {
					log.D.F("children of %s: %v", p, err)
				}
				continue
			}
			for _, c := range children {
				n, err := x.Meta(c)
				if err != nil || n.OBB == nil {
					continue
				}
				if v.MaxLevel > 0 && c.Level() > v.MaxLevel {
					continue
				}
				if !v.Frustum.IntersectsOBB(n.OBB) {
					continue
				}
				center := Vec3(n.OBB.Center)
				if !v.Metrics.ShouldRefine(center, n.MetersPerTexel) {
					continue
				}
				next = append(next, cand{c, center.Sub(v.Metrics.Camera).Len()})
			}
		}
		sort.SliceStable(next, func(i, j int) bool { return next[i].dist < next[j].dist })
		frontier = frontier[:0]
		for _, c := range next {
			if v.MaxNodes > 0 && len(demand) >= v.MaxNodes {
				return
			}
			demand = append(demand, c.p)
			frontier = append(frontier, c.p)
		}
	}
	return
}
