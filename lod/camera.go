package lod

import "math"

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

func (a Vec3) Scale(s float64) Vec3 { return Vec3{a[0] * s, a[1] * s, a[2] * s} }

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

// Normalize returns a scaled to unit length, or a itself when zero.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return a
	}
	return a.Scale(1 / l)
}

// Geodetic places a point at latitude and longitude in degrees and altitude
// above a sphere of the given radius. The z axis points at the north pole and
// x at longitude zero.
func Geodetic(lat, lon, alt, radius float64) Vec3 {
	φ, λ := lat*math.Pi/180, lon*math.Pi/180
	r := radius + alt
	return Vec3{r * math.Cos(φ) * math.Cos(λ), r * math.Cos(φ) * math.Sin(λ), r * math.Sin(φ)}
}

// Mul multiplies two column major matrices.
func Mul(a, b [16]float64) (m [16]float64) {
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += a[k*4+row] * b[col*4+k]
			}
			m[col*4+row] = s
		}
	}
	return
}

// LookAt is the column major view matrix of a camera at eye facing target.
func LookAt(eye, target, up Vec3) [16]float64 {
	f := target.Sub(eye).Normalize()
	s := f.Cross(up).Normalize()
	if s.Len() == 0 {
		// looking along up, any perpendicular will do
		s = f.Cross(Vec3{1, 0, 0}).Normalize()
		if s.Len() == 0 {
			s = f.Cross(Vec3{0, 1, 0}).Normalize()
		}
	}
	u := s.Cross(f)
	return [16]float64{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1,
	}
}

// Perspective is the column major projection of a camera with vertical field
// of view fovY in radians, with clip depth in -1..1.
func Perspective(fovY, aspect, near, far float64) [16]float64 {
	f := 1 / math.Tan(fovY/2)
	return [16]float64{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) / (near - far), -1,
		0, 0, 2 * far * near / (near - far), 0,
	}
}

// Camera is a perspective camera in globe coordinates.
type Camera struct {
	Eye, Target, Up Vec3
	FovY            float64
	Width, Height   float64
	Near, Far       float64
}

// Orbit returns a camera at lat, lon and alt above a sphere of radius looking
// straight down at its center.
func Orbit(lat, lon, alt, radius float64, width, height float64) Camera {
	eye := Geodetic(lat, lon, alt, radius)
	near := math.Max(alt/100, 1)
	return Camera{
		Eye:    eye,
		Up:     Vec3{0, 0, 1},
		FovY:   math.Pi / 3,
		Width:  width,
		Height: height,
		Near:   near,
		Far:    eye.Len() + radius,
	}
}

// View is the traversal input of the camera.
func (c Camera) View(maxLevel, maxNodes int) View {
	vp := Mul(Perspective(c.FovY, c.Width/c.Height, c.Near, c.Far), LookAt(c.Eye, c.Target, c.Up))
	return View{
		Frustum:  FrustumFromMatrix(vp),
		Metrics:  NewMetrics(c.Eye, c.FovY, c.Height),
		MaxLevel: maxLevel,
		MaxNodes: maxNodes,
	}
}
