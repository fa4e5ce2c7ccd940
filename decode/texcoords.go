package decode

import (
	"encoding/binary"
)

// UVTransform maps the integer U and V of a vertex to texture space:
// uv = (UV + Offset) * Scale.
type UVTransform struct {
	Offset [2]float32
	Scale  [2]float32
}

// IdentityUV leaves texel coordinates unchanged.
var IdentityUV = UVTransform{Scale: [2]float32{1, 1}}

// UnpackTexCoords writes U and V into vs from a packed texture coordinate
// stream and returns the transform that normalizes them. The stream is a
// header of u_mod-1 and v_mod-1 as little endian u16, then four planes of
// len(vs) bytes: U low, V low, U high, V high. Each coordinate is a running
// sum modulo its mod.
func UnpackTexCoords(packed []byte, vs []Vertex) (t UVTransform, err error) {
	if len(packed) < 4 {
		err = fail(Truncated, "texcoords", len(packed), "header needs 4 bytes")
		return
	}
	n := len(vs)
	if want := 4 + 4*n; len(packed) != want {
		err = fail(Malformed, "texcoords", len(packed),
			"expected %d bytes for %d vertices, got %d", want, n, len(packed))
		return
	}
	uMod := uint32(binary.LittleEndian.Uint16(packed)) + 1
	vMod := uint32(binary.LittleEndian.Uint16(packed[2:])) + 1
	data := packed[4:]
	var u, v uint32
	for i := range vs {
		u = (u + uint32(data[i]) + uint32(data[2*n+i])<<8) % uMod
		v = (v + uint32(data[n+i]) + uint32(data[3*n+i])<<8) % vMod
		vs[i].U, vs[i].V = uint16(u), uint16(v)
	}
	t = UVTransform{
		Offset: [2]float32{0.5, 0.5},
		Scale:  [2]float32{1 / float32(uMod), 1 / float32(vMod)},
	}
	return
}

// MeshUVTransform resolves the transform a mesh is drawn with. An explicit
// offset and scale from the message replaces the derived transform outright,
// otherwise the derived one is flipped in V for a top-left texture origin.
func MeshUVTransform(derived UVTransform, override []float32) UVTransform {
	if len(override) == 4 {
		return UVTransform{
			Offset: [2]float32{override[0], override[1]},
			Scale:  [2]float32{override[2], override[3]},
		}
	}
	return UVTransform{
		Offset: [2]float32{derived.Offset[0], derived.Offset[1] - 1/derived.Scale[1]},
		Scale:  [2]float32{derived.Scale[0], -derived.Scale[1]},
	}
}
