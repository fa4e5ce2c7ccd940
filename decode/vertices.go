package decode

// OctantUnmasked is the W of a vertex no octant run has claimed.
const OctantUnmasked = 0xFF

// Vertex is one mesh vertex in quantized mesh space. W is the octant the
// vertex belongs to, U and V are texel coordinates.
type Vertex struct {
	X, Y, Z, W uint8
	U, V       uint16
}

// UnpackVertices decodes byte planar positions. The buffer holds all X
// deltas, then all Y deltas, then all Z deltas, one byte each, and every
// component is the 8 bit wrapping running sum of its deltas.
func UnpackVertices(packed []byte) (vs []Vertex, err error) {
	if len(packed)%3 != 0 {
		err = fail(Malformed, "vertices", len(packed),
			"length %d is not a multiple of 3", len(packed))
		return
	}
	n := len(packed) / 3
	vs = make([]Vertex, n)
	var x, y, z uint8
	for i := range vs {
		x += packed[i]
		y += packed[n+i]
		z += packed[2*n+i]
		vs[i] = Vertex{X: x, Y: y, Z: z, W: OctantUnmasked}
	}
	return
}

// EncodeVertices is the inverse of UnpackVertices.
func EncodeVertices(vs []Vertex) (packed []byte) {
	n := len(vs)
	packed = make([]byte, 3*n)
	var x, y, z uint8
	for i, v := range vs {
		packed[i] = v.X - x
		packed[n+i] = v.Y - y
		packed[2*n+i] = v.Z - z
		x, y, z = v.X, v.Y, v.Z
	}
	return
}
