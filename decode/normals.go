package decode

import (
	"encoding/binary"
	"math"
)

// NormalTable is the per node lookup table that mesh normals index into. It
// is built once by UnpackForNormals and never written again, so every mesh of
// the node reads it concurrently without locking.
type NormalTable struct {
	n [][3]uint8
}

// Len is the number of entries.
func (t *NormalTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.n)
}

// At returns entry i quantized to bytes, 127 being zero.
func (t *NormalTable) At(i int) [3]uint8 { return t.n[i] }

// UnpackForNormals builds the table from NodeData.for_normals: a little
// endian u16 count, a scale byte, then two planes of count bytes holding the
// octahedral coordinates.
func UnpackForNormals(packed []byte) (t *NormalTable, err error) {
	if len(packed) < 3 {
		err = fail(Truncated, "for_normals", len(packed), "header needs 3 bytes")
		return
	}
	count := int(binary.LittleEndian.Uint16(packed))
	if want := 3 + 2*count; len(packed) != want {
		err = fail(Malformed, "for_normals", len(packed),
			"expected %d bytes for %d normals, got %d", want, count, len(packed))
		return
	}
	s := int(packed[2])
	data := packed[3:]
	t = &NormalTable{n: make([][3]uint8, count)}
	for i := range t.n {
		a := float64(expandComponent(data[i], s)) / 255
		f := float64(expandComponent(data[count+i], s)) / 255
		x, y, z := octahedralNormal(a, f)
		t.n[i] = [3]uint8{quantize(x), quantize(y), quantize(z)}
	}
	return
}

func expandComponent(b uint8, s int) int {
	v := int(b)
	switch {
	case s <= 4:
		return (v << s) + (v & (1<<s - 1))
	case s <= 6:
		r := 8 - s
		sh := v << s
		return sh + sh>>r + sh>>(2*r) + sh>>(3*r)
	case v&1 != 0:
		return 255
	}
	return 0
}

func octahedralNormal(a, f float64) (x, y, z float64) {
	b, c := a, f
	sign := 1.0
	if sum, diff := b+c, b-c; !(sum >= 0.5 && sum <= 1.5 && diff >= -0.5 && diff <= 0.5) {
		sign = -1
		switch {
		case sum <= 0.5:
			b, c = 0.5-f, 0.5-a
		case sum >= 1.5:
			b, c = 1.5-f, 1.5-a
		case diff <= -0.5:
			b, c = f-0.5, a+0.5
		default:
			b, c = f+0.5, a-0.5
		}
	}
	sum, diff := b+c, b-c
	x = math.Min(math.Min(2*sum-1, 3-2*sum), math.Min(2*diff+1, 1-2*diff)) * sign
	y, z = 2*b-1, 2*c-1
	m := 1 / math.Sqrt(x*x+y*y+z*z)
	return x * m, y * m, z * m
}

func quantize(v float64) uint8 {
	r := math.Round(v*127 + 127)
	switch {
	case r < 0:
		return 0
	case r > 255:
		return 255
	}
	return uint8(r)
}

// UnpackNormals resolves Mesh.normals against the node table. The field is
// two planes of vertexCount bytes, the low and high byte of a table index per
// vertex. The fourth byte of each result is zero padding. An empty field
// yields nil, meaning the mesh has no normals.
func UnpackNormals(t *NormalTable, packed []byte, vertexCount int) (ns [][4]uint8, err error) {
	if len(packed) == 0 {
		return
	}
	if t == nil {
		err = fail(Malformed, "normals", 0, "mesh normals without a node normal table")
		return
	}
	if len(packed)%2 != 0 {
		err = fail(Malformed, "normals", len(packed), "odd length %d", len(packed))
		return
	}
	count := len(packed) / 2
	if count != vertexCount {
		err = fail(Malformed, "normals", len(packed),
			"%d normals for %d vertices", count, vertexCount)
		return
	}
	ns = make([][4]uint8, count)
	for i := range ns {
		j := int(packed[i]) | int(packed[count+i])<<8
		if j >= t.Len() {
			return nil, fail(OutOfRange, "normals", i, "index %d into table of %d", j, t.Len())
		}
		n := t.At(j)
		ns[i] = [4]uint8{n[0], n[1], n[2], 0}
	}
	return
}
