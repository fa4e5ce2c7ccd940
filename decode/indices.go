package decode

import (
	"math"

	"rocktree.lol/varint"
)

// UnpackIndices decodes a generalized triangle strip. The stream is a varint
// strip length followed by one varint per strip entry. Entries count back from
// a running high water mark: the index is zeros-v, and a zero entry introduces
// a new vertex by advancing the mark. The strip is returned in strip order with
// restarts and degenerate windows intact.
func UnpackIndices(packed []byte) (strip []uint16, err error) {
	if len(packed) == 0 {
		return
	}
	var n uint64
	off := 0
	if n, off, err = varint.Read(packed, 0); err != nil {
		return nil, varintError(err, "indices", 0)
	}
	// every entry takes at least one byte
	if n > uint64(len(packed)-off) {
		return nil, fail(Truncated, "indices", len(packed),
			"strip of %d entries in %d bytes", n, len(packed)-off)
	}
	strip = make([]uint16, n)
	var zeros uint64
	for i := range strip {
		start := off
		var v uint64
		if v, off, err = varint.Read(packed, off); err != nil {
			return nil, varintError(err, "indices", start)
		}
		if v > zeros {
			return nil, fail(OutOfRange, "indices", start,
				"entry %d refers %d back from %d", i, v, zeros)
		}
		idx := zeros - v
		if idx > math.MaxUint16 {
			return nil, fail(OutOfRange, "indices", start, "index %d exceeds 16 bits", idx)
		}
		strip[i] = uint16(idx)
		if v == 0 {
			zeros++
		}
	}
	return
}

// EncodeIndices is the inverse of UnpackIndices for strips that introduce
// vertices in increasing order, which is how every served strip is built.
func EncodeIndices(strip []uint16) (packed []byte, err error) {
	packed = varint.Append(packed, uint64(len(strip)))
	var zeros uint64
	for i, idx := range strip {
		if uint64(idx) > zeros {
			return nil, fail(OutOfRange, "indices", i,
				"index %d skips ahead of next new vertex %d", idx, zeros)
		}
		v := zeros - uint64(idx)
		packed = varint.Append(packed, v)
		if v == 0 {
			zeros++
		}
	}
	return
}

// StripToTriangles expands a strip into a flat triangle list, alternating the
// winding of every other window. Degenerate windows are kept so that triangle
// i always corresponds to strip window i.
func StripToTriangles(strip []uint16) (tris []uint16) {
	if len(strip) < 3 {
		return
	}
	tris = make([]uint16, 0, 3*(len(strip)-2))
	for i := 0; i+2 < len(strip); i++ {
		a, b, c := strip[i], strip[i+1], strip[i+2]
		if i%2 == 0 {
			tris = append(tris, a, b, c)
		} else {
			tris = append(tris, a, c, b)
		}
	}
	return
}

// CheckIndices verifies every index addresses one of count vertices.
func CheckIndices(idx []uint16, count int) (err error) {
	for i, v := range idx {
		if int(v) >= count {
			return fail(OutOfRange, "indices", i, "index %d with %d vertices", v, count)
		}
	}
	return
}
