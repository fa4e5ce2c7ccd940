package decode

import (
	"rocktree.lol/varint"
)

// LayerCount is the number of detail layer bounds of a mesh.
const LayerCount = 10

// UnpackOctantMaskAndLayerBounds walks Mesh.layer_and_octant_counts: a varint
// run count, then one varint per run giving how many consecutive strip
// entries belong to it. Run i covers octant i&7 of layer i/8, and every
// vertex referenced by the run is tagged with that octant in W. The returned
// bounds hold the strip position where each layer starts; layers past the
// last one present are bounded by the strip end of the final run.
func UnpackOctantMaskAndLayerBounds(packed []byte, strip []uint16, vs []Vertex) (bounds [LayerCount]int, err error) {
	if len(packed) == 0 {
		return
	}
	var runs uint64
	off := 0
	if runs, off, err = varint.Read(packed, 0); err != nil {
		return bounds, varintError(err, "octants", 0)
	}
	var k, m, si int
	for i := uint64(0); i < runs; i++ {
		if i%8 == 0 && m < LayerCount {
			bounds[m] = k
			m++
		}
		start := off
		var n uint64
		if n, off, err = varint.Read(packed, off); err != nil {
			return bounds, varintError(err, "octants", start)
		}
		if n > uint64(len(strip)-si) {
			return bounds, fail(OutOfRange, "octants", start,
				"run %d of %d entries past strip end %d", i, n, len(strip))
		}
		for j := uint64(0); j < n; j++ {
			vi := int(strip[si])
			if vi >= len(vs) {
				return bounds, fail(OutOfRange, "octants", start,
					"strip entry %d is vertex %d of %d", si, vi, len(vs))
			}
			vs[vi].W = uint8(i & 7)
			si++
		}
		k += int(n)
	}
	for ; m < LayerCount; m++ {
		bounds[m] = k
	}
	return
}
