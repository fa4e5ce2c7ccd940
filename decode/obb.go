package decode

import (
	"encoding/binary"
	"math"
)

// OBBSize is the packed length of an oriented bounding box.
const OBBSize = 15

// OBB is an oriented bounding box in globe coordinates. Orientation is a
// 3x3 rotation stored as three consecutive basis vectors.
type OBB struct {
	Center      [3]float64
	Extents     [3]float64
	Orientation [9]float64
}

// Axis returns basis vector i of the orientation.
func (o *OBB) Axis(i int) [3]float64 {
	return [3]float64{o.Orientation[3*i], o.Orientation[3*i+1], o.Orientation[3*i+2]}
}

// UnpackOBB decodes the 15 byte box layout: center as three little endian
// i16 texel offsets from headNodeCenter, extents as three u8 texel counts,
// then three little endian u16 Euler angles scaled by pi/32768, pi/65536 and
// pi/32768.
func UnpackOBB(packed []byte, headNodeCenter [3]float64, metersPerTexel float32) (o *OBB, err error) {
	if len(packed) != OBBSize {
		err = fail(Malformed, "obb", len(packed), "expected %d bytes, got %d", OBBSize, len(packed))
		return
	}
	mpt := float64(metersPerTexel)
	o = &OBB{}
	for i := 0; i < 3; i++ {
		c := int16(binary.LittleEndian.Uint16(packed[2*i:]))
		o.Center[i] = float64(c)*mpt + headNodeCenter[i]
		o.Extents[i] = float64(packed[6+i]) * mpt
	}
	e0 := float64(binary.LittleEndian.Uint16(packed[9:])) * math.Pi / 32768
	e1 := float64(binary.LittleEndian.Uint16(packed[11:])) * math.Pi / 65536
	e2 := float64(binary.LittleEndian.Uint16(packed[13:])) * math.Pi / 32768
	o.Orientation = eulerToMatrix(e0, e1, e2)
	return
}

func eulerToMatrix(e0, e1, e2 float64) [9]float64 {
	s0, c0 := math.Sincos(e0)
	s1, c1 := math.Sincos(e1)
	s2, c2 := math.Sincos(e2)
	return [9]float64{
		c0*c2 - c1*s0*s2, c1*c0*s2 + c2*s0, s2 * s1,
		-c0*s2 - c2*c1*s0, c0*c1*c2 - s0*s2, c2 * s1,
		s1 * s0, -c0 * s1, c1,
	}
}

// PackOBB builds the packed form from its quantized parts.
func PackOBB(center [3]int16, extents [3]uint8, euler [3]uint16) (packed []byte) {
	packed = make([]byte, OBBSize)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint16(packed[2*i:], uint16(center[i]))
		packed[6+i] = extents[i]
		binary.LittleEndian.PutUint16(packed[9+2*i:], euler[i])
	}
	return
}
