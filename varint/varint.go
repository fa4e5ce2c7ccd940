// Package varint reads and appends the little-endian base-128 varints used by
// the packed index and octant count streams. Each byte carries 7 bits of the
// value and the 8th bit marks that another byte follows, the same encoding as
// protobuf, so the work is delegated to protowire.
package varint

import (
	"errors"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrTruncated is returned when the buffer ends inside a varint.
	ErrTruncated = errors.New("varint: truncated")
	// ErrOverflow is returned when a varint does not fit its declared width.
	ErrOverflow = errors.New("varint: overflow")
)

// Read decodes the varint starting at b[off] and returns it together with the
// offset of the byte that follows it.
func Read(b []byte, off int) (v uint64, next int, err error) {
	if off >= len(b) {
		return 0, off, ErrTruncated
	}
	var n int
	if v, n = protowire.ConsumeVarint(b[off:]); n < 0 {
		if errors.Is(protowire.ParseError(n), io.ErrUnexpectedEOF) {
			return 0, off, ErrTruncated
		}
		return 0, off, ErrOverflow
	}
	return v, off + n, nil
}

// Read32 is Read for values declared as 32 bits wide.
func Read32(b []byte, off int) (v uint32, next int, err error) {
	var u uint64
	if u, next, err = Read(b, off); err != nil {
		return
	}
	if u > math.MaxUint32 {
		return 0, off, ErrOverflow
	}
	return uint32(u), next, nil
}

// Append appends the encoding of v to b.
func Append(b []byte, v uint64) []byte { return protowire.AppendVarint(b, v) }

// Size is the encoded length of v.
func Size(v uint64) int { return protowire.SizeVarint(v) }
