// Package wire holds typed views of the planetoid, bulk, node and texture
// messages, parsed straight from protobuf wire bytes with protowire. The field
// numbers are the interoperability contract with the server; unknown fields are
// skipped. Byte fields alias the buffer they were parsed from, so a parsed
// message must be treated as immutable and must not outlive a reused buffer.
package wire

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Error is a message that failed schema parsing.
type Error struct {
	Message string
	Field   protowire.Number
	Offset  int
	Err     error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("wire: %s", e.Message)
	if e.Field > 0 {
		s += fmt.Sprintf(" field %d", e.Field)
	}
	s += fmt.Sprintf(" at offset %d", e.Offset)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// field is one decoded tag and its value. Fixed and varint values land in u,
// length delimited values in b.
type field struct {
	num protowire.Number
	typ protowire.Type
	off no
	u   uint64
	b   by
}

// fields walks the top level fields of a message and calls fn for each one.
// base is the offset of msg inside the outermost buffer, used for errors.
func fields(msg st, b by, base no, fn func(f *field) er) (err er) {
	off := 0
	for off < len(b) {
		f := &field{off: base + off}
		num, typ, n := protowire.ConsumeTag(b[off:])
		if n < 0 {
			return &Error{Message: msg + " tag", Offset: base + off, Err: protowire.ParseError(n)}
		}
		f.num, f.typ = num, typ
		off += n
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b[off:])
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b[off:])
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b[off:])
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b[off:])
		default:
			n = protowire.ConsumeFieldValue(num, typ, b[off:])
			if n >= 0 {
				off += n
				continue
			}
		}
		if n < 0 {
			return &Error{Message: msg, Field: num, Offset: base + off,
				Err: protowire.ParseError(n)}
		}
		if err = fn(f); err != nil {
			return
		}
		off += n
	}
	return
}

func (f *field) want(msg st, typ protowire.Type) (err er) {
	if f.typ != typ {
		err = &Error{Message: fmt.Sprintf("%s: wire type %d, expected %d", msg, f.typ, typ),
			Field: f.num, Offset: f.off}
	}
	return
}

func (f *field) uint32(msg st) (v *uint32, err er) {
	if err = f.want(msg, protowire.VarintType); err != nil {
		return
	}
	u := uint32(f.u)
	return &u, nil
}

func (f *field) float32(msg st) (v *float32, err er) {
	if err = f.want(msg, protowire.Fixed32Type); err != nil {
		return
	}
	x := math.Float32frombits(uint32(f.u))
	return &x, nil
}

func (f *field) bytes(msg st) (b by, err er) {
	if err = f.want(msg, protowire.BytesType); err != nil {
		return
	}
	return f.b, nil
}

// float64s appends a repeated double, packed or not.
func (f *field) float64s(msg st, dst []float64) (out []float64, err er) {
	switch f.typ {
	case protowire.Fixed64Type:
		return append(dst, math.Float64frombits(f.u)), nil
	case protowire.BytesType:
		if len(f.b)%8 != 0 {
			return nil, &Error{Message: msg + ": packed double length", Field: f.num, Offset: f.off}
		}
		out = dst
		for p := f.b; len(p) > 0; p = p[8:] {
			v, _ := protowire.ConsumeFixed64(p)
			out = append(out, math.Float64frombits(v))
		}
		return
	}
	return nil, f.want(msg, protowire.Fixed64Type)
}

// float32s appends a repeated float, packed or not.
func (f *field) float32s(msg st, dst []float32) (out []float32, err er) {
	switch f.typ {
	case protowire.Fixed32Type:
		return append(dst, math.Float32frombits(uint32(f.u))), nil
	case protowire.BytesType:
		if len(f.b)%4 != 0 {
			return nil, &Error{Message: msg + ": packed float length", Field: f.num, Offset: f.off}
		}
		out = dst
		for p := f.b; len(p) > 0; p = p[4:] {
			v, _ := protowire.ConsumeFixed32(p)
			out = append(out, math.Float32frombits(v))
		}
		return
	}
	return nil, f.want(msg, protowire.Fixed32Type)
}

// uint32s appends a repeated uint32, packed or not.
func (f *field) uint32s(msg st, dst []uint32) (out []uint32, err er) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, uint32(f.u)), nil
	case protowire.BytesType:
		out = dst
		for p := f.b; len(p) > 0; {
			v, n := protowire.ConsumeVarint(p)
			if n < 0 {
				return nil, &Error{Message: msg + ": packed varint", Field: f.num, Offset: f.off,
					Err: protowire.ParseError(n)}
			}
			out = append(out, uint32(v))
			p = p[n:]
		}
		return
	}
	return nil, f.want(msg, protowire.VarintType)
}

// wrap annotates a parse failure with the message being parsed. The *Error
// stays reachable through errors.As.
func wrap(err er, msg st) er {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "parsing %s", msg)
}

func appendUint32(b by, num protowire.Number, v *uint32) by {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

func appendFloat32(b by, num protowire.Number, v *float32) by {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(*v))
}

func appendBytes(b by, num protowire.Number, v by) by {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b by, num protowire.Number, v st) by {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendPackedFloat64(b by, num protowire.Number, v []float64) by {
	if len(v) == 0 {
		return b
	}
	var p by
	for _, x := range v {
		p = protowire.AppendFixed64(p, math.Float64bits(x))
	}
	return appendBytes(b, num, p)
}

func appendPackedFloat32(b by, num protowire.Number, v []float32) by {
	if len(v) == 0 {
		return b
	}
	var p by
	for _, x := range v {
		p = protowire.AppendFixed32(p, math.Float32bits(x))
	}
	return appendBytes(b, num, p)
}

func appendPackedUint32(b by, num protowire.Number, v []uint32) by {
	if len(v) == 0 {
		return b
	}
	var p by
	for _, x := range v {
		p = protowire.AppendVarint(p, uint64(x))
	}
	return appendBytes(b, num, p)
}

// U32 returns a pointer to v, for filling optional fields.
func U32(v uint32) *uint32 { return &v }

// F32 returns a pointer to v, for filling optional fields.
func F32(v float32) *float32 { return &v }
