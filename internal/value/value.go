/*
Package value implements the tagged scalar values that flow through the
storage engine's core: B+ tree keys, WAL record keys, and the small set
of scalar column types the table façade encodes rows with.

Encoding begins with one byte, 0 for null (empty payload) or 1 for
non-null followed by the variant's body, per the fixed/variable rules
documented on each Type. Comparing two Values of different Types is a
programmer error and panics — the tree and WAL layers validate key
types against the declared key type before ever calling Compare, so
this should never trigger through the public API.
*/
package value

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"mde/internal/enginerr"
)

// Type is the tag distinguishing a Value's scalar variant.
type Type uint8

const (
	TypeUint8 Type = iota + 1
	TypeUint16
	TypeUint32
	TypeUint64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeBool
	TypeRune
	TypeString
	TypeFloat32
	TypeFloat64
	TypeDecimal
	TypeTimestamp
)

func (t Type) String() string {
	switch t {
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeBool:
		return "bool"
	case TypeRune:
		return "rune"
	case TypeString:
		return "string"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeDecimal:
		return "decimal"
	case TypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("value.Type(%d)", uint8(t))
	}
}

// Decimal is a 128-bit-scale fixed-point decimal: unscaled * 10^-scale.
// Unscaled is bounded to 128 bits by convention; the codec does not
// enforce the bound (no third-party decimal type was available in the
// retrieved example corpus to enforce it for us, see DESIGN.md).
type Decimal struct {
	Unscaled big.Int
	Scale    uint8
}

// NewDecimal builds a Decimal from an int64 unscaled magnitude.
func NewDecimal(unscaled int64, scale uint8) Decimal {
	var d Decimal
	d.Unscaled.SetInt64(unscaled)
	d.Scale = scale
	return d
}

// Rat returns the exact rational value unscaled / 10^scale.
func (d Decimal) Rat() *big.Rat {
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	return new(big.Rat).SetFrac(&d.Unscaled, denom)
}

// Value is a tagged scalar. The zero Value is invalid; use the New*
// constructors or Decode.
type Value struct {
	typ  Type
	null bool
	raw  any
}

func Null(t Type) Value              { return Value{typ: t, null: true} }
func NewUint8(v uint8) Value         { return Value{typ: TypeUint8, raw: v} }
func NewUint16(v uint16) Value       { return Value{typ: TypeUint16, raw: v} }
func NewUint32(v uint32) Value       { return Value{typ: TypeUint32, raw: v} }
func NewUint64(v uint64) Value       { return Value{typ: TypeUint64, raw: v} }
func NewInt8(v int8) Value           { return Value{typ: TypeInt8, raw: v} }
func NewInt16(v int16) Value         { return Value{typ: TypeInt16, raw: v} }
func NewInt32(v int32) Value         { return Value{typ: TypeInt32, raw: v} }
func NewInt64(v int64) Value         { return Value{typ: TypeInt64, raw: v} }
func NewBool(v bool) Value           { return Value{typ: TypeBool, raw: v} }
func NewRune(v rune) Value           { return Value{typ: TypeRune, raw: v} }
func NewString(v string) Value       { return Value{typ: TypeString, raw: v} }
func NewFloat32(v float32) Value     { return Value{typ: TypeFloat32, raw: v} }
func NewFloat64(v float64) Value     { return Value{typ: TypeFloat64, raw: v} }
func NewDecimalValue(d Decimal) Value { return Value{typ: TypeDecimal, raw: d} }
func NewTimestamp(millis int64) Value { return Value{typ: TypeTimestamp, raw: millis} }

func (v Value) Type() Type   { return v.typ }
func (v Value) IsNull() bool { return v.null }
func (v Value) Raw() any     { return v.raw }

// Encode serializes v per §4.1: a leading null flag then the variant body.
func Encode(v Value) []byte {
	if v.null {
		return []byte{0}
	}
	body := encodeBody(v)
	out := make([]byte, 0, len(body)+1)
	out = append(out, 1)
	return append(out, body...)
}

// Decode reads a null-flagged Value of the given Type from b.
func Decode(b []byte, t Type) (Value, error) {
	if len(b) == 0 {
		return Value{}, fmt.Errorf("value.Decode: empty buffer: %w", enginerr.ErrCorruptedHeader)
	}
	if b[0] == 0 {
		return Null(t), nil
	}
	return decodeBody(b[1:], t)
}

// EncodeKey serializes v as a WAL/tree key: a 1-byte type tag then the
// body with no null flag, since keys are never null (§6).
func EncodeKey(v Value) []byte {
	body := encodeBody(v)
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(v.typ))
	return append(out, body...)
}

// DecodeKey reads a tagged key and returns the remaining bytes after it.
func DecodeKey(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, fmt.Errorf("value.DecodeKey: empty buffer: %w", enginerr.ErrCorruptedHeader)
	}
	t := Type(b[0])
	n, err := bodyLen(b[1:], t)
	if err != nil {
		return Value{}, nil, err
	}
	v, err := decodeBody(b[1:1+n], t)
	if err != nil {
		return Value{}, nil, err
	}
	return v, b[1+n:], nil
}

func encodeBody(v Value) []byte {
	switch v.typ {
	case TypeUint8:
		return []byte{v.raw.(uint8)}
	case TypeUint16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v.raw.(uint16))
		return b
	case TypeUint32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v.raw.(uint32))
		return b
	case TypeUint64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v.raw.(uint64))
		return b
	case TypeInt8:
		return []byte{byte(v.raw.(int8))}
	case TypeInt16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v.raw.(int16)))
		return b
	case TypeInt32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.raw.(int32)))
		return b
	case TypeInt64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.raw.(int64)))
		return b
	case TypeBool:
		if v.raw.(bool) {
			return []byte{1}
		}
		return []byte{0}
	case TypeRune:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.raw.(rune)))
		return b
	case TypeString:
		s := v.raw.(string)
		lenBuf := make([]byte, binary.MaxVarintLen64)
		n := binary.PutUvarint(lenBuf, uint64(len(s)))
		return append(lenBuf[:n], s...)
	case TypeFloat32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.raw.(float32)))
		return b
	case TypeFloat64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.raw.(float64)))
		return b
	case TypeDecimal:
		d := v.raw.(Decimal)
		sign := byte(0)
		mag := new(big.Int).Set(&d.Unscaled)
		if mag.Sign() < 0 {
			sign = 1
			mag.Neg(mag)
		}
		magBytes := mag.Bytes()
		lenBuf := make([]byte, binary.MaxVarintLen64)
		n := binary.PutUvarint(lenBuf, uint64(len(magBytes)))
		out := make([]byte, 0, 2+n+len(magBytes))
		out = append(out, d.Scale, sign)
		out = append(out, lenBuf[:n]...)
		return append(out, magBytes...)
	case TypeTimestamp:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.raw.(int64)))
		return b
	default:
		panic(fmt.Sprintf("value: unknown type %v", v.typ))
	}
}

// bodyLen returns how many bytes of b (with no null flag) the body of a
// value of type t occupies, without fully decoding it. Used by
// DecodeKey to find the boundary between a key and whatever follows it.
func bodyLen(b []byte, t Type) (int, error) {
	switch t {
	case TypeUint8, TypeInt8, TypeBool:
		return 1, nil
	case TypeUint16, TypeInt16:
		return 2, nil
	case TypeUint32, TypeInt32, TypeRune, TypeFloat32:
		return 4, nil
	case TypeUint64, TypeInt64, TypeFloat64, TypeTimestamp:
		return 8, nil
	case TypeString:
		n, sz := binary.Uvarint(b)
		if sz <= 0 {
			return 0, fmt.Errorf("value.bodyLen: bad string length prefix: %w", enginerr.ErrCorruptedHeader)
		}
		return sz + int(n), nil
	case TypeDecimal:
		if len(b) < 2 {
			return 0, fmt.Errorf("value.bodyLen: truncated decimal header: %w", enginerr.ErrCorruptedHeader)
		}
		n, sz := binary.Uvarint(b[2:])
		if sz <= 0 {
			return 0, fmt.Errorf("value.bodyLen: bad decimal length prefix: %w", enginerr.ErrCorruptedHeader)
		}
		return 2 + sz + int(n), nil
	default:
		return 0, fmt.Errorf("value.bodyLen: unknown type %v", t)
	}
}

func decodeBody(b []byte, t Type) (Value, error) {
	switch t {
	case TypeUint8:
		if len(b) < 1 {
			return Value{}, shortBuf(t)
		}
		return NewUint8(b[0]), nil
	case TypeUint16:
		if len(b) < 2 {
			return Value{}, shortBuf(t)
		}
		return NewUint16(binary.LittleEndian.Uint16(b)), nil
	case TypeUint32:
		if len(b) < 4 {
			return Value{}, shortBuf(t)
		}
		return NewUint32(binary.LittleEndian.Uint32(b)), nil
	case TypeUint64:
		if len(b) < 8 {
			return Value{}, shortBuf(t)
		}
		return NewUint64(binary.LittleEndian.Uint64(b)), nil
	case TypeInt8:
		if len(b) < 1 {
			return Value{}, shortBuf(t)
		}
		return NewInt8(int8(b[0])), nil
	case TypeInt16:
		if len(b) < 2 {
			return Value{}, shortBuf(t)
		}
		return NewInt16(int16(binary.LittleEndian.Uint16(b))), nil
	case TypeInt32:
		if len(b) < 4 {
			return Value{}, shortBuf(t)
		}
		return NewInt32(int32(binary.LittleEndian.Uint32(b))), nil
	case TypeInt64:
		if len(b) < 8 {
			return Value{}, shortBuf(t)
		}
		return NewInt64(int64(binary.LittleEndian.Uint64(b))), nil
	case TypeBool:
		if len(b) < 1 {
			return Value{}, shortBuf(t)
		}
		return NewBool(b[0] != 0), nil
	case TypeRune:
		if len(b) < 4 {
			return Value{}, shortBuf(t)
		}
		return NewRune(rune(binary.LittleEndian.Uint32(b))), nil
	case TypeString:
		n, sz := binary.Uvarint(b)
		if sz <= 0 || len(b) < sz+int(n) {
			return Value{}, shortBuf(t)
		}
		return NewString(string(b[sz : sz+int(n)])), nil
	case TypeFloat32:
		if len(b) < 4 {
			return Value{}, shortBuf(t)
		}
		return NewFloat32(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case TypeFloat64:
		if len(b) < 8 {
			return Value{}, shortBuf(t)
		}
		return NewFloat64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case TypeDecimal:
		if len(b) < 2 {
			return Value{}, shortBuf(t)
		}
		scale, sign := b[0], b[1]
		n, sz := binary.Uvarint(b[2:])
		if sz <= 0 || len(b) < 2+sz+int(n) {
			return Value{}, shortBuf(t)
		}
		mag := new(big.Int).SetBytes(b[2+sz : 2+sz+int(n)])
		if sign == 1 {
			mag.Neg(mag)
		}
		return NewDecimalValue(Decimal{Unscaled: *mag, Scale: scale}), nil
	case TypeTimestamp:
		if len(b) < 8 {
			return Value{}, shortBuf(t)
		}
		return NewTimestamp(int64(binary.LittleEndian.Uint64(b))), nil
	default:
		return Value{}, fmt.Errorf("value.decodeBody: unknown type %v", t)
	}
}

func shortBuf(t Type) error {
	return fmt.Errorf("value.decodeBody: short buffer for %v: %w", t, enginerr.ErrCorruptedHeader)
}

// Compare implements the total order for two Values of the same Type.
// Null sorts before any non-null value of that type; two nulls compare
// equal. Comparing values of different Types is a programmer error.
func Compare(a, b Value) int {
	if a.typ != b.typ {
		panic(fmt.Sprintf("value.Compare: mismatched types %v vs %v", a.typ, b.typ))
	}
	if a.null && b.null {
		return 0
	}
	if a.null {
		return -1
	}
	if b.null {
		return 1
	}
	switch a.typ {
	case TypeUint8:
		return cmpOrdered(a.raw.(uint8), b.raw.(uint8))
	case TypeUint16:
		return cmpOrdered(a.raw.(uint16), b.raw.(uint16))
	case TypeUint32:
		return cmpOrdered(a.raw.(uint32), b.raw.(uint32))
	case TypeUint64:
		return cmpOrdered(a.raw.(uint64), b.raw.(uint64))
	case TypeInt8:
		return cmpOrdered(a.raw.(int8), b.raw.(int8))
	case TypeInt16:
		return cmpOrdered(a.raw.(int16), b.raw.(int16))
	case TypeInt32:
		return cmpOrdered(a.raw.(int32), b.raw.(int32))
	case TypeInt64:
		return cmpOrdered(a.raw.(int64), b.raw.(int64))
	case TypeBool:
		av, bv := a.raw.(bool), b.raw.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case TypeRune:
		return cmpOrdered(a.raw.(rune), b.raw.(rune))
	case TypeString:
		av, bv := a.raw.(string), b.raw.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case TypeFloat32:
		return cmpOrdered(a.raw.(float32), b.raw.(float32))
	case TypeFloat64:
		return cmpOrdered(a.raw.(float64), b.raw.(float64))
	case TypeDecimal:
		return a.raw.(Decimal).Rat().Cmp(b.raw.(Decimal).Rat())
	case TypeTimestamp:
		return cmpOrdered(a.raw.(int64), b.raw.(int64))
	default:
		panic(fmt.Sprintf("value.Compare: unknown type %v", a.typ))
	}
}

type ordered interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

func cmpOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
