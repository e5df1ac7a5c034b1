// Package value implements the totally-ordered scalar domain shared by every
// other hierplan package: the Value tagged union, its ordering, and the
// handful of operations (prev/next, distance, subtract, midpoint) that the
// boundary algebra builds on.
//
// The shape mirrors the teacher's datalog.Value/CompareValues split
// (datalog/value.go, datalog/compare.go): a small closed set of kinds with a
// single comparison entry point, except here each Value also knows its own
// Kind so prev/next/midpoint can refuse to operate on kinds where those are
// undefined instead of guessing from a Go type switch.
package value

import (
	"fmt"
	"strings"

	"github.com/hierplan/hierplan/hierr"
)

// Kind identifies which of the few scalar kinds a Value holds.
type Kind int

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindDecimal
	KindBool
	KindEnumString
	KindString
	KindFixedBinary
)

func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindEnumString:
		return "enum_string"
	case KindString:
		return "string"
	case KindFixedBinary:
		return "fixed_binary"
	default:
		return "unknown"
	}
}

// isInteger-like kinds have well defined prev/next/distance/midpoint.
func (k Kind) isContinuousOrDiscreteOrdered() bool {
	switch k {
	case KindString, KindBool:
		return false
	default:
		return true
	}
}

// Decimal is a fixed-precision mantissa/exponent pair: value = mantissa *
// 10^exponent. Two decimals of different exponents are normalized to the
// smaller exponent before comparison so the order is exact.
type Decimal struct {
	Mantissa int64
	Exponent int32
}

// Value is an immutable tagged scalar. The zero Value is not meaningful;
// always construct through the New* helpers.
type Value struct {
	kind    Kind
	i       int64   // KindInt8/16/32/64
	bitSize int     // 8, 16, 32, 64 for integer kinds
	dec     Decimal // KindDecimal
	b       bool    // KindBool
	s       string  // KindString, and the literal form of KindEnumString
	enumIdx int     // KindEnumString: index into the shared vocabulary
	vocab   *Vocabulary
	bin     []byte // KindFixedBinary
}

func NewInt(bitSize int, v int64) Value {
	k := KindInt64
	switch bitSize {
	case 8:
		k = KindInt8
	case 16:
		k = KindInt16
	case 32:
		k = KindInt32
	case 64:
		k = KindInt64
	default:
		panic(fmt.Sprintf("value: unsupported integer bit width %d", bitSize))
	}
	return Value{kind: k, i: v, bitSize: bitSize}
}

func NewDecimal(mantissa int64, exponent int32) Value {
	return Value{kind: KindDecimal, dec: Decimal{Mantissa: mantissa, Exponent: exponent}}
}

func NewBool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

func NewString(v string) Value {
	return Value{kind: KindString, s: v}
}

// NewEnumString interns s into vocab and returns an enumerated-string value
// carrying the resulting vocabulary index. Two enum-string values compare by
// index, which is consistent with string order only because Vocabulary
// assigns indices in first-seen (insertion) order during loading and the
// loader is expected to have inserted every distinct string in sorted order;
// callers that need plain lexicographic order should use KindString instead.
func NewEnumString(vocab *Vocabulary, s string) Value {
	idx := vocab.Intern(s)
	return Value{kind: KindEnumString, s: s, enumIdx: idx, vocab: vocab}
}

func NewFixedBinary(bits []byte) Value {
	cp := make([]byte, len(bits))
	copy(cp, bits)
	return Value{kind: KindFixedBinary, bin: cp}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IntBitWidth() int { return v.bitSize }

func (v Value) AsInt() int64 {
	if v.kind != KindInt8 && v.kind != KindInt16 && v.kind != KindInt32 && v.kind != KindInt64 {
		panic("value: AsInt on non-integer value")
	}
	return v.i
}

func (v Value) AsDecimal() Decimal { return v.dec }
func (v Value) AsBool() bool       { return v.b }
func (v Value) AsString() string   { return v.s }
func (v Value) AsFixedBinary() []byte {
	cp := make([]byte, len(v.bin))
	copy(cp, v.bin)
	return cp
}
func (v Value) EnumIndex() int { return v.enumIdx }

// Clone returns an independent copy. Values are immutable scalars so this is
// a value copy except for the fixed-binary payload, which is defensively
// re-sliced.
func (v Value) Clone() Value {
	if v.kind == KindFixedBinary {
		return NewFixedBinary(v.bin)
	}
	return v
}

func (v Value) sameKind(other Value) error {
	if v.kind != other.kind {
		return hierr.Wrap(hierr.ErrTypeMismatch, fmt.Sprintf("cannot compare %s with %s", v.kind, other.kind))
	}
	return nil
}

// decimalCompare normalizes both decimals to the smaller exponent.
func decimalCompare(a, b Decimal) int {
	ae, be := a.Exponent, b.Exponent
	am, bm := a.Mantissa, b.Mantissa
	for ae > be {
		am *= 10
		ae--
	}
	for be > ae {
		bm *= 10
		be--
	}
	switch {
	case am < bm:
		return -1
	case am > bm:
		return 1
	default:
		return 0
	}
}

// Compare returns -1/0/1 for v </==/> other. It returns a TypeMismatch-kind
// error (via hierr) if the kinds differ; callers that build boundaries
// from heterogeneous inputs must normalize kinds first.
func Compare(v, other Value) (int, error) {
	if err := v.sameKind(other); err != nil {
		return 0, err
	}
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		switch {
		case v.i < other.i:
			return -1, nil
		case v.i > other.i:
			return 1, nil
		default:
			return 0, nil
		}
	case KindDecimal:
		return decimalCompare(v.dec, other.dec), nil
	case KindBool:
		if v.b == other.b {
			return 0, nil
		}
		if !v.b {
			return -1, nil
		}
		return 1, nil
	case KindEnumString:
		switch {
		case v.enumIdx < other.enumIdx:
			return -1, nil
		case v.enumIdx > other.enumIdx:
			return 1, nil
		default:
			return 0, nil
		}
	case KindString:
		return strings.Compare(v.s, other.s), nil
	case KindFixedBinary:
		return strings.Compare(string(v.bin), string(other.bin)), nil
	default:
		return 0, hierr.Wrap(hierr.ErrTypeMismatch, "unknown value kind")
	}
}

// Equal reports structural equality, including kind.
func Equal(v, other Value) bool {
	c, err := Compare(v, other)
	return err == nil && c == 0
}

// Next returns the smallest value strictly greater than v under the domain's
// discrete successor function. Undefined (UnsupportedOperation) for strings
// and bools, per the data model.
func Next(v Value) (Value, error) {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return Value{kind: v.kind, i: v.i + 1, bitSize: v.bitSize}, nil
	case KindDecimal:
		return Value{kind: KindDecimal, dec: Decimal{Mantissa: v.dec.Mantissa + 1, Exponent: v.dec.Exponent}}, nil
	case KindEnumString:
		s, ok := v.vocab.Lookup(v.enumIdx + 1)
		if !ok {
			return Value{}, hierr.Wrap(hierr.ErrUnsupportedOperation, "next undefined: enum index is last in vocabulary")
		}
		return Value{kind: KindEnumString, s: s, enumIdx: v.enumIdx + 1, vocab: v.vocab}, nil
	default:
		return Value{}, hierr.Wrap(hierr.ErrUnsupportedOperation, fmt.Sprintf("next undefined for kind %s", v.kind))
	}
}

// Prev is the discrete predecessor, symmetric to Next.
func Prev(v Value) (Value, error) {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return Value{kind: v.kind, i: v.i - 1, bitSize: v.bitSize}, nil
	case KindDecimal:
		return Value{kind: KindDecimal, dec: Decimal{Mantissa: v.dec.Mantissa - 1, Exponent: v.dec.Exponent}}, nil
	case KindEnumString:
		if v.enumIdx == 0 {
			return Value{}, hierr.Wrap(hierr.ErrUnsupportedOperation, "prev undefined: enum index is first in vocabulary")
		}
		s, _ := v.vocab.Lookup(v.enumIdx - 1)
		return Value{kind: KindEnumString, s: s, enumIdx: v.enumIdx - 1, vocab: v.vocab}, nil
	default:
		return Value{}, hierr.Wrap(hierr.ErrUnsupportedOperation, fmt.Sprintf("prev undefined for kind %s", v.kind))
	}
}

// Distance returns an integer-like measure of |v - other| + 1, so two equal
// values are distance 1 apart and two adjacent values (Next(v) == other)
// are distance 2 apart. The +1 offset is what lets the boundary "touching"
// test in ComplexBoundary construction use a single threshold (<= 2) to mean
// "equal or adjacent" without a separate equality check.
func Distance(v, other Value) (int64, error) {
	if err := v.sameKind(other); err != nil {
		return 0, err
	}
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		d := v.i - other.i
		if d < 0 {
			d = -d
		}
		return d + 1, nil
	case KindDecimal:
		// Normalize then take |mantissa difference| at the shared exponent;
		// the unit is "smallest representable step", which is what
		// Interval.Touches compares against.
		ae, be := v.dec.Exponent, other.dec.Exponent
		am, bm := v.dec.Mantissa, other.dec.Mantissa
		for ae > be {
			am *= 10
			ae--
		}
		for be > ae {
			bm *= 10
			be--
		}
		d := am - bm
		if d < 0 {
			d = -d
		}
		return d + 1, nil
	case KindEnumString:
		d := int64(v.enumIdx - other.enumIdx)
		if d < 0 {
			d = -d
		}
		return d + 1, nil
	default:
		return 0, hierr.Wrap(hierr.ErrUnsupportedOperation, fmt.Sprintf("distance undefined for kind %s", v.kind))
	}
}

// Sub performs a signed subtraction v - other, used by interval-length
// computations. Same domain restriction as Distance but signed.
func Sub(v, other Value) (int64, error) {
	if err := v.sameKind(other); err != nil {
		return 0, err
	}
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i - other.i, nil
	case KindDecimal:
		ae, be := v.dec.Exponent, other.dec.Exponent
		am, bm := v.dec.Mantissa, other.dec.Mantissa
		for ae > be {
			am *= 10
			ae--
		}
		for be > ae {
			bm *= 10
			be--
		}
		return am - bm, nil
	case KindEnumString:
		return int64(v.enumIdx - other.enumIdx), nil
	default:
		return 0, hierr.Wrap(hierr.ErrUnsupportedOperation, fmt.Sprintf("subtract undefined for kind %s", v.kind))
	}
}

// Midpoint returns the convex combination low*(1-ratio) + high*ratio,
// ratio in [0,1]. Undefined for strings and bools.
func Midpoint(low, high Value, ratio float64) (Value, error) {
	if err := low.sameKind(high); err != nil {
		return Value{}, err
	}
	if ratio < 0 || ratio > 1 {
		return Value{}, hierr.Wrap(hierr.ErrInvariantViolation, "midpoint ratio out of [0,1]")
	}
	switch low.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		m := low.i + int64(float64(high.i-low.i)*ratio)
		return Value{kind: low.kind, i: m, bitSize: low.bitSize}, nil
	case KindDecimal:
		lf := float64(low.dec.Mantissa)
		hf := float64(high.dec.Mantissa)
		if low.dec.Exponent != high.dec.Exponent {
			return Value{}, hierr.Wrap(hierr.ErrInvariantViolation, "midpoint requires matching decimal exponents")
		}
		m := int64(lf + (hf-lf)*ratio)
		return Value{kind: KindDecimal, dec: Decimal{Mantissa: m, Exponent: low.dec.Exponent}}, nil
	case KindEnumString:
		idx := low.enumIdx + int(float64(high.enumIdx-low.enumIdx)*ratio)
		s, ok := low.vocab.Lookup(idx)
		if !ok {
			return Value{}, hierr.Wrap(hierr.ErrInvariantViolation, "midpoint produced an out-of-range enum index")
		}
		return Value{kind: KindEnumString, s: s, enumIdx: idx, vocab: low.vocab}, nil
	default:
		return Value{}, hierr.Wrap(hierr.ErrUnsupportedOperation, fmt.Sprintf("midpoint undefined for kind %s", low.kind))
	}
}

// String renders a Value for diagnostics (plan dumps, test failure
// messages); it is not part of any wire format.
func (v Value) String() string {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindDecimal:
		return fmt.Sprintf("%de%d", v.dec.Mantissa, v.dec.Exponent)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindEnumString:
		return fmt.Sprintf("%s(#%d)", v.s, v.enumIdx)
	case KindString:
		return v.s
	case KindFixedBinary:
		return fmt.Sprintf("0x%x", v.bin)
	default:
		return "<invalid>"
	}
}
