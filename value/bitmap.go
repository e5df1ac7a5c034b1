package value

import "github.com/bits-and-blooms/bitset"

// Bitmap is a fixed-binary value realized as a dense bitset over schema
// attribute positions (or, in the scan-parameter core, over measure/pred
// positions). It is the Go stand-in for the original's
// boost::dynamic_bitset<> fields (read_attributes, project_attributes,
// direct_measures, possible_measures, passed_preds) and for the
// valid_attributes/passed_preds/direct_measures columns the plan builder
// emits as literal fixed-binary values.
type Bitmap struct {
	bits *bitset.BitSet
}

// NewBitmap returns a bitmap with capacity for at least n bits, all clear.
func NewBitmap(n uint) Bitmap {
	return Bitmap{bits: bitset.New(n)}
}

func (b Bitmap) Set(i uint) Bitmap {
	b.bits.Set(i)
	return b
}

func (b Bitmap) Clear(i uint) Bitmap {
	b.bits.Clear(i)
	return b
}

func (b Bitmap) Get(i uint) bool {
	if b.bits == nil {
		return false
	}
	return b.bits.Test(i)
}

func (b Bitmap) Count() uint {
	if b.bits == nil {
		return 0
	}
	return b.bits.Count()
}

func (b Bitmap) Len() uint {
	if b.bits == nil {
		return 0
	}
	return b.bits.Len()
}

func (b Bitmap) Clone() Bitmap {
	if b.bits == nil {
		return NewBitmap(0)
	}
	return Bitmap{bits: b.bits.Clone()}
}

// Or returns the bitwise union, matching bitmap_or in the plan builder's
// aggregate-measure step.
func Or(a, b Bitmap) Bitmap {
	switch {
	case a.bits == nil:
		return b.Clone()
	case b.bits == nil:
		return a.Clone()
	default:
		return Bitmap{bits: a.bits.Union(b.bits)}
	}
}

// And returns the bitwise intersection, used by the hierarchical
// partitioner's candidate-pair search to measure how far two column groups'
// query-usage patterns overlap.
func And(a, b Bitmap) Bitmap {
	switch {
	case a.bits == nil || b.bits == nil:
		return NewBitmap(0)
	default:
		return Bitmap{bits: a.bits.Intersection(b.bits)}
	}
}

// AsFixedBinary snapshots the bitmap into an immutable Value of kind
// KindFixedBinary, the form it takes once it becomes a literal plan column.
// Bit i of the bitmap becomes bit (i mod 8) of byte (i / 8), little-endian
// within each byte, which keeps the encoding independent of the underlying
// bitset library's internal word layout.
func (b Bitmap) AsFixedBinary() Value {
	if b.bits == nil {
		return NewFixedBinary(nil)
	}
	n := b.bits.Len()
	out := make([]byte, (n+7)/8)
	b.EachSet(func(pos uint) {
		out[pos/8] |= 1 << (pos % 8)
	})
	return NewFixedBinary(out)
}

// Equal reports whether b and other have exactly the same set bits, used by
// the hierarchical partitioner's unit-column-group construction to decide
// whether two attributes share the same query-access pattern.
func (b Bitmap) Equal(other Bitmap) bool {
	switch {
	case b.bits == nil && other.bits == nil:
		return true
	case b.bits == nil:
		return other.Count() == 0
	case other.bits == nil:
		return b.Count() == 0
	default:
		return b.bits.Equal(other.bits)
	}
}

// SetAll sets every bit in positions.
func (b Bitmap) SetAll(positions []uint) Bitmap {
	for _, p := range positions {
		b.bits.Set(p)
	}
	return b
}

// EachSet calls fn for every set bit position, in ascending order — used
// wherever plan emission must iterate a bitmap deterministically (the
// Schema ordering open question applies here too: always walk bitmaps by
// position, never by whatever order a map would give).
func (b Bitmap) EachSet(fn func(pos uint)) {
	if b.bits == nil {
		return
	}
	for i, ok := b.bits.NextSet(0); ok; i, ok = b.bits.NextSet(i + 1) {
		fn(i)
	}
}
