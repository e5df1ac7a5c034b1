package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareInt(t *testing.T) {
	a := NewInt(32, 10)
	b := NewInt(32, 20)
	c, err := Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(b, a)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = Compare(a, a)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestCompareTypeMismatch(t *testing.T) {
	_, err := Compare(NewInt(32, 1), NewBool(true))
	require.Error(t, err)
}

func TestNextPrevInt(t *testing.T) {
	v := NewInt(32, 5)
	n, err := Next(v)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n.AsInt())

	p, err := Prev(v)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.AsInt())
}

func TestNextUnsupportedForString(t *testing.T) {
	_, err := Next(NewString("abc"))
	require.Error(t, err)
}

func TestMidpointUnsupportedForBool(t *testing.T) {
	_, err := Midpoint(NewBool(false), NewBool(true), 0.5)
	require.Error(t, err)
}

func TestMidpointInt(t *testing.T) {
	m, err := Midpoint(NewInt(64, 0), NewInt(64, 1000000), 0.5)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), m.AsInt())
}

func TestDistanceAlwaysAtLeastOne(t *testing.T) {
	d, err := Distance(NewInt(32, 10), NewInt(32, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(8), d)

	d, err = Distance(NewInt(32, 3), NewInt(32, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(8), d)

	d, err = Distance(NewInt(32, 5), NewInt(32, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(1), d, "distance between equal values is the contract's minimum, 1, not 0")
}

func TestEnumStringOrdersByInternOrder(t *testing.T) {
	vocab := NewVocabulary()
	a := NewEnumString(vocab, "alpha")
	b := NewEnumString(vocab, "beta")
	aAgain := NewEnumString(vocab, "alpha")

	assert.True(t, Equal(a, aAgain))
	c, err := Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestVocabularyInternIsStable(t *testing.T) {
	vocab := NewVocabulary()
	i1 := vocab.Intern("x")
	i2 := vocab.Intern("x")
	assert.Equal(t, i1, i2)
	s, ok := vocab.Lookup(i1)
	require.True(t, ok)
	assert.Equal(t, "x", s)
}

func TestDecimalCompareAcrossExponents(t *testing.T) {
	// 1.5 vs 1.50 represented with different exponents.
	a := NewDecimal(15, -1)
	b := NewDecimal(150, -2)
	c, err := Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestBitmapOrAndCount(t *testing.T) {
	a := NewBitmap(8).Set(0).Set(2)
	b := NewBitmap(8).Set(2).Set(3)

	or := Or(a, b)
	assert.True(t, or.Get(0))
	assert.True(t, or.Get(2))
	assert.True(t, or.Get(3))
	assert.Equal(t, uint(3), or.Count())

	and := And(a, b)
	assert.False(t, and.Get(0))
	assert.True(t, and.Get(2))
	assert.Equal(t, uint(1), and.Count())
}

func TestBitmapEachSetIsOrdered(t *testing.T) {
	b := NewBitmap(10).Set(5).Set(1).Set(7)
	var seen []uint
	b.EachSet(func(pos uint) { seen = append(seen, pos) })
	assert.Equal(t, []uint{1, 5, 7}, seen)
}
