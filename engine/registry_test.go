package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierplan/hierplan/value"
)

func TestRegistrySetAndFullDomain(t *testing.T) {
	r := NewRegistry()
	r.Set("a", DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 99)})

	rng, err := r.FullDomain("a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rng.Min.AsInt())
	assert.Equal(t, int64(99), rng.Max.AsInt())
}

func TestRegistryFullDomainUnregisteredAttribute(t *testing.T) {
	r := NewRegistry()
	_, err := r.FullDomain("missing")
	assert.Error(t, err)
}

func TestRegistryAttributes(t *testing.T) {
	r := NewRegistry()
	r.Set("a", DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 1)})
	r.Set("b", DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 1)})
	assert.ElementsMatch(t, []string{"a", "b"}, r.Attributes())
}

func TestFunctionRegistryResolveIsStablePerName(t *testing.T) {
	f := NewFunctionRegistry()
	sum1 := f.Resolve("sum")
	gt := f.Resolve("gt")
	sum2 := f.Resolve("sum")

	assert.Equal(t, sum1, sum2)
	assert.NotEqual(t, sum1, gt)
}

func TestParseEngineVariant(t *testing.T) {
	v, err := ParseEngineVariant("arrow")
	require.NoError(t, err)
	assert.Equal(t, EngineArrow, v)
	assert.Equal(t, "arrow", v.String())

	v, err = ParseEngineVariant("velox")
	require.NoError(t, err)
	assert.Equal(t, EngineVelox, v)
	assert.Equal(t, "velox", v.String())

	_, err = ParseEngineVariant("bogus")
	assert.Error(t, err)
}

func TestNewContextBundlesFreshState(t *testing.T) {
	ctx := NewContext(EngineArrow)
	require.NotNil(t, ctx.Domains)
	require.NotNil(t, ctx.Functions)
	require.NotNil(t, ctx.Vocab)
	assert.Equal(t, EngineArrow, ctx.Engine)
}
