package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierplan/hierplan/value"
)

func TestAttributeCloneEqual(t *testing.T) {
	a := Attribute{Name: "x", Kind: value.KindInt64}
	clone := a.Clone()
	assert.True(t, a.Equal(clone))
}

func TestLiteralAttributesEmpty(t *testing.T) {
	l := Literal{Val: value.NewInt(64, 5)}
	assert.Empty(t, l.Attributes())
}

func TestFunctionExpressionAttributesUnion(t *testing.T) {
	f := FunctionExpression{
		Op: "add",
		Children: []Expression{
			Attribute{Name: "a", Kind: value.KindInt64},
			Attribute{Name: "b", Kind: value.KindInt64},
		},
		Kind: value.KindInt64,
	}
	attrs := f.Attributes()
	assert.Len(t, attrs, 2)
	_, hasA := attrs["a"]
	_, hasB := attrs["b"]
	assert.True(t, hasA)
	assert.True(t, hasB)
}

func TestIsAndOnlyTrue(t *testing.T) {
	leaf1 := Attribute{Name: "a", Kind: value.KindBool}
	leaf2 := Attribute{Name: "b", Kind: value.KindBool}
	leaf3 := Attribute{Name: "c", Kind: value.KindBool}
	inner := FunctionExpression{Op: "and", Children: []Expression{leaf2, leaf3}, Kind: value.KindBool}
	outer := FunctionExpression{Op: "and", Children: []Expression{leaf1, inner}, Kind: value.KindBool}
	assert.True(t, outer.IsAndOnly("and"))
}

func TestIsAndOnlyFalseWhenMixedOp(t *testing.T) {
	leaf1 := Attribute{Name: "a", Kind: value.KindBool}
	leaf2 := Attribute{Name: "b", Kind: value.KindBool}
	orNode := FunctionExpression{Op: "or", Children: []Expression{leaf1, leaf2}, Kind: value.KindBool}
	outer := FunctionExpression{Op: "and", Children: []Expression{leaf1, orNode}, Kind: value.KindBool}
	assert.False(t, outer.IsAndOnly("and"))
}

func TestGetSubExpressionsFlattens(t *testing.T) {
	leaf1 := Attribute{Name: "a", Kind: value.KindBool}
	leaf2 := Attribute{Name: "b", Kind: value.KindBool}
	leaf3 := Attribute{Name: "c", Kind: value.KindBool}
	inner := FunctionExpression{Op: "and", Children: []Expression{leaf2, leaf3}, Kind: value.KindBool}
	outer := FunctionExpression{Op: "and", Children: []Expression{leaf1, inner}, Kind: value.KindBool}

	subs := outer.GetSubExpressions("and")
	require.Len(t, subs, 3)
	assert.Equal(t, leaf1, subs[0])
	assert.Equal(t, leaf2, subs[1])
	assert.Equal(t, leaf3, subs[2])
}

func TestConnectExpressionPadsSingleton(t *testing.T) {
	leaf := Attribute{Name: "a", Kind: value.KindBool}
	conn := ConnectExpression("and0", "and", []Expression{leaf}, false)
	f, ok := conn.(FunctionExpression)
	require.True(t, ok)
	assert.Equal(t, "and", f.Op)
	require.Len(t, f.Children, 2)
	lit, ok := f.Children[1].(Literal)
	require.True(t, ok)
	assert.True(t, lit.Val.AsBool())
}

func TestConnectExpressionOrIdentityIsFalse(t *testing.T) {
	leaf := Attribute{Name: "a", Kind: value.KindBool}
	conn := ConnectExpression("or0", "or", []Expression{leaf}, false)
	f := conn.(FunctionExpression)
	lit := f.Children[1].(Literal)
	assert.False(t, lit.Val.AsBool())
}

func TestConnectExpressionMultipleIsRightLeaning(t *testing.T) {
	a := Attribute{Name: "a", Kind: value.KindBool}
	b := Attribute{Name: "b", Kind: value.KindBool}
	c := Attribute{Name: "c", Kind: value.KindBool}
	conn := ConnectExpression("and0", "and", []Expression{a, b, c}, false)

	top := conn.(FunctionExpression)
	assert.Equal(t, a, top.Children[0])
	inner, ok := top.Children[1].(FunctionExpression)
	require.True(t, ok)
	assert.Equal(t, b, inner.Children[0])
	assert.Equal(t, c, inner.Children[1])
}

func TestIfFunctionExpressionTypeFollowsThen(t *testing.T) {
	ifExpr := IfFunctionExpression{
		If:   Attribute{Name: "cond", Kind: value.KindBool},
		Then: Attribute{Name: "a", Kind: value.KindInt64},
		Else: Attribute{Name: "b", Kind: value.KindInt64},
	}
	assert.Equal(t, value.KindInt64, ifExpr.Type())
}

func TestSortedAttributesDeterministic(t *testing.T) {
	f := FunctionExpression{
		Op: "add",
		Children: []Expression{
			Attribute{Name: "z", Kind: value.KindInt64},
			Attribute{Name: "a", Kind: value.KindInt64},
		},
		Kind: value.KindInt64,
	}
	assert.Equal(t, []string{"a", "z"}, SortedAttributes(f))
}

func TestRequireTypeMismatch(t *testing.T) {
	a := Attribute{Name: "x", Kind: value.KindInt64}
	err := RequireType(a, value.KindBool)
	require.Error(t, err)
}
