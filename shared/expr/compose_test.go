package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type citizen struct {
	Name   string
	Age    int
	City   string
	Active bool
}

var citizens = []citizen{
	{Name: "Nino", Age: 34, City: "Tbilisi", Active: true},
	{Name: "Giorgi", Age: 17, City: "Batumi", Active: true},
	{Name: "Ana", Age: 52, City: "Tbilisi", Active: false},
	{Name: "Levan", Age: 21, City: "Kutaisi", Active: false},
	{Name: "", Age: 0, City: "", Active: false},
}

func adult() Lambda[citizen] {
	return Predicate[citizen]("c", func(c *Param) Node {
		return Ge(Field(c, "Age"), Const(18))
	})
}

func inTbilisi() Lambda[citizen] {
	return Predicate[citizen]("x", func(x *Param) Node {
		return Eq(Field(x, "City"), Const("Tbilisi"))
	})
}

func active() Lambda[citizen] {
	return Predicate[citizen]("p", func(p *Param) Node {
		return Field(p, "Active")
	})
}

func mustMatch(t *testing.T, l Lambda[citizen], c citizen) bool {
	t.Helper()
	ok, err := l.Matches(c)
	require.NoError(t, err, "predicate %s on %+v", l, c)
	return ok
}

func TestAndHoldsWhenBothHold(t *testing.T) {
	f, g := adult(), inTbilisi()
	both := And(f, g)
	for _, c := range citizens {
		assert.Equal(t, mustMatch(t, f, c) && mustMatch(t, g, c), mustMatch(t, both, c), "%+v", c)
	}
}

func TestOrHoldsWhenEitherHolds(t *testing.T) {
	f, g := adult(), inTbilisi()
	either := Or(f, g)
	for _, c := range citizens {
		assert.Equal(t, mustMatch(t, f, c) || mustMatch(t, g, c), mustMatch(t, either, c), "%+v", c)
	}
}

func TestComposeUsesFirstParams(t *testing.T) {
	f, g := adult(), inTbilisi()
	combined := And(f, g)

	require.Len(t, combined.Params(), 1)
	assert.Same(t, f.Params()[0], combined.Params()[0])

	second := g.Params()[0]
	Walk(combined.Body(), func(n Node) {
		assert.NotSame(t, second, n, "second parameter still referenced")
	})
}

func TestComposeDoesNotMutateInputs(t *testing.T) {
	f, g := adult(), inTbilisi()
	fBefore, gBefore := f.String(), g.String()
	gParam := g.Params()[0]

	_ = Or(f, g)

	assert.Equal(t, fBefore, f.String())
	assert.Equal(t, gBefore, g.String())
	assert.Same(t, gParam, g.Body().(*Binary).Left.(*Member).Target)

	for _, c := range citizens {
		want := c.City == "Tbilisi"
		assert.Equal(t, want, mustMatch(t, g, c))
	}
}

func TestComposeRewritesNestedNodes(t *testing.T) {
	f := adult()
	g := Predicate[citizen]("q", func(q *Param) Node {
		name := Field(q, "Name")
		return If(
			Not(Eq(Invoke(name, MethodToLower), Const(""))),
			Invoke(Invoke(name, MethodToLower), MethodStartsWith, Const("n")),
			Lt(Neg(Field(q, "Age")), Sub(Const(0), Const(100))),
		)
	})

	combined := And(f, g)
	gParam := g.Params()[0]
	Walk(combined.Body(), func(n Node) {
		if p, ok := n.(*Param); ok {
			assert.NotSame(t, gParam, p)
			assert.Same(t, f.Params()[0], p)
		}
	})

	assert.True(t, mustMatch(t, combined, citizens[0]))
	assert.False(t, mustMatch(t, combined, citizens[2]))
}

func TestComposeMergeFunction(t *testing.T) {
	xor := func(l, r Node) Node { return Ne(l, r) }
	combined := Compose(adult(), inTbilisi(), xor)
	for _, c := range citizens {
		want := (c.Age >= 18) != (c.City == "Tbilisi")
		assert.Equal(t, want, mustMatch(t, combined, c), "%+v", c)
	}
}

func TestComposeMultipleParams(t *testing.T) {
	a, b := &Param{Name: "a"}, &Param{Name: "b"}
	first := NewLambda[int](Lt(a, b), a, b)
	x, y := &Param{Name: "x"}, &Param{Name: "y"}
	second := NewLambda[int](Gt(Sub(y, x), Const(10)), x, y)

	combined := And(first, second)
	got, err := combined.Eval(1, 20)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = combined.Eval(1, 5)
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestComposeArityMismatchPanics(t *testing.T) {
	a, b := &Param{Name: "a"}, &Param{Name: "b"}
	two := NewLambda[int](Eq(a, b), a, b)
	assert.Panics(t, func() { And(adultInt(), two) })
	assert.Panics(t, func() { And(two, adultInt()) })
}

func adultInt() Lambda[int] {
	return Predicate[int]("n", func(n *Param) Node { return Ge(n, Const(18)) })
}

func TestToSingleExpressionAgreesWithChainedAnd(t *testing.T) {
	f, g, h := adult(), inTbilisi(), active()
	chained := And(And(f, g), h)
	folded := ToSingleExpression([]Lambda[citizen]{f, g, h})
	for _, c := range citizens {
		assert.Equal(t, mustMatch(t, chained, c), mustMatch(t, folded, c), "%+v", c)
	}
	assert.Equal(t, chained.String(), folded.String())
}

func TestToSingleExpressionSingleElement(t *testing.T) {
	f := adult()
	single := ToSingleExpression([]Lambda[citizen]{f})
	for _, c := range citizens {
		assert.Equal(t, mustMatch(t, f, c), mustMatch(t, single, c))
	}
}

func TestToSingleExpressionEmptyPanics(t *testing.T) {
	assert.Panics(t, func() { ToSingleExpression[citizen](nil) })
	assert.Panics(t, func() { ToSingleExpression([]Lambda[citizen]{}) })
}

func TestNewLambdaCopiesParams(t *testing.T) {
	p := &Param{Name: "p"}
	params := []*Param{p}
	l := NewLambda[int](Gt(p, Const(0)), params...)
	params[0] = &Param{Name: "other"}
	assert.Same(t, p, l.Params()[0])

	got := l.Params()
	got[0] = nil
	assert.Same(t, p, l.Params()[0])
}
