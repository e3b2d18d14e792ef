package expr

import "fmt"

// Lambda is an expression over a fixed parameter list. T is the type of the
// value the first parameter stands for; it is not inspected, it only keeps
// predicates over different entity types from being combined.
type Lambda[T any] struct {
	params []*Param
	body   Node
}

// NewLambda returns a lambda with the given body and parameters.
func NewLambda[T any](body Node, params ...*Param) Lambda[T] {
	ps := make([]*Param, len(params))
	copy(ps, params)
	return Lambda[T]{params: ps, body: body}
}

// Predicate builds a single-parameter lambda. build receives the parameter
// and returns the body.
func Predicate[T any](name string, build func(p *Param) Node) Lambda[T] {
	p := &Param{Name: name}
	return NewLambda[T](build(p), p)
}

// Params returns a copy of the parameter list.
func (l Lambda[T]) Params() []*Param {
	ps := make([]*Param, len(l.params))
	copy(ps, l.params)
	return ps
}

// Body returns the lambda body.
func (l Lambda[T]) Body() Node { return l.body }

func (l Lambda[T]) String() string {
	s := "("
	for i, p := range l.params {
		if i > 0 {
			s += ", "
		}
		s += p.Name
	}
	if l.body == nil {
		return s + ") => <nil>"
	}
	return s + ") => " + l.body.String()
}

// Compose merges first and second into a lambda over first's parameters.
// Parameters of second are bound to first's by position and every reference
// to them in second's body is rewritten; merge then joins the two bodies.
// Neither input is modified.
//
// Both lambdas must declare the same number of parameters; Compose panics
// otherwise.
func Compose[T any](first, second Lambda[T], merge func(left, right Node) Node) Lambda[T] {
	if len(first.params) != len(second.params) {
		panic(fmt.Sprintf("expr: cannot compose lambdas with %d and %d parameters",
			len(first.params), len(second.params)))
	}
	bindings := make(map[*Param]*Param, len(first.params))
	for i, f := range first.params {
		bindings[second.params[i]] = f
	}
	secondBody := ReplaceParams(bindings, second.body)

	return NewLambda[T](merge(first.body, secondBody), first.params...)
}

// And returns a predicate that holds when both first and second hold.
func And[T any](first, second Lambda[T]) Lambda[T] {
	return Compose(first, second, AndNode)
}

// Or returns a predicate that holds when first or second holds.
func Or[T any](first, second Lambda[T]) Lambda[T] {
	return Compose(first, second, OrNode)
}

// ToSingleExpression folds exprs left to right with And. It panics when exprs
// is empty.
func ToSingleExpression[T any](exprs []Lambda[T]) Lambda[T] {
	single := exprs[0]
	for i := 1; i < len(exprs); i++ {
		single = And(single, exprs[i])
	}
	return single
}
