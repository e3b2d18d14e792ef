package expr

import "fmt"

// Rewrite returns a copy of n. Every node is offered to replace first, in
// pre-order; when replace reports true its result is used as-is and the
// original subtree is not visited. All other nodes are copied with their
// children rewritten, so the input tree is never modified.
func Rewrite(n Node, replace func(Node) (Node, bool)) Node {
	if n == nil {
		return nil
	}
	if r, ok := replace(n); ok {
		return r
	}
	switch v := n.(type) {
	case *Param:
		return v
	case *Constant:
		return &Constant{Value: v.Value}
	case *Member:
		return &Member{Target: Rewrite(v.Target, replace), Name: v.Name}
	case *Unary:
		return &Unary{Op: v.Op, X: Rewrite(v.X, replace)}
	case *Binary:
		return &Binary{Op: v.Op, Left: Rewrite(v.Left, replace), Right: Rewrite(v.Right, replace)}
	case *Call:
		args := make([]Node, len(v.Args))
		for i, a := range v.Args {
			args[i] = Rewrite(a, replace)
		}
		return &Call{Object: Rewrite(v.Object, replace), Method: v.Method, Args: args}
	case *Conditional:
		return &Conditional{
			Test:    Rewrite(v.Test, replace),
			IfTrue:  Rewrite(v.IfTrue, replace),
			IfFalse: Rewrite(v.IfFalse, replace),
		}
	default:
		panic(fmt.Sprintf("expr: unknown node type %T", n))
	}
}

// ReplaceParams rewrites n so that every reference to a key of bindings
// points at the mapped parameter instead.
func ReplaceParams(bindings map[*Param]*Param, n Node) Node {
	return Rewrite(n, func(n Node) (Node, bool) {
		p, ok := n.(*Param)
		if !ok {
			return nil, false
		}
		if to, ok := bindings[p]; ok {
			return to, true
		}
		return p, true
	})
}

// Walk calls fn for every node of n in pre-order.
func Walk(n Node, fn func(Node)) {
	Rewrite(n, func(n Node) (Node, bool) {
		fn(n)
		return nil, false
	})
}
