// Package expr models boolean predicates as small immutable expression trees.
//
// A predicate is a Lambda: a list of parameters plus a body. Bodies are built
// from the node types in this file and can be combined with And, Or and
// ToSingleExpression, evaluated in memory with Eval, or compiled to a Postgres
// WHERE clause with ToSQL.
package expr

import "fmt"

// Node is implemented by every expression node type in this package.
type Node interface {
	fmt.Stringer
	node()
}

// Op identifies a unary or binary operator.
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpNot
	OpNeg
)

var opNames = map[Op]string{
	OpAnd: "&&",
	OpOr:  "||",
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpAdd: "+",
	OpSub: "-",
	OpNot: "!",
	OpNeg: "-",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Method names understood by Eval and ToSQL.
const (
	MethodContains   = "Contains"
	MethodStartsWith = "StartsWith"
	MethodEndsWith   = "EndsWith"
	MethodToLower    = "ToLower"
	MethodToUpper    = "ToUpper"
	MethodIn         = "In"
)

// Param is a parameter declaration. Identity is the pointer: two Params with
// the same name are still distinct parameters.
type Param struct {
	Name string
}

// Constant is a literal value.
type Constant struct {
	Value any
}

// Member reads the named field of Target.
type Member struct {
	Target Node
	Name   string
}

// Unary applies Op to X.
type Unary struct {
	Op Op
	X  Node
}

// Binary applies Op to Left and Right.
type Binary struct {
	Op    Op
	Left  Node
	Right Node
}

// Call invokes Method on Object with Args.
type Call struct {
	Object Node
	Method string
	Args   []Node
}

// Conditional evaluates to IfTrue when Test holds and IfFalse otherwise.
type Conditional struct {
	Test    Node
	IfTrue  Node
	IfFalse Node
}

func (*Param) node()       {}
func (*Constant) node()    {}
func (*Member) node()      {}
func (*Unary) node()       {}
func (*Binary) node()      {}
func (*Call) node()        {}
func (*Conditional) node() {}

func (p *Param) String() string { return p.Name }

func (c *Constant) String() string {
	if s, ok := c.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", c.Value)
}

func (m *Member) String() string { return m.Target.String() + "." + m.Name }

func (u *Unary) String() string { return u.Op.String() + "(" + u.X.String() + ")" }

func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

func (c *Call) String() string {
	s := c.Object.String() + "." + c.Method + "("
	for i, a := range c.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ")"
}

func (c *Conditional) String() string {
	return "(" + c.Test.String() + " ? " + c.IfTrue.String() + " : " + c.IfFalse.String() + ")"
}

// Const returns a Constant node.
func Const(v any) *Constant { return &Constant{Value: v} }

// Field returns a member access on target.
func Field(target Node, name string) *Member { return &Member{Target: target, Name: name} }

// Not returns the logical negation of x.
func Not(x Node) *Unary { return &Unary{Op: OpNot, X: x} }

// Neg returns the arithmetic negation of x.
func Neg(x Node) *Unary { return &Unary{Op: OpNeg, X: x} }

// AndNode and OrNode are the merge operations used by And and Or.
func AndNode(left, right Node) Node { return &Binary{Op: OpAnd, Left: left, Right: right} }
func OrNode(left, right Node) Node  { return &Binary{Op: OpOr, Left: left, Right: right} }

func Eq(left, right Node) *Binary  { return &Binary{Op: OpEq, Left: left, Right: right} }
func Ne(left, right Node) *Binary  { return &Binary{Op: OpNe, Left: left, Right: right} }
func Lt(left, right Node) *Binary  { return &Binary{Op: OpLt, Left: left, Right: right} }
func Le(left, right Node) *Binary  { return &Binary{Op: OpLe, Left: left, Right: right} }
func Gt(left, right Node) *Binary  { return &Binary{Op: OpGt, Left: left, Right: right} }
func Ge(left, right Node) *Binary  { return &Binary{Op: OpGe, Left: left, Right: right} }
func Add(left, right Node) *Binary { return &Binary{Op: OpAdd, Left: left, Right: right} }
func Sub(left, right Node) *Binary { return &Binary{Op: OpSub, Left: left, Right: right} }

// Invoke returns a method call node.
func Invoke(object Node, method string, args ...Node) *Call {
	return &Call{Object: object, Method: method, Args: args}
}

// If returns a conditional node.
func If(test, ifTrue, ifFalse Node) *Conditional {
	return &Conditional{Test: test, IfTrue: ifTrue, IfFalse: ifFalse}
}
