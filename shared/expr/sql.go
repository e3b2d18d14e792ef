package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// ErrUnsupported is returned by ToSQL for expressions that have no Postgres
// rendering.
var ErrUnsupported = errors.New("expr: unsupported in SQL")

// ToSQL compiles a single-parameter predicate to a Postgres boolean
// expression. Member accesses on the parameter are looked up in columns
// (field name to column name); constants become positional placeholders
// numbered from argOffset+1 and are returned in args.
func ToSQL[T any](l Lambda[T], columns map[string]string, argOffset int) (string, []any, error) {
	if len(l.params) != 1 {
		return "", nil, fmt.Errorf("%w: lambda with %d parameters", ErrUnsupported, len(l.params))
	}
	c := &sqlCompiler{param: l.params[0], columns: columns, offset: argOffset}
	where, err := c.compile(l.body)
	if err != nil {
		return "", nil, err
	}
	return where, c.args, nil
}

type sqlCompiler struct {
	param   *Param
	columns map[string]string
	offset  int
	args    []any
}

func (c *sqlCompiler) bind(v any) string {
	c.args = append(c.args, v)
	return "$" + strconv.Itoa(c.offset+len(c.args))
}

var sqlOps = map[Op]string{
	OpAnd: "AND",
	OpOr:  "OR",
	OpEq:  "=",
	OpNe:  "<>",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpAdd: "+",
	OpSub: "-",
}

func (c *sqlCompiler) compile(n Node) (string, error) {
	switch v := n.(type) {
	case *Param:
		return "", fmt.Errorf("%w: bare parameter %s", ErrUnsupported, v.Name)
	case *Constant:
		switch val := v.Value.(type) {
		case nil:
			return "NULL", nil
		case bool:
			if val {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		return c.bind(v.Value), nil
	case *Member:
		if v.Target != c.param {
			return "", fmt.Errorf("%w: member %s of %s", ErrUnsupported, v.Name, v.Target)
		}
		col, ok := c.columns[v.Name]
		if !ok {
			return "", fmt.Errorf("%w: no column for field %s", ErrUnsupported, v.Name)
		}
		return pq.QuoteIdentifier(col), nil
	case *Unary:
		x, err := c.compile(v.X)
		if err != nil {
			return "", err
		}
		switch v.Op {
		case OpNot:
			return "(NOT " + x + ")", nil
		case OpNeg:
			return "(-" + x + ")", nil
		}
		return "", fmt.Errorf("%w: unary %s", ErrUnsupported, v.Op)
	case *Binary:
		return c.binary(v)
	case *Call:
		return c.call(v)
	case *Conditional:
		test, err := c.compile(v.Test)
		if err != nil {
			return "", err
		}
		a, err := c.compile(v.IfTrue)
		if err != nil {
			return "", err
		}
		b, err := c.compile(v.IfFalse)
		if err != nil {
			return "", err
		}
		return "(CASE WHEN " + test + " THEN " + a + " ELSE " + b + " END)", nil
	}
	return "", fmt.Errorf("%w: node %T", ErrUnsupported, n)
}

func isNull(n Node) bool {
	k, ok := n.(*Constant)
	return ok && k.Value == nil
}

func (c *sqlCompiler) binary(b *Binary) (string, error) {
	op, ok := sqlOps[b.Op]
	if !ok {
		return "", fmt.Errorf("%w: binary %s", ErrUnsupported, b.Op)
	}
	if b.Op == OpEq || b.Op == OpNe {
		operand := b.Left
		if isNull(b.Left) {
			operand = b.Right
		}
		if isNull(b.Left) || isNull(b.Right) {
			x, err := c.compile(operand)
			if err != nil {
				return "", err
			}
			if b.Op == OpEq {
				return "(" + x + " IS NULL)", nil
			}
			return "(" + x + " IS NOT NULL)", nil
		}
	}
	left, err := c.compile(b.Left)
	if err != nil {
		return "", err
	}
	right, err := c.compile(b.Right)
	if err != nil {
		return "", err
	}
	return "(" + left + " " + op + " " + right + ")", nil
}

func (c *sqlCompiler) call(call *Call) (string, error) {
	obj, err := c.compile(call.Object)
	if err != nil {
		return "", err
	}
	switch call.Method {
	case MethodToLower:
		return "lower(" + obj + ")", nil
	case MethodToUpper:
		return "upper(" + obj + ")", nil
	}
	if len(call.Args) != 1 {
		return "", fmt.Errorf("%w: %s with %d arguments", ErrUnsupported, call.Method, len(call.Args))
	}

	if call.Method == MethodIn {
		k, ok := call.Args[0].(*Constant)
		if !ok {
			return "", fmt.Errorf("%w: %s needs a constant list", ErrUnsupported, call.Method)
		}
		rv := reflect.ValueOf(k.Value)
		if rv.Kind() != reflect.Slice {
			return "", fmt.Errorf("%w: %s needs a slice, got %T", ErrUnsupported, call.Method, k.Value)
		}
		return "(" + obj + " = ANY(" + c.bind(pq.Array(k.Value)) + "))", nil
	}

	arg, err := c.compile(call.Args[0])
	if err != nil {
		return "", err
	}
	switch call.Method {
	case MethodContains:
		return "(strpos(" + obj + ", " + arg + ") > 0)", nil
	case MethodStartsWith:
		return "starts_with(" + obj + ", " + arg + ")", nil
	case MethodEndsWith:
		return "(right(" + obj + ", length(" + arg + ")) = " + arg + ")", nil
	}
	return "", fmt.Errorf("%w: method %s", ErrUnsupported, call.Method)
}

// Columns builds a field-to-column map from the `db` struct tags of T.
// Fields without a tag are skipped.
func Columns[T any]() map[string]string {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	cols := make(map[string]string)
	if t == nil || t.Kind() != reflect.Struct {
		return cols
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("db"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		cols[f.Name] = tag
	}
	return cols
}
