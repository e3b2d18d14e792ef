package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ErrUnboundParam is returned when a body references a parameter that has
// no value in the evaluation environment.
var ErrUnboundParam = errors.New("expr: unbound parameter")

// Matches evaluates the predicate with v bound to its first parameter.
func (l Lambda[T]) Matches(v T) (bool, error) {
	out, err := l.Eval(v)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expr: predicate evaluated to %T, not bool", out)
	}
	return b, nil
}

// Eval evaluates the lambda body with args bound to its parameters by
// position.
func (l Lambda[T]) Eval(args ...any) (any, error) {
	if len(args) != len(l.params) {
		return nil, fmt.Errorf("expr: lambda takes %d arguments, got %d", len(l.params), len(args))
	}
	env := make(map[*Param]any, len(args))
	for i, p := range l.params {
		env[p] = args[i]
	}
	return Eval(l.body, env)
}

// Eval evaluates n against env.
func Eval(n Node, env map[*Param]any) (any, error) {
	switch v := n.(type) {
	case *Param:
		val, ok := env[v]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundParam, v.Name)
		}
		return val, nil
	case *Constant:
		return v.Value, nil
	case *Member:
		target, err := Eval(v.Target, env)
		if err != nil {
			return nil, err
		}
		return member(target, v.Name)
	case *Unary:
		x, err := Eval(v.X, env)
		if err != nil {
			return nil, err
		}
		return unary(v.Op, x)
	case *Binary:
		return evalBinary(v, env)
	case *Call:
		return evalCall(v, env)
	case *Conditional:
		test, err := evalBool(v.Test, env)
		if err != nil {
			return nil, err
		}
		if test {
			return Eval(v.IfTrue, env)
		}
		return Eval(v.IfFalse, env)
	case nil:
		return nil, errors.New("expr: nil node")
	default:
		return nil, fmt.Errorf("expr: unknown node type %T", n)
	}
}

func evalBool(n Node, env map[*Param]any) (bool, error) {
	v, err := Eval(n, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expr: %s is %T, not bool", n, v)
	}
	return b, nil
}

func evalBinary(b *Binary, env map[*Param]any) (any, error) {
	switch b.Op {
	case OpAnd, OpOr:
		left, err := evalBool(b.Left, env)
		if err != nil {
			return nil, err
		}
		if b.Op == OpAnd && !left {
			return false, nil
		}
		if b.Op == OpOr && left {
			return true, nil
		}
		return evalBool(b.Right, env)
	}

	left, err := Eval(b.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := Eval(b.Right, env)
	if err != nil {
		return nil, err
	}
	l, r := normalize(left), normalize(right)

	switch b.Op {
	case OpEq:
		return equal(l, r), nil
	case OpNe:
		return !equal(l, r), nil
	case OpLt, OpLe, OpGt, OpGe:
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch b.Op {
		case OpLt:
			return c < 0, nil
		case OpLe:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case OpAdd, OpSub:
		return arith(b.Op, l, r)
	}
	return nil, fmt.Errorf("expr: %s is not a binary operator", b.Op)
}

func evalCall(c *Call, env map[*Param]any) (any, error) {
	obj, err := Eval(c.Object, env)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		if args[i], err = Eval(a, env); err != nil {
			return nil, err
		}
	}
	o := normalize(obj)

	switch c.Method {
	case MethodToLower, MethodToUpper:
		s, ok := o.(string)
		if !ok {
			return nil, fmt.Errorf("expr: %s on %T", c.Method, obj)
		}
		if c.Method == MethodToLower {
			return strings.ToLower(s), nil
		}
		return strings.ToUpper(s), nil
	case MethodContains, MethodStartsWith, MethodEndsWith:
		if len(args) != 1 {
			return nil, fmt.Errorf("expr: %s takes 1 argument, got %d", c.Method, len(args))
		}
		s, ok1 := o.(string)
		sub, ok2 := normalize(args[0]).(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("expr: %s on %T with %T", c.Method, obj, args[0])
		}
		switch c.Method {
		case MethodContains:
			return strings.Contains(s, sub), nil
		case MethodStartsWith:
			return strings.HasPrefix(s, sub), nil
		default:
			return strings.HasSuffix(s, sub), nil
		}
	case MethodIn:
		if len(args) != 1 {
			return nil, fmt.Errorf("expr: %s takes 1 argument, got %d", c.Method, len(args))
		}
		rv := reflect.ValueOf(args[0])
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("expr: %s needs a slice, got %T", c.Method, args[0])
		}
		for i := 0; i < rv.Len(); i++ {
			if equal(o, normalize(rv.Index(i).Interface())) {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, fmt.Errorf("expr: unknown method %q", c.Method)
}

func unary(op Op, x any) (any, error) {
	switch op {
	case OpNot:
		b, ok := x.(bool)
		if !ok {
			return nil, fmt.Errorf("expr: ! on %T", x)
		}
		return !b, nil
	case OpNeg:
		switch n := normalize(x).(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, fmt.Errorf("expr: - on %T", x)
	}
	return nil, fmt.Errorf("expr: %s is not a unary operator", op)
}

func member(target any, name string) (any, error) {
	if m, ok := target.(map[string]any); ok {
		v, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("expr: no key %q", name)
		}
		return v, nil
	}
	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("expr: member %s of nil", name)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expr: member %s of %T", name, target)
	}
	f := rv.FieldByName(name)
	if !f.IsValid() {
		return nil, fmt.Errorf("expr: %s has no field %s", rv.Type(), name)
	}
	return f.Interface(), nil
}

// normalize collapses Go's numeric and named types onto int64, float64,
// string and bool so values of different declared types can be compared.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v
}

func equal(l, r any) bool {
	if lt, ok := l.(time.Time); ok {
		rt, ok := r.(time.Time)
		return ok && lt.Equal(rt)
	}
	if lf, rf, ok := floats(l, r); ok {
		return lf == rf
	}
	return reflect.DeepEqual(l, r)
}

func compare(l, r any) (int, error) {
	switch lv := l.(type) {
	case string:
		if rv, ok := r.(string); ok {
			return strings.Compare(lv, rv), nil
		}
	case time.Time:
		if rv, ok := r.(time.Time); ok {
			return lv.Compare(rv), nil
		}
	case int64:
		if rv, ok := r.(int64); ok {
			switch {
			case lv < rv:
				return -1, nil
			case lv > rv:
				return 1, nil
			}
			return 0, nil
		}
	}
	if lf, rf, ok := floats(l, r); ok {
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expr: cannot compare %T with %T", l, r)
}

func arith(op Op, l, r any) (any, error) {
	if li, ok := l.(int64); ok {
		if ri, ok := r.(int64); ok {
			if op == OpAdd {
				return li + ri, nil
			}
			return li - ri, nil
		}
	}
	if lf, rf, ok := floats(l, r); ok {
		if op == OpAdd {
			return lf + rf, nil
		}
		return lf - rf, nil
	}
	if ls, ok := l.(string); ok && op == OpAdd {
		if rs, ok := r.(string); ok {
			return ls + rs, nil
		}
	}
	return nil, fmt.Errorf("expr: %T %s %T", l, op, r)
}

func floats(l, r any) (float64, float64, bool) {
	lf, ok1 := toFloat(l)
	rf, ok2 := toFloat(r)
	return lf, rf, ok1 && ok2
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
