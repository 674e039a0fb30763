package selector

import (
	"fmt"
	"strings"
)

// Lookup resolves a name to a value. It reports false for unknown names.
type Lookup func(name string) (any, bool)

// Map adapts a map to a Lookup.
func Map(vars map[string]any) Lookup {
	return func(name string) (any, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// BinaryOp compares two resolved values.
type BinaryOp func(left, right any) bool

// UnknownNameError is returned in strict mode for names the Lookup cannot resolve.
type UnknownNameError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown name %q", e.Name)
}

// Evaluator evaluates selection expressions.
type Evaluator struct {
	customOps map[string]BinaryOp
	strict    bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a word operator, used as "left name right".
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

// WithStrict makes unresolvable names an error.
func WithStrict(strict bool) Option {
	return func(e *Evaluator) {
		e.strict = strict
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval evaluates an expression with the default evaluator.
func Eval(expr string, lookup Lookup) (bool, error) {
	return New().Evaluate(expr, lookup)
}

// Evaluate evaluates expr, resolving names through lookup.
func (e *Evaluator) Evaluate(expr string, lookup Lookup) (bool, error) {
	if lookup == nil {
		lookup = Map(nil)
	}
	return e.condition(expr, lookup)
}

var builtinOps = []struct {
	op      string
	compare BinaryOp
}{
	// Longer operators first so ">=" is not split as ">".
	{"==", equals},
	{"!=", func(l, r any) bool { return !equals(l, r) }},
	{">=", ordered(func(l, r float64) bool { return l >= r })},
	{"<=", ordered(func(l, r float64) bool { return l <= r })},
	{">", ordered(func(l, r float64) bool { return l > r })},
	{"<", ordered(func(l, r float64) bool { return l < r })},
	{" contains ", contains},
}

func (e *Evaluator) condition(expr string, lookup Lookup) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, nil
	}

	if parts := strings.SplitN(expr, " or ", 2); len(parts) == 2 {
		left, err := e.condition(parts[0], lookup)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return e.condition(parts[1], lookup)
	}

	if parts := strings.SplitN(expr, " and ", 2); len(parts) == 2 {
		left, err := e.condition(parts[0], lookup)
		if err != nil || !left {
			return false, err
		}
		return e.condition(parts[1], lookup)
	}

	if inner, ok := negated(expr); ok {
		result, err := e.condition(inner, lookup)
		return !result, err
	}

	for _, op := range builtinOps {
		if parts := strings.SplitN(expr, op.op, 2); len(parts) == 2 {
			left, err := e.resolve(parts[0], lookup)
			if err != nil {
				return false, err
			}
			right, err := e.resolve(parts[1], lookup)
			if err != nil {
				return false, err
			}
			return op.compare(left, right), nil
		}
	}

	for name, fn := range e.customOps {
		if parts := strings.SplitN(expr, " "+name+" ", 2); len(parts) == 2 {
			left, err := e.resolve(parts[0], lookup)
			if err != nil {
				return false, err
			}
			right, err := e.resolve(parts[1], lookup)
			if err != nil {
				return false, err
			}
			return fn(left, right), nil
		}
	}

	val, err := e.resolve(expr, lookup)
	if err != nil {
		return false, err
	}
	return IsTruthy(val), nil
}

func (e *Evaluator) resolve(s string, lookup Lookup) (any, error) {
	s = strings.TrimSpace(s)
	if v, ok := literal(s); ok {
		return v, nil
	}
	if v, ok := lookup(s); ok {
		return v, nil
	}
	if e.strict {
		return nil, &UnknownNameError{Name: s}
	}
	return nil, nil
}

func negated(expr string) (string, bool) {
	if strings.HasPrefix(expr, "not ") {
		return expr[len("not "):], true
	}
	if strings.HasPrefix(expr, "!") && !strings.HasPrefix(expr, "!=") {
		return expr[1:], true
	}
	return "", false
}
