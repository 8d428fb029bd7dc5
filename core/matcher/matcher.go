// Package matcher provides a simple "rule" language that may be used
// inside plugin directives to select lease events. The matcher library
// is based on github.com/Knetic/govaluate
package matcher

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/replacer"
)

type (
	// Matcher is a lease event matcher
	Matcher struct {
		// expr holds the pre-compiled expression
		expr *govaluate.EvaluableExpression
	}

	// ExprFunc can be used expose functions to matcher expressions
	ExprFunc func(args ...interface{}) (interface{}, error)
)

// New compiles exprStr into a matcher. An empty expression matches
// everything
func New(exprStr string, fns ...map[string]ExprFunc) (*Matcher, error) {
	functions := map[string]govaluate.ExpressionFunction{
		"hasPrefix": hasPrefix,
	}

	for _, m := range fns {
		for name, fn := range m {
			functions[name] = govaluate.ExpressionFunction(fn)
		}
	}

	var expr *govaluate.EvaluableExpression

	if exprStr != "" {
		var err error

		expr, err = govaluate.NewEvaluableExpressionWithFunctions(exprStr, functions)
		if err != nil {
			return nil, err
		}
	}

	return &Matcher{
		expr: expr,
	}, nil
}

// Empty returns true if the matcher has no condition and matches
// every event
func (m *Matcher) Empty() bool {
	return m == nil || m.expr == nil
}

// Match evaluates the expression stored in the matcher against e
func (m *Matcher) Match(e *events.LeaseEvent) (bool, error) {
	if m.Empty() {
		return true, nil
	}

	result, err := m.expr.Evaluate(Params(e))
	if err != nil {
		return false, err
	}

	if b, ok := result.(bool); ok {
		return b, nil
	}

	return false, fmt.Errorf("expression did not evaluate to a boolean. instead, got: %v", result)
}

// Params returns the variables available to matcher expressions
func Params(e *events.LeaseEvent) map[string]interface{} {
	r := replacer.NewReplacer(e)

	params := map[string]interface{}{
		"remaining": float64(0),
	}

	for _, key := range []string{"event", "id", "ip", "hwaddr", "state"} {
		params[key] = r.Get(key)
	}

	if e != nil && e.Name == events.EventLeaseCreated {
		params["remaining"] = e.Lease.Expires.Sub(e.At).Seconds()
	}

	return params
}

func hasPrefix(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("hasPrefix: expected 2 arguments, got %d", len(args))
	}

	s, ok1 := args[0].(string)
	prefix, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("hasPrefix: arguments must be strings")
	}

	return strings.HasPrefix(s, prefix), nil
}
