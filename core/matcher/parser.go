package matcher

import (
	"fmt"
	"strings"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/events"
)

// Conditions collects the if and if_op properties of a directive block
//
//	mqtt lease-created {
//		if hasPrefix(hwaddr, '00:aa')
//		if hwaddr == '00:bb:cc:dd:ee:ff'
//		if_op or
//	}
//
// Conditions are joined with && unless if_op selects ||
type Conditions struct {
	conds []string
	or    bool
}

// Parse consumes the current block property of c if it is "if" or "if_op"
// and reports whether it did so
func (cs *Conditions) Parse(c *caddy.Controller) (bool, error) {
	switch c.Val() {
	case "if":
		args := c.RemainingArgs()
		if len(args) == 0 {
			return true, c.ArgErr()
		}
		cs.conds = append(cs.conds, strings.Join(args, " "))

	case "if_op":
		if !c.NextArg() {
			return true, c.ArgErr()
		}

		switch c.Val() {
		case "and", "&&":
			cs.or = false
		case "or", "||":
			cs.or = true
		default:
			return true, c.Errf("unknown if_op %q, expected and or or", c.Val())
		}

	default:
		return false, nil
	}

	return true, nil
}

// Expr returns the collected conditions as a single govaluate expression.
// A non-empty line expression is required in addition to the block
// conditions
func (cs *Conditions) Expr(line string) string {
	op := " && "
	if cs.or {
		op = " || "
	}

	var block string
	for i, c := range cs.conds {
		if i > 0 {
			block += op
		}
		block += "(" + c + ")"
	}

	switch {
	case line == "":
		return block
	case block == "":
		return line
	case len(cs.conds) > 1:
		block = "(" + block + ")"
	}

	return "(" + line + ") && " + block
}

// LineCondition returns the remaining arguments on the current line as an
// expression. A single event name is a shorthand for event == '<name>'
func LineCondition(c *caddy.Controller) string {
	exprStr := strings.Join(c.RemainingArgs(), " ")

	if events.Valid(caddy.EventName(exprStr)) {
		exprStr = fmt.Sprintf("event == '%s'", exprStr)
	}

	return exprStr
}
