package translate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// cql2Operators maps lower-cased operator names to their canonical spelling.
var cql2Operators = map[string]string{}

func init() {
	for _, op := range []string{
		"and", "or", "not",
		"=", "<>", "<", "<=", ">", ">=",
		"like", "between", "in", "isNull",
		"casei", "accenti",
		"s_intersects", "s_equals", "s_disjoint", "s_touches", "s_within",
		"s_overlaps", "s_crosses", "s_contains",
		"t_after", "t_before", "t_contains", "t_disjoint", "t_during", "t_equals",
		"t_finishedby", "t_finishes", "t_intersects", "t_meets", "t_metby",
		"t_overlappedby", "t_overlaps", "t_startedby", "t_starts",
		"a_equals", "a_contains", "a_containedby", "a_overlaps",
	} {
		cql2Operators[strings.ToLower(op)] = op
	}
}

// ValidateFilter checks that filter is a CQL2-JSON boolean expression built
// only from supported operators.
func ValidateFilter(filter map[string]any) error {
	if filter == nil {
		return nil
	}
	if _, ok := filter["op"]; !ok {
		return fmt.Errorf("%w: filter must be an expression with an 'op' field", ErrUnsupportedFilter)
	}
	return validateNode(filter)
}

func validateNode(node any) error {
	switch n := node.(type) {
	case map[string]any:
		opVal, hasOp := n["op"]
		if !hasOp {
			for _, v := range n {
				if err := validateNode(v); err != nil {
					return err
				}
			}
			return nil
		}
		return validateExpression(n, opVal)
	case []any:
		for _, v := range n {
			if err := validateNode(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateExpression validates a single {"op", "args"} node
func validateExpression(expr map[string]any, opVal any) error {
	op, ok := opVal.(string)
	if !ok {
		return fmt.Errorf("%w: 'op' must be a string", ErrUnsupportedFilter)
	}
	canonical, ok := cql2Operators[strings.ToLower(op)]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnsupportedOperator, op)
	}

	argsVal, ok := expr["args"]
	if !ok {
		return fmt.Errorf("%w: missing 'args' field for '%s'", ErrUnsupportedFilter, op)
	}
	args, ok := argsVal.([]any)
	if !ok {
		return fmt.Errorf("%w: 'args' of '%s' must be an array", ErrUnsupportedFilter, op)
	}

	switch canonical {
	case "and", "or":
		if len(args) == 0 {
			return fmt.Errorf("%w: '%s' operator requires at least one argument", ErrUnsupportedFilter, op)
		}
		for _, arg := range args {
			argMap, ok := arg.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: '%s' arguments must be filter expressions", ErrUnsupportedFilter, op)
			}
			if _, ok := argMap["op"]; !ok {
				return fmt.Errorf("%w: '%s' arguments must be filter expressions", ErrUnsupportedFilter, op)
			}
		}
	case "not", "isNull":
		if len(args) != 1 {
			return fmt.Errorf("%w: '%s' operator requires exactly 1 argument", ErrUnsupportedFilter, op)
		}
	case "between":
		if len(args) != 3 {
			return fmt.Errorf("%w: 'between' operator requires exactly 3 arguments", ErrUnsupportedFilter)
		}
	default:
		if len(args) != 2 && canonical != "casei" && canonical != "accenti" {
			return fmt.Errorf("%w: '%s' operator requires exactly 2 arguments", ErrUnsupportedFilter, op)
		}
	}

	for _, arg := range args {
		if err := validateNode(arg); err != nil {
			return err
		}
	}
	return nil
}

// CanonicalizeFilter returns a copy of filter with operator names in their
// canonical spelling and the operands of "and"/"or" flattened and sorted, so
// that logically identical inputs serialize identically.
func CanonicalizeFilter(filter map[string]any) map[string]any {
	if filter == nil {
		return nil
	}
	out, _ := canonicalize(filter).(map[string]any)
	return out
}

func canonicalize(node any) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[k] = canonicalize(v)
		}
		op, ok := out["op"].(string)
		if !ok {
			return out
		}
		if c, ok := cql2Operators[strings.ToLower(op)]; ok {
			op = c
			out["op"] = c
		}
		if op == "and" || op == "or" {
			if args, ok := out["args"].([]any); ok {
				out["args"] = sortOperands(flatten(op, args))
			}
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = canonicalize(v)
		}
		return out
	default:
		return node
	}
}

// flatten lifts nested operands of the same associative operator.
func flatten(op string, args []any) []any {
	out := make([]any, 0, len(args))
	for _, arg := range args {
		if m, ok := arg.(map[string]any); ok && m["op"] == op {
			if inner, ok := m["args"].([]any); ok {
				out = append(out, flatten(op, inner)...)
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}

func sortOperands(args []any) []any {
	keys := make([]string, len(args))
	for i, a := range args {
		b, _ := json.Marshal(a)
		keys[i] = string(b)
	}
	idx := make([]int, len(args))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	out := make([]any, len(args))
	for i, j := range idx {
		out[i] = args[j]
	}
	return out
}

// ConstrainsProperty reports whether the filter references the named property.
func ConstrainsProperty(filter map[string]any, name string) bool {
	return references(filter, name)
}

func references(node any, name string) bool {
	switch n := node.(type) {
	case map[string]any:
		if p, ok := n["property"].(string); ok && p == name {
			return true
		}
		for _, v := range n {
			if references(v, name) {
				return true
			}
		}
	case []any:
		for _, v := range n {
			if references(v, name) {
				return true
			}
		}
	}
	return false
}

// And combines terms with a logical AND, skipping nil terms.
func And(terms ...map[string]any) map[string]any {
	var args []any
	for _, t := range terms {
		if t == nil {
			continue
		}
		if t["op"] == "and" {
			if inner, ok := t["args"].([]any); ok {
				args = append(args, inner...)
				continue
			}
		}
		args = append(args, t)
	}
	switch len(args) {
	case 0:
		return nil
	case 1:
		m, _ := args[0].(map[string]any)
		return m
	default:
		return map[string]any{"op": "and", "args": args}
	}
}
