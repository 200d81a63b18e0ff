package backend

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/twpayne/go-geom"
	gogeojson "github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

// MemoryOperators lists the CQL2 operators the in-memory evaluator
// implements, in their canonical spelling.
var MemoryOperators = []string{
	"and", "or", "not",
	"=", "<>", "<", "<=", ">", ">=",
	"like", "between", "in", "isNull",
	"casei", "accenti",
	"s_intersects", "s_disjoint", "s_within", "s_contains", "s_equals",
	"t_after", "t_before", "t_contains", "t_disjoint", "t_during", "t_equals",
	"t_finishedby", "t_finishes", "t_intersects", "t_meets", "t_metby",
	"t_overlappedby", "t_overlaps", "t_startedby", "t_starts",
	"a_equals", "a_contains", "a_containedby", "a_overlaps",
}

var memoryOperators = func() map[string]bool {
	ops := make(map[string]bool, len(MemoryOperators))
	for _, op := range MemoryOperators {
		ops[strings.ToLower(op)] = true
	}
	return ops
}()

var (
	openStart = time.Time{}
	openEnd   = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// interval is a closed CQL2 temporal interval. Open bounds are stretched to
// openStart and openEnd. A missing interval matches no temporal predicate.
type interval struct {
	start, end time.Time
	missing    bool
}

// evaluate reports whether item satisfies the CQL2-JSON expression. A nil
// expression matches every item.
func evaluate(expr map[string]any, it *Item) (bool, error) {
	if len(expr) == 0 {
		return true, nil
	}
	raw, _ := expr["op"].(string)
	op := strings.ToLower(raw)
	args, _ := expr["args"].([]any)
	if !memoryOperators[op] {
		return false, fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, raw)
	}

	switch {
	case op == "and" || op == "or":
		want := op == "or"
		for _, a := range args {
			sub, ok := a.(map[string]any)
			if !ok {
				return false, fmt.Errorf("%w: %s operand must be an expression", ErrUnsupportedExpression, raw)
			}
			v, err := evaluate(sub, it)
			if err != nil {
				return false, err
			}
			if v == want {
				return want, nil
			}
		}
		return !want, nil

	case op == "not":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: not takes one operand", ErrUnsupportedExpression)
		}
		sub, ok := args[0].(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: not operand must be an expression", ErrUnsupportedExpression)
		}
		v, err := evaluate(sub, it)
		return !v, err

	case op == "isnull":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: isNull takes one operand", ErrUnsupportedExpression)
		}
		v, err := value(args[0], it)
		return v == nil, err

	case op == "in":
		return evalIn(args, it)

	case op == "like":
		return evalLike(args, it)

	case op == "between":
		return evalBetween(args, it)

	case op == "=" || op == "<>" || op == "<" || op == "<=" || op == ">" || op == ">=":
		return evalComparison(op, args, it)

	case strings.HasPrefix(op, "s_"):
		return evalSpatial(op, args, it)

	case strings.HasPrefix(op, "t_"):
		return evalTemporal(op, args, it)

	case strings.HasPrefix(op, "a_"):
		return evalArray(op, args, it)
	}
	return false, fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, raw)
}

func evalComparison(op string, args []any, it *Item) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("%w: %s takes two operands", ErrUnsupportedExpression, op)
	}
	a, err := value(args[0], it)
	if err != nil {
		return false, err
	}
	b, err := value(args[1], it)
	if err != nil {
		return false, err
	}
	c, ok := compare(a, b)
	if !ok {
		return op == "<>", nil
	}
	switch op {
	case "=":
		return c == 0, nil
	case "<>":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

func evalIn(args []any, it *Item) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("%w: in takes two operands", ErrUnsupportedExpression)
	}
	needle, err := value(args[0], it)
	if err != nil {
		return false, err
	}
	list, ok := args[1].([]any)
	if !ok {
		return false, fmt.Errorf("%w: in requires a list", ErrUnsupportedExpression)
	}
	for _, cand := range list {
		v, err := value(cand, it)
		if err != nil {
			return false, err
		}
		if c, ok := compare(needle, v); ok && c == 0 {
			return true, nil
		}
	}
	return false, nil
}

func evalBetween(args []any, it *Item) (bool, error) {
	if len(args) != 3 {
		return false, fmt.Errorf("%w: between takes three operands", ErrUnsupportedExpression)
	}
	vals := make([]any, 3)
	for i, a := range args {
		v, err := value(a, it)
		if err != nil {
			return false, err
		}
		vals[i] = v
	}
	lo, ok := compare(vals[0], vals[1])
	if !ok {
		return false, nil
	}
	hi, ok := compare(vals[0], vals[2])
	if !ok {
		return false, nil
	}
	return lo >= 0 && hi <= 0, nil
}

func evalLike(args []any, it *Item) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("%w: like takes two operands", ErrUnsupportedExpression)
	}
	v, err := value(args[0], it)
	if err != nil {
		return false, err
	}
	p, err := value(args[1], it)
	if err != nil {
		return false, err
	}
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	pattern, ok := p.(string)
	if !ok {
		return false, fmt.Errorf("%w: like pattern must be a string", ErrUnsupportedExpression)
	}
	re, err := likePattern(pattern)
	if err != nil {
		return false, fmt.Errorf("%w: like pattern %q", ErrUnsupportedExpression, pattern)
	}
	return re.MatchString(s), nil
}

// likePattern compiles a LIKE pattern: % matches any run, _ one character,
// and a backslash escapes the next character.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(`.*`)
		case r == '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString(`\\`)
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

// value resolves a scalar operand: a property reference, a timestamp or
// date literal, a casei/accenti wrapper, or a JSON scalar.
func value(arg any, it *Item) (any, error) {
	switch a := arg.(type) {
	case map[string]any:
		if p, ok := a["property"].(string); ok {
			return scalar(property(p, it)), nil
		}
		if ts, ok := a["timestamp"].(string); ok {
			return parseTime(ts)
		}
		if d, ok := a["date"].(string); ok {
			t, err := time.Parse(time.DateOnly, d)
			if err != nil {
				return nil, fmt.Errorf("%w: date %q", ErrUnsupportedExpression, d)
			}
			return t, nil
		}
		if op, ok := a["op"].(string); ok {
			args, _ := a["args"].([]any)
			switch strings.ToLower(op) {
			case "casei", "accenti":
				if len(args) != 1 {
					return nil, fmt.Errorf("%w: %s takes one operand", ErrUnsupportedExpression, op)
				}
				return value(map[string]any{strings.ToLower(op): args[0]}, it)
			}
			return nil, fmt.Errorf("%w: operand %q", ErrUnsupportedExpression, op)
		}
		if inner, ok := a["casei"]; ok {
			v, err := value(inner, it)
			if s, isStr := v.(string); isStr {
				return strings.ToLower(s), err
			}
			return v, err
		}
		if inner, ok := a["accenti"]; ok {
			v, err := value(inner, it)
			if s, isStr := v.(string); isStr && err == nil {
				return stripAccents(s)
			}
			return v, err
		}
		return nil, fmt.Errorf("%w: operand %v", ErrUnsupportedExpression, a)
	default:
		return scalar(a), nil
	}
}

// scalar normalizes JSON numbers to float64.
func scalar(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return v
}

func stripAccents(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return "", fmt.Errorf("%w: accenti: %v", ErrUnsupportedExpression, err)
	}
	return out, nil
}

func property(name string, it *Item) any {
	switch name {
	case "id":
		return it.ID
	case "collection":
		return it.Collection
	case "datetime":
		if it.Datetime.IsZero() {
			return nil
		}
		return it.Datetime
	}
	return it.Properties[name]
}

// compare orders two resolved operands of the same kind. ok is false when
// the operands are not comparable.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			if t, isTime := b.(time.Time); isTime {
				c, ok := compare(t, x)
				return -c, ok
			}
			return 0, false
		}
		return strings.Compare(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok || x != y {
			return 1, ok
		}
		return 0, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			s, isStr := b.(string)
			if !isStr {
				return 0, false
			}
			t, err := parseTime(s)
			if err != nil {
				return 0, false
			}
			y = t
		}
		return x.Compare(y), true
	}
	return 0, false
}

func evalSpatial(op string, args []any, it *Item) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("%w: %s takes two operands", ErrUnsupportedExpression, op)
	}
	a, err := spatial(args[0], it)
	if err != nil {
		return false, err
	}
	b, err := spatial(args[1], it)
	if err != nil {
		return false, err
	}
	switch op {
	case "s_intersects":
		return intersects(a, b), nil
	case "s_disjoint":
		return !intersects(a, b), nil
	case "s_within":
		return within(a, b), nil
	case "s_contains":
		return within(b, a), nil
	case "s_equals":
		return within(a, b) && within(b, a), nil
	}
	return false, fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, op)
}

// spatial resolves a spatial operand: the item footprint, a bbox literal or
// a GeoJSON geometry literal.
func spatial(arg any, it *Item) (*shape, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: spatial operand %v", ErrUnsupportedExpression, arg)
	}
	if p, ok := m["property"].(string); ok {
		if p != "geometry" {
			return nil, fmt.Errorf("%w: spatial property %q", ErrUnsupportedExpression, p)
		}
		if it.footprint != nil {
			return it.footprint, nil
		}
		return newShape(it.Geometry)
	}
	if raw, ok := m["bbox"].([]any); ok {
		vals := make([]float64, 0, len(raw))
		for _, v := range raw {
			f, ok := scalar(v).(float64)
			if !ok {
				return nil, fmt.Errorf("%w: bbox value %v", ErrUnsupportedExpression, v)
			}
			vals = append(vals, f)
		}
		if len(vals) == 6 {
			vals = []float64{vals[0], vals[1], vals[3], vals[4]}
		}
		poly, err := geojson.NewPolygonFromBBox(vals)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedExpression, err)
		}
		return newShape(poly)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var g geom.T
	if err := gogeojson.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: geometry literal: %v", ErrUnsupportedExpression, err)
	}
	return newShape(g)
}

func evalTemporal(op string, args []any, it *Item) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("%w: %s takes two operands", ErrUnsupportedExpression, op)
	}
	a, err := temporal(args[0], it)
	if err != nil {
		return false, err
	}
	b, err := temporal(args[1], it)
	if err != nil {
		return false, err
	}
	if a.missing || b.missing {
		return false, nil
	}
	as, ae, bs, be := a.start, a.end, b.start, b.end
	switch op {
	case "t_after":
		return as.After(be), nil
	case "t_before":
		return ae.Before(bs), nil
	case "t_contains":
		return as.Before(bs) && ae.After(be), nil
	case "t_during":
		return as.After(bs) && ae.Before(be), nil
	case "t_disjoint":
		return ae.Before(bs) || as.After(be), nil
	case "t_equals":
		return as.Equal(bs) && ae.Equal(be), nil
	case "t_finishedby":
		return as.Before(bs) && ae.Equal(be), nil
	case "t_finishes":
		return as.After(bs) && ae.Equal(be), nil
	case "t_intersects":
		return !ae.Before(bs) && !as.After(be), nil
	case "t_meets":
		return ae.Equal(bs), nil
	case "t_metby":
		return as.Equal(be), nil
	case "t_overlappedby":
		return bs.Before(as) && be.After(as) && be.Before(ae), nil
	case "t_overlaps":
		return as.Before(bs) && ae.After(bs) && ae.Before(be), nil
	case "t_startedby":
		return as.Equal(bs) && ae.After(be), nil
	case "t_starts":
		return as.Equal(bs) && ae.Before(be), nil
	}
	return false, fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, op)
}

// temporal resolves a temporal operand to an interval.
func temporal(arg any, it *Item) (interval, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return interval{}, fmt.Errorf("%w: temporal operand %v", ErrUnsupportedExpression, arg)
	}
	if p, ok := m["property"].(string); ok {
		switch v := property(p, it).(type) {
		case time.Time:
			return interval{start: v, end: v}, nil
		case string:
			t, err := parseTime(v)
			if err != nil {
				return interval{}, err
			}
			return interval{start: t, end: t}, nil
		}
		return interval{missing: true}, nil
	}
	if ts, ok := m["timestamp"].(string); ok {
		t, err := parseTime(ts)
		if err != nil {
			return interval{}, err
		}
		return interval{start: t, end: t}, nil
	}
	if d, ok := m["date"].(string); ok {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return interval{}, fmt.Errorf("%w: date %q", ErrUnsupportedExpression, d)
		}
		return interval{start: t, end: t.Add(24*time.Hour - time.Nanosecond)}, nil
	}
	if bounds, ok := m["interval"].([]any); ok && len(bounds) == 2 {
		iv := interval{start: openStart, end: openEnd}
		for i, b := range bounds {
			s, _ := b.(string)
			if s == "" || s == ".." {
				continue
			}
			t, err := parseTime(s)
			if err != nil {
				return interval{}, err
			}
			if i == 0 {
				iv.start = t
			} else {
				iv.end = t
			}
		}
		return iv, nil
	}
	return interval{}, fmt.Errorf("%w: temporal operand %v", ErrUnsupportedExpression, m)
}

func evalArray(op string, args []any, it *Item) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("%w: %s takes two operands", ErrUnsupportedExpression, op)
	}
	a, err := array(args[0], it)
	if err != nil {
		return false, err
	}
	b, err := array(args[1], it)
	if err != nil {
		return false, err
	}
	if a == nil || b == nil {
		return false, nil
	}
	switch op {
	case "a_equals":
		if len(a) != len(b) {
			return false, nil
		}
		for i := range a {
			if c, ok := compare(a[i], b[i]); !ok || c != 0 {
				return false, nil
			}
		}
		return true, nil
	case "a_contains":
		return containsAll(a, b), nil
	case "a_containedby":
		return containsAll(b, a), nil
	case "a_overlaps":
		for _, v := range b {
			if member(v, a) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, op)
}

// array resolves an array operand. A missing or non-array property is nil.
func array(arg any, it *Item) ([]any, error) {
	var list []any
	switch a := arg.(type) {
	case []any:
		list = a
	case map[string]any:
		p, ok := a["property"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: array operand %v", ErrUnsupportedExpression, a)
		}
		if list, ok = property(p, it).([]any); !ok {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("%w: array operand %v", ErrUnsupportedExpression, arg)
	}
	out := make([]any, 0, len(list))
	for _, v := range list {
		r, err := value(v, it)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func member(v any, list []any) bool {
	for _, x := range list {
		if c, ok := compare(v, x); ok && c == 0 {
			return true
		}
	}
	return false
}

func containsAll(set, sub []any) bool {
	for _, v := range sub {
		if !member(v, set) {
			return false
		}
	}
	return true
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrUnsupportedExpression, s)
	}
	return t.UTC(), nil
}
