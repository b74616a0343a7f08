package runtime

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/text/cases"
)

type builtin func(args []any) (any, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"equality":            fn2(func(a, b any) (any, error) { return equal(a, b), nil }),
		"like":                fn2(func(a, b any) (any, error) { return like(a, b), nil }),
		"startsWith":          fn2(startsWith),
		"endsWith":            fn2(endsWith),
		"contains":            fn2(contains),
		"containsLike":        fn2(containsLike),
		"max":                 fold(func(a, b any) (any, error) { return extreme(a, b, 1), nil }, nil),
		"min":                 fold(func(a, b any) (any, error) { return extreme(a, b, -1), nil }, nil),
		"sum":                 fold(func(a, b any) (any, error) { return arithmetic("+", a, b) }, 0.0),
		"count":               count,
		"avg":                 avg,
		"combineOutputTypes":  fn2(combineOutputTypes),
		"aggregateOutputType": fn2(aggregateOutputType),
		"get_time":            getTime,
		"get_currency":        getCurrency,
		"newSet":              func([]any) (any, error) { return valueSet{}, nil },
		"setAdd":              setAdd,
		"setSize":             setSize,
		"push":                push,
		"sortBy":              sortBy,
		"indexArray":          indexArray,
		"sliceArray":          sliceArray,
		"argminmax":           argMinMax,
		"distance":            distance,
	}
}

func fn2(f func(a, b any) (any, error)) builtin {
	return func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		return f(args[0], args[1])
	}
}

func callBuiltin(name string, args ...any) (any, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin %q", name)
	}
	v, err := f(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// fold combines its arguments, or the elements of its only argument if
// that is a list, starting from zero.
func fold(f func(a, b any) (any, error), zero any) builtin {
	return func(args []any) (any, error) {
		if len(args) == 1 {
			if list, ok := args[0].(Tuple); ok {
				args = list
			}
		}
		acc := zero
		for _, v := range args {
			var err error
			if acc, err = f(acc, v); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}
}

func count(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("expected a list")
	}
	list, err := listArg(args[0])
	if err != nil {
		return nil, err
	}
	return float64(len(list)), nil
}

func avg(args []any) (any, error) {
	sum, err := builtins["sum"](args)
	if err != nil {
		return nil, err
	}
	n, err := count(args)
	if err != nil {
		return nil, err
	}
	return arithmetic("/", sum, n)
}

var caseFolder = cases.Fold()

func like(a, b any) bool {
	return strings.Contains(caseFolder.String(toString(normalize(a))), caseFolder.String(toString(normalize(b))))
}

func startsWith(a, b any) (any, error) {
	return strings.HasPrefix(toString(normalize(a)), toString(normalize(b))), nil
}

func endsWith(a, b any) (any, error) {
	return strings.HasSuffix(toString(normalize(a)), toString(normalize(b))), nil
}

func contains(array, v any) (any, error) {
	elems, ok := array.(Tuple)
	if !ok {
		return false, nil
	}
	for _, e := range elems {
		if equal(e, v) {
			return true, nil
		}
	}
	return false, nil
}

func containsLike(array, v any) (any, error) {
	elems, ok := array.(Tuple)
	if !ok {
		return false, nil
	}
	for _, e := range elems {
		if like(e, v) {
			return true, nil
		}
	}
	return false, nil
}

// extreme returns the greater (sign 1) or lesser (sign -1) of a and b.
// Null loses to any value.
func extreme(a, b any, sign int) any {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if c, ok := compare(b, a); ok && c*sign > 0 {
		return b
	}
	return a
}

func combineOutputTypes(a, b any) (any, error) {
	switch {
	case a == nil:
		return b, nil
	case b == nil:
		return a, nil
	}
	return toString(a) + "+" + toString(b), nil
}

func aggregateOutputType(op, outputType any) (any, error) {
	if outputType == nil {
		return op, nil
	}
	return toString(op) + "(" + toString(outputType) + ")", nil
}

func getTime(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("expected a date")
	}
	if args[0] == nil {
		return nil, nil
	}
	t, ok := toTime(args[0])
	if !ok {
		return nil, fmt.Errorf("not a date: %v", args[0])
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func getCurrency(args []any) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("expected an amount and a code")
	}
	n, ok := number(args[0])
	if !ok {
		return nil, fmt.Errorf("not a number: %v", args[0])
	}
	return Currency{Value: n, Code: toString(args[1])}, nil
}

type valueSet map[string]struct{}

func setAdd(args []any) (any, error) {
	set, ok := args[0].(valueSet)
	if !ok || len(args) != 2 {
		return nil, errors.New("expected a set and a value")
	}
	set[fmt.Sprintf("%T:%s", normalize(args[1]), toString(normalize(args[1])))] = struct{}{}
	return set, nil
}

func setSize(args []any) (any, error) {
	set, ok := args[0].(valueSet)
	if !ok {
		return nil, errors.New("expected a set")
	}
	return float64(len(set)), nil
}

func push(args []any) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("expected a list and a value")
	}
	list, _ := args[0].(Tuple)
	return append(list, args[1]), nil
}

// field reads name from the row of an [outputType, row] pair.
func field(pair any, name string) any {
	if t, ok := pair.(Tuple); ok && len(t) == 2 {
		if row, ok := t[1].(Row); ok {
			return row[name]
		}
	}
	return nil
}

func sorted(list Tuple, name string, desc bool) Tuple {
	out := slices.Clone(list)
	slices.SortStableFunc(out, func(a, b any) bool {
		c, ok := compare(field(a, name), field(b, name))
		if !ok {
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func listArg(v any) (Tuple, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case Tuple:
		return v, nil
	}
	return nil, fmt.Errorf("not a list: %v", v)
}

func sortBy(args []any) (any, error) {
	if len(args) != 3 {
		return nil, errors.New("expected a list, a field and a direction")
	}
	list, err := listArg(args[0])
	if err != nil {
		return nil, err
	}
	return sorted(list, toString(args[1]), toString(args[2]) == "desc"), nil
}

// indexArray selects the elements at the given 1-based positions.
// Negative positions count from the end; zero and out-of-range
// positions select nothing.
func indexArray(args []any) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("expected a list and indices")
	}
	list, err := listArg(args[0])
	if err != nil {
		return nil, err
	}
	indices, err := listArg(args[1])
	if err != nil {
		return nil, err
	}
	out := Tuple{}
	for _, index := range indices {
		n, ok := number(index)
		if !ok {
			return nil, fmt.Errorf("not an index: %v", index)
		}
		i := int(n)
		switch {
		case i > 0:
			i--
		case i < 0:
			i += len(list)
		default:
			continue
		}
		if i >= 0 && i < len(list) {
			out = append(out, list[i])
		}
	}
	return out, nil
}

// slice returns limit elements starting at the 1-based position base.
// A negative base counts from the end.
func slice(list Tuple, base, limit any) (Tuple, error) {
	b, ok := number(base)
	if !ok {
		return nil, fmt.Errorf("not a base: %v", base)
	}
	l, ok := number(limit)
	if !ok {
		return nil, fmt.Errorf("not a limit: %v", limit)
	}
	start := int(b)
	if start < 0 {
		start = len(list) + start + 1
	}
	if start < 1 {
		start = 1
	}
	start--
	if start >= len(list) || l <= 0 {
		return Tuple{}, nil
	}
	end := len(list)
	if !math.IsInf(l, 1) && start+int(l) < end {
		end = start + int(l)
	}
	return slices.Clone(list[start:end]), nil
}

func sliceArray(args []any) (any, error) {
	if len(args) != 3 {
		return nil, errors.New("expected a list, a base and a limit")
	}
	list, err := listArg(args[0])
	if err != nil {
		return nil, err
	}
	return slice(list, args[1], args[2])
}

func argMinMax(args []any) (any, error) {
	if len(args) != 5 {
		return nil, errors.New("expected a list, a field, an operator, a base and a limit")
	}
	list, err := listArg(args[0])
	if err != nil {
		return nil, err
	}
	var desc bool
	switch op := toString(args[2]); op {
	case "argmin":
	case "argmax":
		desc = true
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	return slice(sorted(list, toString(args[1]), desc), args[3], args[4])
}

// Location is a point given by latitude and longitude.
type Location struct {
	Lat float64
	Lon float64
}

// distance is the great-circle distance in meters between two locations.
func distance(args []any) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("expected two locations")
	}
	a, ok1 := args[0].(Location)
	b, ok2 := args[1].(Location)
	if !ok1 || !ok2 {
		return nil, errors.New("expected two locations")
	}
	const earthRadius = 6371000.0
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dlat := rad(b.Lat - a.Lat)
	dlon := rad(b.Lon - a.Lon)
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(h)), nil
}

func binaryOp(op string, a, b any) (any, error) {
	switch op {
	case "&&":
		return truthy(a) && truthy(b), nil
	case "||":
		return truthy(a) || truthy(b), nil
	case "!==":
		if a == nil && b == nil {
			return false, nil
		}
		return !equal(a, b), nil
	case "===":
		return equal(a, b), nil
	case ">", "<", ">=", "<=":
		c, ok := compare(a, b)
		if !ok {
			return false, nil
		}
		switch op {
		case ">":
			return c > 0, nil
		case "<":
			return c < 0, nil
		case ">=":
			return c >= 0, nil
		}
		return c <= 0, nil
	case "+":
		if s, ok := a.(string); ok {
			return s + toString(b), nil
		}
	}
	return arithmetic(op, a, b)
}

func arithmetic(op string, a, b any) (any, error) {
	x, ok := number(a)
	if !ok {
		return nil, fmt.Errorf("%s: not a number: %v", op, a)
	}
	y, ok := number(b)
	if !ok {
		return nil, fmt.Errorf("%s: not a number: %v", op, b)
	}
	var z float64
	switch op {
	case "+":
		z = x + y
	case "-":
		z = x - y
	case "*":
		z = x * y
	case "/":
		z = x / y
	case "%":
		z = math.Mod(x, y)
	case "**":
		z = math.Pow(x, y)
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	if c, ok := a.(Currency); ok {
		return Currency{Value: z, Code: c.Code}, nil
	}
	if c, ok := b.(Currency); ok {
		return Currency{Value: z, Code: c.Code}, nil
	}
	return z, nil
}

func unaryOp(op string, v any) (any, error) {
	switch op {
	case "!":
		return !truthy(v), nil
	case "String":
		if v == nil {
			return nil, nil
		}
		return toString(normalize(v)), nil
	case "-":
		return arithmetic("-", 0.0, v)
	}
	return nil, fmt.Errorf("unknown unary operator %q", op)
}

// isNewTuple reports whether tuple differs, on keys, from every row in
// state.
func isNewTuple(state, tuple any, keys []string) bool {
	rows, _ := state.(Tuple)
	row, _ := tuple.(Row)
	for _, old := range rows {
		old, _ := old.(Row)
		same := true
		for _, k := range keys {
			if !equal(old[k], row[k]) {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	return true
}

func addTuple(state, tuple any) any {
	rows, _ := state.(Tuple)
	return append(slices.Clone(rows), copyRow(tuple))
}
