package runtime

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/brimdata/ruleflow/compiler/ast"
)

// Currency is an amount with a currency code.
type Currency struct {
	Value float64
	Code  string
}

func (c Currency) String() string {
	return strconv.FormatFloat(c.Value, 'f', 2, 64) + " " + c.Code
}

// Entity is a typed identifier, e.g., an email address or a URL.
type Entity struct {
	Value   string
	Display string
}

func (e Entity) String() string {
	return e.Value
}

// TimeOfDay is the value of the Time type.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// FromAST converts a constant to its runtime value.
func FromAST(v ast.Value) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case *ast.BooleanValue:
		return v.Value, nil
	case *ast.StringValue:
		return v.Value, nil
	case *ast.NumberValue:
		return v.Value, nil
	case *ast.MeasureValue:
		return v.Value, nil
	case *ast.CurrencyValue:
		return Currency{Value: v.Value, Code: v.Code}, nil
	case *ast.DateValue:
		return v.Value, nil
	case *ast.TimeValue:
		return TimeOfDay{Hour: v.Hour, Minute: v.Minute, Second: v.Second}, nil
	case *ast.EntityValue:
		return Entity{Value: v.Value, Display: v.Display}, nil
	case *ast.EnumValue:
		return v.Value, nil
	case *ast.ArrayValue:
		out := make(Tuple, 0, len(v.Elems))
		for _, e := range v.Elems {
			elem, err := FromAST(e)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}
	return nil, fmt.Errorf("not a constant: %s", ast.FormatValue(v))
}

func toString(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	}
	return true
}

// normalize maps entities to their identifier so that an entity
// compares equal to the string it wraps.
func normalize(v any) any {
	if e, ok := v.(Entity); ok {
		return e.Value
	}
	return v
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if ta, tb, ok := times(a, b); ok {
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// toTime converts v to a time.  Environments may deliver dates as
// strings in any common layout or as milliseconds since the epoch.
func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := dateparse.ParseAny(v)
		return t, err == nil
	case float64:
		return time.UnixMilli(int64(v)), true
	}
	return time.Time{}, false
}

// times converts a and b to times if either of them is one.
func times(a, b any) (time.Time, time.Time, bool) {
	_, aok := a.(time.Time)
	_, bok := b.(time.Time)
	if !aok && !bok {
		return time.Time{}, time.Time{}, false
	}
	ta, aok := toTime(a)
	tb, bok := toTime(b)
	return ta, tb, aok && bok
}

// compare orders two values of the same kind.  ok is false if the
// values are not comparable, in which case every ordering test fails.
func compare(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	if ta, tb, ok := times(a, b); ok {
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		}
		return 0, true
	}
	switch a := a.(type) {
	case float64:
		switch b := b.(type) {
		case float64:
			return cmpFloat(a, b), true
		case Currency:
			return cmpFloat(a, b.Value), true
		}
	case string:
		if b, ok := b.(string); ok {
			switch {
			case a < b:
				return -1, true
			case a > b:
				return 1, true
			}
			return 0, true
		}
	case Currency:
		switch b := b.(type) {
		case Currency:
			return cmpFloat(a.Value, b.Value), true
		case float64:
			return cmpFloat(a.Value, b), true
		}
	case TimeOfDay:
		if b, ok := b.(TimeOfDay); ok {
			return cmpFloat(a.seconds(), b.seconds()), true
		}
	case bool:
		if b, ok := b.(bool); ok {
			return cmpFloat(boolNumber(a), boolNumber(b)), true
		}
	}
	return 0, false
}

func (t TimeOfDay) seconds() float64 {
	return float64(t.Hour*3600 + t.Minute*60 + t.Second)
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case Currency:
		return v.Value, true
	}
	return 0, false
}

// copyRow returns a shallow copy of v if it is a Row.
func copyRow(v any) any {
	row, ok := v.(Row)
	if !ok {
		return v
	}
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
