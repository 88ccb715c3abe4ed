package sandbox

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/effective-security/toolscope/tools"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Script values are nil, bool, float64, string, []any, *Map,
// and the callables *lambda, *builtin and *capability.

// Map is an insertion ordered map of script values.
type Map = orderedmap.OrderedMap[string, any]

func newMap() *Map {
	return orderedmap.New[string, any]()
}

type lambda struct {
	params []string
	body   expr
	env    *env
}

type builtin struct {
	name string
	fn   builtinFunc
}

type capability struct {
	desc *tools.Descriptor
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case *Map:
		return "map"
	case *lambda, *builtin, *capability:
		return "function"
	}
	return "unknown"
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case *Map:
		return x.Len() > 0
	}
	return true
}

// formatNumber prints integral values without a fractional part.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// toText returns the printed form of the value.
// Lists and maps are printed as JSON.
func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	}
	return toJSON(v)
}

// toJSON returns the compact JSON of the value.
// A value containing itself faults with ValueError.
func toJSON(v any) string {
	w := &jsonWriter{active: make(map[any]bool)}
	w.write(v)
	return w.sb.String()
}

type jsonWriter struct {
	sb strings.Builder
	// containers being written, keyed by *Map or the first element of a list
	active map[any]bool
}

func (w *jsonWriter) enter(key any) {
	if w.active[key] {
		panic(newFault(ValueError, 0, "circular reference detected"))
	}
	if len(w.active) >= MaxEvalDepth {
		panic(newFault(RecursionError, 0, "value nested too deeply"))
	}
	w.active[key] = true
}

func (w *jsonWriter) write(v any) {
	sb := &w.sb
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(x))
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			sb.WriteString("null")
			return
		}
		sb.WriteString(formatNumber(x))
	case string:
		sb.WriteString(quoteJSON(x))
	case []any:
		if len(x) > 0 {
			w.enter(&x[0])
			defer delete(w.active, &x[0])
		}
		sb.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			w.write(item)
		}
		sb.WriteByte(']')
	case *Map:
		w.enter(x)
		defer delete(w.active, x)
		sb.WriteByte('{')
		first := true
		for pair := x.Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			sb.WriteString(quoteJSON(pair.Key))
			sb.WriteByte(':')
			w.write(pair.Value)
		}
		sb.WriteByte('}')
	case *lambda:
		sb.WriteString(quoteJSON("<function>"))
	case *builtin:
		sb.WriteString(quoteJSON("<builtin " + x.name + ">"))
	case *capability:
		sb.WriteString(quoteJSON("<capability " + x.desc.Name() + ">"))
	default:
		sb.WriteString("null")
	}
}

func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// equal compares values deeply. Containers already being compared
// higher up are assumed equal, so self-referencing values terminate.
func equal(a, b any) bool {
	return deepEqual(a, b, make(map[[2]any]bool))
}

func deepEqual(a, b any, active map[[2]any]bool) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		if len(x) == 0 {
			return true
		}
		pair := [2]any{&x[0], &y[0]}
		if active[pair] {
			return true
		}
		enterCompare(active, pair)
		defer delete(active, pair)
		for i := range x {
			if !deepEqual(x[i], y[i], active) {
				return false
			}
		}
		return true
	case *Map:
		y, ok := b.(*Map)
		if !ok || x.Len() != y.Len() {
			return false
		}
		if x == y {
			return true
		}
		key := [2]any{x, y}
		if active[key] {
			return true
		}
		enterCompare(active, key)
		defer delete(active, key)
		for pair := x.Oldest(); pair != nil; pair = pair.Next() {
			other, ok := y.Get(pair.Key)
			if !ok || !deepEqual(pair.Value, other, active) {
				return false
			}
		}
		return true
	}
	return a == b
}

func enterCompare(active map[[2]any]bool, key [2]any) {
	if len(active) >= MaxEvalDepth {
		panic(newFault(RecursionError, 0, "value nested too deeply"))
	}
	active[key] = true
}

// compare orders numbers and strings. ok is false for other types.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	}
	return 0, false
}

// asInt returns the integral value of a number.
func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
