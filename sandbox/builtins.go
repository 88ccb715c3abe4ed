package sandbox

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type builtinFunc func(in *interp, line int, args []any) any

var builtins map[string]*builtin

func init() {
	funcs := map[string]builtinFunc{
		"call":       biCall,
		"tools":      biTools,
		"len":        biLen,
		"str":        biStr,
		"num":        biNum,
		"int":        biInt,
		"round":      biRound,
		"abs":        biAbs,
		"type":       biType,
		"sum":        biSum,
		"min":        biMin,
		"max":        biMax,
		"avg":        biAvg,
		"count":      biCount,
		"map":        biMap,
		"filter":     biFilter,
		"reduce":     biReduce,
		"sort":       biSort,
		"reverse":    biReverse,
		"keys":       biKeys,
		"values":     biValues,
		"range":      biRange,
		"append":     biAppend,
		"join":       biJoin,
		"split":      biSplit,
		"upper":      biUpper,
		"lower":      biLower,
		"trim":       biTrim,
		"contains":   biContains,
		"startswith": biStartsWith,
		"endswith":   biEndsWith,
		"replace":    biReplace,
		"get":        biGet,
		"json":       biJSON,
		"parse_json": biParseJSON,
		"jget":       biJGet,
		"jset":       biJSet,
		"fail":       biFail,
	}
	builtins = make(map[string]*builtin, len(funcs))
	for name, fn := range funcs {
		builtins[name] = &builtin{name: name, fn: fn}
	}
}

// BuiltinNames returns the names of the script builtins, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (in *interp) argc(line int, name string, args []any, minN, maxN int) {
	if len(args) < minN || len(args) > maxN {
		if minN == maxN {
			in.fail(TypeError, line, "%s() takes %d arguments (%d given)", name, minN, len(args))
		}
		in.fail(TypeError, line, "%s() takes %d to %d arguments (%d given)", name, minN, maxN, len(args))
	}
}

func (in *interp) argString(line int, name string, v any) string {
	s, ok := v.(string)
	if !ok {
		in.fail(TypeError, line, "%s() expects string, not %s", name, typeName(v))
	}
	return s
}

func (in *interp) argNumber(line int, name string, v any) float64 {
	f, ok := v.(float64)
	if !ok {
		in.fail(TypeError, line, "%s() expects number, not %s", name, typeName(v))
	}
	return f
}

func (in *interp) argInt(line int, name string, v any) int {
	i, ok := asInt(v)
	if !ok {
		in.fail(TypeError, line, "%s() expects integer, not %s", name, typeName(v))
	}
	return i
}

func (in *interp) argList(line int, name string, v any) []any {
	l, ok := v.([]any)
	if !ok {
		in.fail(TypeError, line, "%s() expects list, not %s", name, typeName(v))
	}
	return l
}

func (in *interp) argMap(line int, name string, v any) *Map {
	m, ok := v.(*Map)
	if !ok {
		in.fail(TypeError, line, "%s() expects map, not %s", name, typeName(v))
	}
	return m
}

func (in *interp) argFunc(line int, name string, v any) any {
	switch v.(type) {
	case *lambda, *builtin, *capability:
		return v
	}
	in.fail(TypeError, line, "%s() expects function, not %s", name, typeName(v))
	return nil
}

// seqArgs accepts a single list or several values, as min and max do.
func (in *interp) seqArgs(line int, name string, args []any) []any {
	if len(args) == 0 {
		in.fail(TypeError, line, "%s() expects at least 1 argument", name)
	}
	if len(args) == 1 {
		return in.argList(line, name, args[0])
	}
	return args
}

func biCall(in *interp, line int, args []any) any {
	in.argc(line, "call", args, 1, 2)
	name := in.argString(line, "call", args[0])
	d := in.lookupCapability(line, name)
	var arg any
	if len(args) == 2 {
		arg = args[1]
	}
	return in.callCapability(line, d, arg)
}

func biTools(in *interp, line int, args []any) any {
	in.argc(line, "tools", args, 0, 0)
	return in.capabilityNames()
}

func biLen(in *interp, line int, args []any) any {
	in.argc(line, "len", args, 1, 1)
	switch v := args[0].(type) {
	case string:
		return float64(len([]rune(v)))
	case []any:
		return float64(len(v))
	case *Map:
		return float64(v.Len())
	}
	in.fail(TypeError, line, "object of type %s has no len()", typeName(args[0]))
	return nil
}

func biStr(in *interp, line int, args []any) any {
	in.argc(line, "str", args, 1, 1)
	return toText(args[0])
}

func toNumber(in *interp, line int, name string, v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			in.fail(ValueError, line, "%s(): invalid number %q", name, x)
		}
		return f
	}
	in.fail(TypeError, line, "%s() expects string or number, not %s", name, typeName(v))
	return 0
}

func biNum(in *interp, line int, args []any) any {
	in.argc(line, "num", args, 1, 1)
	return toNumber(in, line, "num", args[0])
}

func biInt(in *interp, line int, args []any) any {
	in.argc(line, "int", args, 1, 1)
	return math.Trunc(toNumber(in, line, "int", args[0]))
}

func biRound(in *interp, line int, args []any) any {
	in.argc(line, "round", args, 1, 2)
	x := in.argNumber(line, "round", args[0])
	digits := 0
	if len(args) == 2 {
		digits = in.argInt(line, "round", args[1])
	}
	if digits == 0 {
		return math.RoundToEven(x)
	}
	p := math.Pow(10, float64(digits))
	return math.RoundToEven(x*p) / p
}

func biAbs(in *interp, line int, args []any) any {
	in.argc(line, "abs", args, 1, 1)
	return math.Abs(in.argNumber(line, "abs", args[0]))
}

func biType(in *interp, line int, args []any) any {
	in.argc(line, "type", args, 1, 1)
	return typeName(args[0])
}

func biSum(in *interp, line int, args []any) any {
	in.argc(line, "sum", args, 1, 1)
	total := 0.0
	for _, v := range in.argList(line, "sum", args[0]) {
		total += in.argNumber(line, "sum", v)
	}
	return total
}

func (in *interp) extreme(line int, name string, args []any, sign int) any {
	items := in.seqArgs(line, name, args)
	if len(items) == 0 {
		in.fail(ValueError, line, "%s() arg is an empty list", name)
	}
	best := items[0]
	for _, v := range items[1:] {
		c, ok := compare(v, best)
		if !ok {
			in.fail(TypeError, line, "%s() cannot compare %s and %s", name, typeName(v), typeName(best))
		}
		if c*sign > 0 {
			best = v
		}
	}
	return best
}

func biMin(in *interp, line int, args []any) any {
	return in.extreme(line, "min", args, -1)
}

func biMax(in *interp, line int, args []any) any {
	return in.extreme(line, "max", args, 1)
}

func biAvg(in *interp, line int, args []any) any {
	in.argc(line, "avg", args, 1, 1)
	list := in.argList(line, "avg", args[0])
	if len(list) == 0 {
		in.fail(ValueError, line, "avg() arg is an empty list")
	}
	total := 0.0
	for _, v := range list {
		total += in.argNumber(line, "avg", v)
	}
	return total / float64(len(list))
}

func biCount(in *interp, line int, args []any) any {
	in.argc(line, "count", args, 1, 2)
	list := in.argList(line, "count", args[0])
	if len(args) == 1 {
		return float64(len(list))
	}
	fn := in.argFunc(line, "count", args[1])
	n := 0
	for _, v := range list {
		if truthy(in.call(line, fn, []any{v})) {
			n++
		}
	}
	return float64(n)
}

func biMap(in *interp, line int, args []any) any {
	in.argc(line, "map", args, 2, 2)
	list := in.argList(line, "map", args[0])
	fn := in.argFunc(line, "map", args[1])
	res := make([]any, len(list))
	for i, v := range list {
		res[i] = in.call(line, fn, []any{v})
	}
	return res
}

func biFilter(in *interp, line int, args []any) any {
	in.argc(line, "filter", args, 2, 2)
	list := in.argList(line, "filter", args[0])
	fn := in.argFunc(line, "filter", args[1])
	res := []any{}
	for _, v := range list {
		if truthy(in.call(line, fn, []any{v})) {
			res = append(res, v)
		}
	}
	return res
}

func biReduce(in *interp, line int, args []any) any {
	in.argc(line, "reduce", args, 2, 3)
	list := in.argList(line, "reduce", args[0])
	fn := in.argFunc(line, "reduce", args[1])
	var acc any
	if len(args) == 3 {
		acc = args[2]
	} else {
		if len(list) == 0 {
			in.fail(ValueError, line, "reduce() of empty list with no initial value")
		}
		acc, list = list[0], list[1:]
	}
	for _, v := range list {
		acc = in.call(line, fn, []any{acc, v})
	}
	return acc
}

func biSort(in *interp, line int, args []any) any {
	in.argc(line, "sort", args, 1, 2)
	list := slices.Clone(in.argList(line, "sort", args[0]))
	keys := list
	if len(args) == 2 {
		fn := in.argFunc(line, "sort", args[1])
		keys = make([]any, len(list))
		for i, v := range list {
			keys[i] = in.call(line, fn, []any{v})
		}
	}

	idx := make([]int, len(list))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		c, ok := compare(keys[a], keys[b])
		if !ok {
			in.fail(TypeError, line, "sort() cannot compare %s and %s", typeName(keys[a]), typeName(keys[b]))
		}
		return c
	})

	res := make([]any, len(list))
	for i, j := range idx {
		res[i] = list[j]
	}
	return res
}

func biReverse(in *interp, line int, args []any) any {
	in.argc(line, "reverse", args, 1, 1)
	if s, ok := args[0].(string); ok {
		runes := []rune(s)
		slices.Reverse(runes)
		return string(runes)
	}
	res := slices.Clone(in.argList(line, "reverse", args[0]))
	slices.Reverse(res)
	return res
}

func biKeys(in *interp, line int, args []any) any {
	in.argc(line, "keys", args, 1, 1)
	m := in.argMap(line, "keys", args[0])
	res := make([]any, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		res = append(res, pair.Key)
	}
	return res
}

func biValues(in *interp, line int, args []any) any {
	in.argc(line, "values", args, 1, 1)
	m := in.argMap(line, "values", args[0])
	res := make([]any, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		res = append(res, pair.Value)
	}
	return res
}

func biRange(in *interp, line int, args []any) any {
	in.argc(line, "range", args, 1, 3)
	start, stop, step := 0, 0, 1
	switch len(args) {
	case 1:
		stop = in.argInt(line, "range", args[0])
	default:
		start = in.argInt(line, "range", args[0])
		stop = in.argInt(line, "range", args[1])
		if len(args) == 3 {
			step = in.argInt(line, "range", args[2])
		}
	}
	if step == 0 {
		in.fail(ValueError, line, "range() step must not be zero")
	}
	res := []any{}
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if len(res) >= maxRepeatItems {
			in.fail(ValueError, line, "range() is too large")
		}
		res = append(res, float64(i))
	}
	return res
}

func biAppend(in *interp, line int, args []any) any {
	if len(args) == 0 {
		in.fail(TypeError, line, "append() expects at least 1 argument")
	}
	list := in.argList(line, "append", args[0])
	res := make([]any, 0, len(list)+len(args)-1)
	res = append(res, list...)
	return append(res, args[1:]...)
}

func biJoin(in *interp, line int, args []any) any {
	in.argc(line, "join", args, 1, 2)
	list := in.argList(line, "join", args[0])
	sep := ""
	if len(args) == 2 {
		sep = in.argString(line, "join", args[1])
	}
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = toText(v)
	}
	return strings.Join(parts, sep)
}

func toList(parts []string) []any {
	res := make([]any, len(parts))
	for i, p := range parts {
		res[i] = p
	}
	return res
}

func biSplit(in *interp, line int, args []any) any {
	in.argc(line, "split", args, 1, 2)
	s := in.argString(line, "split", args[0])
	if len(args) == 1 {
		return toList(strings.Fields(s))
	}
	sep := in.argString(line, "split", args[1])
	if sep == "" {
		return toList(strings.Fields(s))
	}
	return toList(strings.Split(s, sep))
}

func biUpper(in *interp, line int, args []any) any {
	in.argc(line, "upper", args, 1, 1)
	return strings.ToUpper(in.argString(line, "upper", args[0]))
}

func biLower(in *interp, line int, args []any) any {
	in.argc(line, "lower", args, 1, 1)
	return strings.ToLower(in.argString(line, "lower", args[0]))
}

func biTrim(in *interp, line int, args []any) any {
	in.argc(line, "trim", args, 1, 2)
	s := in.argString(line, "trim", args[0])
	if len(args) == 2 {
		return strings.Trim(s, in.argString(line, "trim", args[1]))
	}
	return strings.TrimSpace(s)
}

func biContains(in *interp, line int, args []any) any {
	in.argc(line, "contains", args, 2, 2)
	return in.contains(line, args[0], args[1])
}

func biStartsWith(in *interp, line int, args []any) any {
	in.argc(line, "startswith", args, 2, 2)
	return strings.HasPrefix(in.argString(line, "startswith", args[0]), in.argString(line, "startswith", args[1]))
}

func biEndsWith(in *interp, line int, args []any) any {
	in.argc(line, "endswith", args, 2, 2)
	return strings.HasSuffix(in.argString(line, "endswith", args[0]), in.argString(line, "endswith", args[1]))
}

func biReplace(in *interp, line int, args []any) any {
	in.argc(line, "replace", args, 3, 3)
	return strings.ReplaceAll(
		in.argString(line, "replace", args[0]),
		in.argString(line, "replace", args[1]),
		in.argString(line, "replace", args[2]),
	)
}

// biGet returns the item, or the default when the key or index is missing.
func biGet(in *interp, line int, args []any) any {
	in.argc(line, "get", args, 2, 3)
	var def any
	if len(args) == 3 {
		def = args[2]
	}
	switch c := args[0].(type) {
	case *Map:
		key, ok := args[1].(string)
		if !ok {
			return def
		}
		if v, found := c.Get(key); found {
			return v
		}
	case []any:
		i, ok := asInt(args[1])
		if !ok {
			return def
		}
		if i < 0 {
			i += len(c)
		}
		if i >= 0 && i < len(c) {
			return c[i]
		}
	case nil:
	default:
		in.fail(TypeError, line, "get() expects map or list, not %s", typeName(args[0]))
	}
	return def
}

func biJSON(in *interp, line int, args []any) any {
	in.argc(line, "json", args, 1, 1)
	return toJSON(args[0])
}

func biParseJSON(in *interp, line int, args []any) any {
	in.argc(line, "parse_json", args, 1, 1)
	v, err := decodeJSON(in.argString(line, "parse_json", args[0]))
	if err != nil {
		in.fail(ValueError, line, "parse_json(): %s", err.Error())
	}
	return v
}

// jsonSource returns JSON text of a string argument as is, or of any other value encoded.
func jsonSource(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return toJSON(v)
}

// biJGet returns the value at the gjson path, or null when the path does not exist.
func biJGet(in *interp, line int, args []any) any {
	in.argc(line, "jget", args, 2, 2)
	src := jsonSource(args[0])
	path := in.argString(line, "jget", args[1])
	if !gjson.Valid(src) {
		in.fail(ValueError, line, "jget(): invalid JSON")
	}
	res := gjson.Get(src, path)
	if !res.Exists() {
		return nil
	}
	v, err := decodeJSON(res.Raw)
	if err != nil {
		in.fail(ValueError, line, "jget(): %s", err.Error())
	}
	return v
}

// biJSet returns the JSON text with the value set at the sjson path.
func biJSet(in *interp, line int, args []any) any {
	in.argc(line, "jset", args, 3, 3)
	src := jsonSource(args[0])
	path := in.argString(line, "jset", args[1])
	out, err := sjson.SetRaw(src, path, toJSON(args[2]))
	if err != nil {
		in.fail(ValueError, line, "jset(): %s", err.Error())
	}
	return out
}

func biFail(in *interp, line int, args []any) any {
	in.argc(line, "fail", args, 0, 1)
	msg := "failed"
	if len(args) == 1 {
		msg = toText(args[0])
	}
	in.fail(ValueError, line, "%s", msg)
	return nil
}
