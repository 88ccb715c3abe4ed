package sandbox

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/pkg/metricskey"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

type env struct {
	vars   map[string]any
	parent *env
}

func newEnv(parent *env) *env {
	return &env{vars: make(map[string]any), parent: parent}
}

func (e *env) lookup(name string) (any, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// assign updates the nearest scope defining the name,
// or defines it in the current scope.
func (e *env) assign(name string, v any) {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			s.vars[name] = v
			return
		}
	}
	e.vars[name] = v
}

// Nesting limits, independent of the step limit.
const (
	// MaxCallDepth bounds nested function calls
	MaxCallDepth = 1000
	// MaxEvalDepth bounds nested expression evaluation
	MaxEvalDepth = 20000
)

type control int

const (
	ctrlNone control = iota
	ctrlBreak
	ctrlContinue
)

// interp holds the state of one script run.
type interp struct {
	ctx      context.Context
	catalog  *catalog.Catalog
	callback tools.Callback
	runID    string

	maxSteps  int
	maxOutput int

	steps     int
	line      int
	calls     int
	depth     int
	out       strings.Builder
	truncated bool
	globals   *env
}

func (in *interp) fail(kind FaultKind, line int, format string, args ...any) {
	panic(newFault(kind, line, format, args...))
}

// step accounts one unit of work and checks for cancellation.
func (in *interp) step(line int) {
	in.line = line
	in.steps++
	if in.maxSteps > 0 && in.steps > in.maxSteps {
		in.fail(StepLimitExceeded, line, "script exceeded %d steps", in.maxSteps)
	}
	if err := in.ctx.Err(); err != nil {
		in.fail(Cancelled, line, "%s", err.Error())
	}
}

func (in *interp) write(s string) {
	if in.truncated {
		return
	}
	if in.maxOutput > 0 && in.out.Len()+len(s) > in.maxOutput {
		remaining := in.maxOutput - in.out.Len()
		cut := s[:remaining]
		// do not split the last rune
		if i := lastRuneStart(cut); i >= 0 && !utf8.FullRuneInString(cut[i:]) {
			cut = cut[:i]
		}
		in.out.WriteString(cut)
		in.truncated = true
		return
	}
	in.out.WriteString(s)
}

// lastRuneStart returns the index of the start byte of the last rune, -1 if none.
func lastRuneStart(s string) int {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			return i
		}
	}
	return -1
}

func (in *interp) execBlock(list []stmt, e *env) control {
	for _, s := range list {
		if c := in.exec(s, e); c != ctrlNone {
			return c
		}
	}
	return ctrlNone
}

func (in *interp) exec(s stmt, e *env) control {
	in.step(s.line())

	switch st := s.(type) {
	case *letStmt:
		e.vars[st.name] = in.eval(st.value, e)
	case *assignStmt:
		in.assign(st, e)
	case *printStmt:
		parts := make([]string, len(st.args))
		for i, a := range st.args {
			parts[i] = toText(in.eval(a, e))
		}
		in.write(strings.Join(parts, " ") + "\n")
	case *exprStmt:
		in.eval(st.x, e)
	case *ifStmt:
		if truthy(in.eval(st.cond, e)) {
			return in.execBlock(st.then, e)
		}
		if st.els != nil {
			return in.execBlock(st.els, e)
		}
	case *forStmt:
		return in.execFor(st, e)
	case *breakStmt:
		return ctrlBreak
	case *continueStmt:
		return ctrlContinue
	default:
		in.fail(InternalError, s.line(), "unknown statement %T", s)
	}
	return ctrlNone
}

func (in *interp) execFor(st *forStmt, e *env) control {
	var items []any
	switch x := in.eval(st.iter, e).(type) {
	case []any:
		// iterate over a snapshot, the body may reassign the list
		items = append([]any(nil), x...)
	case *Map:
		for pair := x.Oldest(); pair != nil; pair = pair.Next() {
			items = append(items, pair.Key)
		}
	case string:
		for _, r := range x {
			items = append(items, string(r))
		}
	default:
		in.fail(TypeError, st.line(), "cannot iterate over %s", typeName(x))
	}

	for _, item := range items {
		in.step(st.line())
		e.assign(st.name, item)
		if c := in.execBlock(st.body, e); c == ctrlBreak {
			break
		}
	}
	return ctrlNone
}

func (in *interp) assign(st *assignStmt, e *env) {
	value := in.eval(st.value, e)
	switch t := st.target.(type) {
	case *identExpr:
		e.assign(t.name, value)
	case *fieldExpr:
		target := in.eval(t.x, e)
		m, ok := target.(*Map)
		if !ok {
			in.fail(TypeError, st.line(), "cannot set field %q on %s", t.name, typeName(target))
		}
		m.Set(t.name, value)
	case *indexExpr:
		container := in.eval(t.x, e)
		index := in.eval(t.index, e)
		switch c := container.(type) {
		case []any:
			i := in.listIndex(st.line(), c, index)
			c[i] = value
		case *Map:
			key, ok := index.(string)
			if !ok {
				in.fail(TypeError, st.line(), "map key must be string, not %s", typeName(index))
			}
			c.Set(key, value)
		default:
			in.fail(TypeError, st.line(), "%s does not support item assignment", typeName(container))
		}
	}
}

func (in *interp) listIndex(line int, list []any, index any) int {
	i, ok := asInt(index)
	if !ok {
		in.fail(TypeError, line, "list index must be integer, not %s", typeName(index))
	}
	if i < 0 {
		i += len(list)
	}
	if i < 0 || i >= len(list) {
		in.fail(IndexError, line, "list index %s out of range", toText(index))
	}
	return i
}

func (in *interp) eval(x expr, e *env) any {
	in.depth++
	defer func() { in.depth-- }()
	if in.depth > MaxEvalDepth {
		in.fail(RecursionError, x.line(), "maximum nesting depth exceeded")
	}
	return in.evalExpr(x, e)
}

func (in *interp) evalExpr(x expr, e *env) any {
	switch ex := x.(type) {
	case *literalExpr:
		return ex.value
	case *identExpr:
		return in.resolve(ex, e)
	case *listExpr:
		list := make([]any, len(ex.items))
		for i, item := range ex.items {
			list[i] = in.eval(item, e)
		}
		return list
	case *mapExpr:
		m := newMap()
		for _, entry := range ex.entries {
			m.Set(entry.key, in.eval(entry.value, e))
		}
		return m
	case *unaryExpr:
		v := in.eval(ex.x, e)
		if ex.op == "not" {
			return !truthy(v)
		}
		f, ok := v.(float64)
		if !ok {
			in.fail(TypeError, ex.line(), "bad operand type for unary -: %s", typeName(v))
		}
		return -f
	case *logicalExpr:
		left := in.eval(ex.x, e)
		if ex.op == "and" {
			if !truthy(left) {
				return left
			}
			return in.eval(ex.y, e)
		}
		if truthy(left) {
			return left
		}
		return in.eval(ex.y, e)
	case *binaryExpr:
		return in.binary(ex, in.eval(ex.x, e), in.eval(ex.y, e))
	case *callExpr:
		fn := in.eval(ex.fn, e)
		args := make([]any, len(ex.args))
		for i, a := range ex.args {
			args[i] = in.eval(a, e)
		}
		return in.call(ex.line(), fn, args)
	case *indexExpr:
		return in.index(ex.line(), in.eval(ex.x, e), in.eval(ex.index, e))
	case *sliceExpr:
		return in.slice(ex, e)
	case *fieldExpr:
		v := in.eval(ex.x, e)
		m, ok := v.(*Map)
		if !ok {
			in.fail(TypeError, ex.line(), "%s has no field %q", typeName(v), ex.name)
		}
		val, ok := m.Get(ex.name)
		if !ok {
			in.fail(KeyError, ex.line(), "%q", ex.name)
		}
		return val
	case *lambdaExpr:
		return &lambda{params: ex.params, body: ex.body, env: e}
	}
	in.fail(InternalError, x.line(), "unknown expression %T", x)
	return nil
}

// resolve looks up variables, then builtins, then capabilities.
func (in *interp) resolve(ex *identExpr, e *env) any {
	if v, ok := e.lookup(ex.name); ok {
		return v
	}
	if b, ok := builtins[ex.name]; ok {
		return b
	}
	if in.catalog != nil {
		if d, err := in.catalog.Lookup(ex.name); err == nil {
			return &capability{desc: d}
		}
	}
	in.fail(NameError, ex.line(), "name %q is not defined", ex.name)
	return nil
}

func (in *interp) binary(ex *binaryExpr, a, b any) any {
	line := ex.line()
	switch ex.op {
	case "==":
		return equal(a, b)
	case "!=":
		return !equal(a, b)
	case "<", "<=", ">", ">=":
		c, ok := compare(a, b)
		if !ok {
			in.fail(TypeError, line, "'%s' not supported between %s and %s", ex.op, typeName(a), typeName(b))
		}
		switch ex.op {
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		}
		return c >= 0
	case "in":
		return in.contains(line, b, a)
	case "+":
		switch x := a.(type) {
		case float64:
			if y, ok := b.(float64); ok {
				return x + y
			}
		case string:
			if y, ok := b.(string); ok {
				return x + y
			}
		case []any:
			if y, ok := b.([]any); ok {
				res := make([]any, 0, len(x)+len(y))
				return append(append(res, x...), y...)
			}
		}
	case "*":
		switch x := a.(type) {
		case float64:
			switch y := b.(type) {
			case float64:
				return x * y
			case string, []any:
				return in.repeat(line, b, a)
			}
		case string, []any:
			return in.repeat(line, a, b)
		}
	case "-", "/", "%":
		x, ok1 := a.(float64)
		y, ok2 := b.(float64)
		if !ok1 || !ok2 {
			break
		}
		switch ex.op {
		case "-":
			return x - y
		case "/":
			if y == 0 {
				in.fail(ZeroDivisionError, line, "division by zero")
			}
			return x / y
		}
		if y == 0 {
			in.fail(ZeroDivisionError, line, "modulo by zero")
		}
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return r
	}
	in.fail(TypeError, line, "unsupported operand types for %s: %s and %s", ex.op, typeName(a), typeName(b))
	return nil
}

func (in *interp) repeat(line int, seq any, count any) any {
	n, ok := asInt(count)
	if !ok {
		in.fail(TypeError, line, "can't multiply sequence by non-integer")
	}
	n = max(n, 0)
	switch s := seq.(type) {
	case string:
		if len(s)*n > maxRepeatBytes {
			in.fail(ValueError, line, "repeated string is too large")
		}
		return strings.Repeat(s, n)
	case []any:
		if len(s)*n > maxRepeatItems {
			in.fail(ValueError, line, "repeated list is too large")
		}
		res := make([]any, 0, len(s)*n)
		for range n {
			res = append(res, s...)
		}
		return res
	}
	return nil
}

const (
	maxRepeatBytes = 1 << 24
	maxRepeatItems = 1 << 20
)

func (in *interp) contains(line int, container, item any) bool {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			in.fail(TypeError, line, "'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s)
	case []any:
		for _, v := range c {
			if equal(v, item) {
				return true
			}
		}
		return false
	case *Map:
		key, ok := item.(string)
		if !ok {
			return false
		}
		_, found := c.Get(key)
		return found
	}
	in.fail(TypeError, line, "argument of type %s is not iterable", typeName(container))
	return false
}

func (in *interp) index(line int, container, index any) any {
	switch c := container.(type) {
	case []any:
		return c[in.listIndex(line, c, index)]
	case string:
		runes := []rune(c)
		i, ok := asInt(index)
		if !ok {
			in.fail(TypeError, line, "string index must be integer, not %s", typeName(index))
		}
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			in.fail(IndexError, line, "string index %s out of range", toText(index))
		}
		return string(runes[i])
	case *Map:
		key, ok := index.(string)
		if !ok {
			in.fail(TypeError, line, "map key must be string, not %s", typeName(index))
		}
		v, found := c.Get(key)
		if !found {
			in.fail(KeyError, line, "%q", key)
		}
		return v
	}
	in.fail(TypeError, line, "%s is not subscriptable", typeName(container))
	return nil
}

func (in *interp) slice(ex *sliceExpr, e *env) any {
	v := in.eval(ex.x, e)
	var length int
	switch c := v.(type) {
	case []any:
		length = len(c)
	case string:
		length = utf8.RuneCountInString(c)
	default:
		in.fail(TypeError, ex.line(), "%s is not sliceable", typeName(v))
	}

	bound := func(x expr, def int) int {
		if x == nil {
			return def
		}
		b := in.eval(x, e)
		i, ok := asInt(b)
		if !ok {
			in.fail(TypeError, ex.line(), "slice index must be integer, not %s", typeName(b))
		}
		if i < 0 {
			i += length
		}
		return min(max(i, 0), length)
	}
	start := bound(ex.start, 0)
	end := bound(ex.end, length)
	if end < start {
		end = start
	}

	if s, ok := v.(string); ok {
		return string([]rune(s)[start:end])
	}
	return append([]any(nil), v.([]any)[start:end]...)
}

// call applies a callable to evaluated arguments.
func (in *interp) call(line int, fn any, args []any) any {
	switch f := fn.(type) {
	case *builtin:
		return f.fn(in, line, args)
	case *lambda:
		return in.apply(line, f, args)
	case *capability:
		if len(args) > 1 {
			in.fail(TypeError, line, "%s() takes at most 1 argument (%d given)", f.desc.Name(), len(args))
		}
		var arg any
		if len(args) == 1 {
			arg = args[0]
		}
		return in.callCapability(line, f.desc, arg)
	}
	in.fail(TypeError, line, "%s is not callable", typeName(fn))
	return nil
}

func (in *interp) apply(line int, f *lambda, args []any) any {
	if len(args) != len(f.params) {
		in.fail(TypeError, line, "function takes %d arguments (%d given)", len(f.params), len(args))
	}
	in.step(line)
	in.calls++
	defer func() { in.calls-- }()
	if in.calls > MaxCallDepth {
		in.fail(RecursionError, line, "maximum recursion depth exceeded")
	}
	scope := newEnv(f.env)
	for i, p := range f.params {
		scope.vars[p] = args[i]
	}
	return in.eval(f.body, scope)
}

// capabilityInput converts a script value to the text passed to a capability.
// Maps and lists are passed as JSON.
func capabilityInput(arg any) string {
	switch a := arg.(type) {
	case nil:
		return ""
	case string:
		return a
	case []any, *Map:
		return toJSON(a)
	}
	return toText(arg)
}

func (in *interp) callCapability(line int, d *tools.Descriptor, arg any) any {
	name := d.Name()
	tool := d.Invocation()
	input := capabilityInput(arg)

	metricskey.StatsSandboxCapabilityCalls.IncrCounter(1, name)
	if in.callback != nil {
		in.callback.OnToolStart(in.ctx, tool, input)
	}

	out, err := in.invoke(tool, input)
	if err != nil {
		if in.callback != nil {
			in.callback.OnToolError(in.ctx, tool, input, err)
		}
		logger.ContextKV(in.ctx, xlog.DEBUG,
			"run_id", in.runID,
			"tool", name,
			"err", err.Error(),
		)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			in.fail(Cancelled, line, "%s: %s", name, err.Error())
		}
		in.fail(CapabilityError, line, "%s: %s", name, err.Error())
	}
	if in.callback != nil {
		in.callback.OnToolEnd(in.ctx, tool, input, out)
	}
	logger.ContextKV(in.ctx, xlog.DEBUG,
		"run_id", in.runID,
		"tool", name,
		"input", slices.StringUpto(input, 64),
		"output_size", len(out),
	)
	return out
}

// invoke calls the capability, converting a panic into an error.
func (in *interp) invoke(tool tools.ITool, input string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return tool.Call(in.ctx, input)
}

func (in *interp) capabilityNames() []any {
	if in.catalog == nil {
		return []any{}
	}
	names := in.catalog.Names()
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	return list
}

func (in *interp) lookupCapability(line int, name string) *tools.Descriptor {
	if in.catalog == nil {
		in.fail(UnknownCapability, line, "%s", name)
	}
	d, err := in.catalog.Lookup(name)
	if err != nil {
		in.fail(UnknownCapability, line, "%s", name)
	}
	return d
}
