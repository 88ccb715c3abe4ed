package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/toolscope/callbacks"
	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
)

func testSelection() *selector.Selection {
	return &selector.Selection{
		Query:  "weather in tokyo",
		TopK:   1,
		Scorer: "lexical",
		Items: []selector.Item{
			{Descriptor: tools.FromTool(&fakeTool{name: "search"}, tools.Eager()), Tag: selector.TagAlways},
			{Descriptor: tools.FromTool(&fakeTool{name: "weather"}), Tag: selector.TagMatched, Score: 0.5},
		},
	}
}

func testFault() *sandbox.Result {
	return &sandbox.Result{
		ID:      "1",
		Output:  "Error: ZeroDivisionError: division by zero (line 2)",
		Partial: "before\n",
		Fault:   &sandbox.Fault{Kind: sandbox.ZeroDivisionError, Message: "division by zero", Line: 2},
		Steps:   2,
	}
}

func TestCallback(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)
	ctx := context.Background()

	tool := &fakeTool{name: "test-tool"}

	cb.OnSelect(ctx, testSelection())
	cb.OnToolStart(ctx, tool, "test input")
	cb.OnToolEnd(ctx, tool, "test input", "test output")
	cb.OnToolError(ctx, tool, "test input", errors.New("test error"))
	cb.OnToolNotFound(ctx, "missing")
	cb.OnScriptFault(ctx, testFault())

	res := buf.String()
	assert.Contains(t, res, `Select: "weather in tokyo", lexical scorer, top 1: search, weather`)
	assert.Contains(t, res, "  [ALWAYS] search 0.0000\n")
	assert.Contains(t, res, "  [MATCHED] weather 0.5000\n")
	assert.Contains(t, res, "Tool Start: test-tool")
	assert.Contains(t, res, "Input: test input")
	assert.Contains(t, res, "Tool End: test-tool")
	assert.Contains(t, res, "Output: test output")
	assert.Contains(t, res, "Tool Error: test-tool: test error")
	assert.Contains(t, res, "Tool Not Found: missing")
	assert.Contains(t, res, "Script Fault: 1: Error: ZeroDivisionError: division by zero (line 2)")
	assert.Contains(t, res, "Partial: before\n")

	buf.Reset()
	cb.Mode = callbacks.ModeDefault
	cb.OnToolEnd(ctx, tool, "test input", "test output")
	assert.Equal(t, "Tool End: test-tool\n", buf.String())
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	fo := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fo.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	fo.Add(callbacks.NewNoop())
	fo.Add(callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/toolscope", "callbacks_test")))

	ctx := context.Background()
	tool := &fakeTool{name: "test-tool"}

	fo.OnSelect(ctx, testSelection())
	fo.OnToolStart(ctx, tool, "in")
	fo.OnToolEnd(ctx, tool, "in", "out")
	fo.OnToolError(ctx, tool, "in", errors.New("failed"))
	fo.OnToolNotFound(ctx, "missing")
	fo.OnScriptFault(ctx, testFault())

	assert.Equal(t, buf1.String(), buf2.String())
	assert.Contains(t, buf1.String(), "Tool Not Found: missing")
	assert.Contains(t, buf1.String(), "Script Fault: 1:")
}

type fakeTool struct {
	name        string
	description string
}

func (f *fakeTool) Name() string {
	return f.name
}
func (f *fakeTool) Description() string {
	return values.StringsCoalesce(f.description, "useful tool")
}
func (f *fakeTool) Parameters() any {
	return nil
}
func (f *fakeTool) Call(context.Context, string) (string, error) {
	return "", nil
}
