package toolset_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/mocks/mocktoolset"
	"github.com/effective-security/toolscope/pkg/llmutils"
	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/toolset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testDescriptors() []*tools.Descriptor {
	return []*tools.Descriptor{
		tools.New("search", "web search for news",
			tools.Func("search", "web search for news", nil, func(_ context.Context, input string) (string, error) {
				return "results for " + input, nil
			}),
			tools.Eager(), tools.WithExamples("search('news')")),
		tools.New("weather", "weather forecast for a city",
			tools.Func("weather", "weather forecast for a city", nil, func(_ context.Context, input string) (string, error) {
				return "sunny in " + input, nil
			}),
			tools.WithExamples("weather('Tokyo')", "weather('London')")),
		tools.New("fx", "currency conversion rate",
			tools.Func("fx", "currency conversion rate", nil, func(_ context.Context, input string) (string, error) {
				return "", errors.WithStack(llmutils.ErrFailedUnmarshalInput)
			})),
		tools.New("fails", "always fails",
			tools.Func("fails", "always fails", nil, func(_ context.Context, input string) (string, error) {
				return "", errors.New("upstream unavailable")
			})),
		tools.New("panics", "always panics",
			tools.Func("panics", "always panics", nil, func(_ context.Context, input string) (string, error) {
				panic("boom")
			})),
	}
}

// testToolset returns a toolset with the sandbox registered in the catalog.
func testToolset(t *testing.T, opts ...toolset.Option) *toolset.Toolset {
	cat := catalog.New()
	for _, d := range testDescriptors() {
		require.NoError(t, cat.Register(d))
	}
	sb := sandbox.New(sandbox.WithCatalog(cat))
	require.NoError(t, cat.Register(sandbox.Descriptor(sb)))
	cat.Freeze()
	return toolset.New(cat, opts...)
}

func TestExpose(t *testing.T) {
	ts := toolset.New(catalog.MustBuild(testDescriptors()...), toolset.WithTopK(1))
	assert.Equal(t, 1, ts.TopK())
	assert.NotNil(t, ts.Selector())
	assert.Equal(t, 5, ts.Catalog().Len())

	exp, err := ts.Expose(context.Background(), "weather forecast for tokyo")
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "weather"}, exp.Names())
	assert.Equal(t, 1, exp.Selection.Matched())

	listing, err := exp.Listing()
	require.NoError(t, err)
	assert.Contains(t, listing, "  [ALWAYS] search\n           Example: search('news')\n")
	assert.Contains(t, listing, "  [MATCHED] weather\n           Example: weather('Tokyo')\n")
	assert.Less(t, strings.Index(listing, "[ALWAYS]"), strings.Index(listing, "[MATCHED]"))

	defs := exp.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "search", defs[0].Name)
	assert.Equal(t, "weather", defs[1].Name)
	assert.Equal(t, "weather forecast for a city\n\nExamples:\n- weather('Tokyo')\n- weather('London')", defs[1].Description)
	assert.NotNil(t, defs[1].Parameters)

	t.Run("zero topK", func(t *testing.T) {
		exp, err := toolset.New(ts.Catalog(), toolset.WithTopK(0)).Expose(context.Background(), "weather")
		require.NoError(t, err)
		assert.Equal(t, []string{"search"}, exp.Names())
	})

	t.Run("invalid topK", func(t *testing.T) {
		_, err := ts.Select(context.Background(), "weather", -1)
		assert.True(t, errors.Is(err, selector.ErrInvalidTopK))
	})
}

func TestExposureDispatch(t *testing.T) {
	ts := toolset.New(catalog.MustBuild(testDescriptors()...), toolset.WithTopK(1))
	exp, err := ts.Expose(context.Background(), "weather forecast for tokyo")
	require.NoError(t, err)

	res := exp.Dispatch(context.Background(), toolset.ToolCall{ID: "1", Name: "weather", Arguments: "Tokyo"})
	assert.Equal(t, "sunny in Tokyo", res.Content)
	assert.False(t, res.IsError)

	// in the catalog, but not exposed
	res = exp.Dispatch(context.Background(), toolset.ToolCall{ID: "2", Name: "fails", Arguments: "x"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Tool `fails` not found. Please check the tool name and try again with exact match. Available tools: search, weather", res.Content)

	results := exp.DispatchAll(context.Background(), []toolset.ToolCall{
		{ID: "a", Name: "search", Arguments: "go"},
		{ID: "b", Name: "fx", Arguments: "USD"},
	})
	require.Len(t, results, 2)
	assert.Equal(t, "results for go", results[0].Content)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "Tool `fx` not found")
}

func TestDispatch(t *testing.T) {
	ts := testToolset(t)
	ctx := context.Background()

	tcases := []struct {
		name    string
		args    string
		exp     string
		isError bool
	}{
		{name: "weather", args: "Tokyo", exp: "sunny in Tokyo"},
		{name: "search", args: "go", exp: "results for go"},
		{name: "fails", args: "x", exp: "Tool call failed: upstream unavailable", isError: true},
		{name: "panics", args: "x", exp: "Tool call failed: panic: boom", isError: true},
		{name: "fx", args: "{", exp: toolset.UnmarshalInputMessage, isError: true},
		{name: "run_orchestration", args: `print weather("Tokyo")`, exp: "sunny in Tokyo\n"},
		{name: "run_orchestration", args: `{"script": "let x = 1"}`, exp: sandbox.NoOutputMessage},
		{name: "run_orchestration", args: "print \"a\"\nprint 1/0", exp: "Error: ZeroDivisionError: division by zero (line 2)", isError: true},
		{
			name:    "nope",
			exp:     "Tool `nope` not found. Please check the tool name and try again with exact match. Available tools: search, weather, fx, fails, panics, run_orchestration",
			isError: true,
		},
		{name: "Weather", args: "Tokyo", exp: "Tool `Weather` not found", isError: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			res := ts.Dispatch(ctx, toolset.ToolCall{ID: "call_1", Name: tc.name, Arguments: tc.args})
			assert.Equal(t, "call_1", res.CallID)
			assert.Equal(t, tc.name, res.Name)
			assert.Equal(t, tc.isError, res.IsError)
			if tc.isError && !strings.HasPrefix(tc.exp, "Error:") && strings.HasPrefix(tc.exp, "Tool `") {
				assert.True(t, strings.HasPrefix(res.Content, tc.exp), res.Content)
			} else {
				assert.Equal(t, tc.exp, res.Content)
			}
		})
	}

	t.Run("generated id", func(t *testing.T) {
		res := ts.Dispatch(ctx, toolset.ToolCall{Name: "weather", Arguments: "Paris"})
		assert.NotEmpty(t, res.CallID)
		assert.Equal(t, "sunny in Paris", res.Content)
	})
}

func TestDispatchAll(t *testing.T) {
	ts := testToolset(t)

	var calls []toolset.ToolCall
	for _, city := range []string{"Tokyo", "London", "Paris", "Berlin", "Rome"} {
		calls = append(calls, toolset.ToolCall{ID: city, Name: "weather", Arguments: city})
	}
	calls = append(calls, toolset.ToolCall{ID: "missing", Name: "missing"})

	results := ts.DispatchAll(context.Background(), calls)
	require.Len(t, results, len(calls))
	for i, res := range results[:5] {
		assert.Equal(t, calls[i].ID, res.CallID)
		assert.Equal(t, "sunny in "+calls[i].Arguments, res.Content)
	}
	assert.True(t, results[5].IsError)

	assert.Empty(t, ts.DispatchAll(context.Background(), nil))
}

func TestDispatchCallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	cb := mocktoolset.NewMockCallback(ctrl)
	ts := testToolset(t, toolset.WithCallback(cb))
	ctx := context.Background()

	cb.EXPECT().OnToolStart(ctx, gomock.Any(), "Tokyo").Times(1)
	cb.EXPECT().OnToolEnd(ctx, gomock.Any(), "Tokyo", "sunny in Tokyo").Times(1)
	ts.Dispatch(ctx, toolset.ToolCall{Name: "weather", Arguments: "Tokyo"})

	cb.EXPECT().OnToolStart(ctx, gomock.Any(), "x").Times(1)
	cb.EXPECT().OnToolError(ctx, gomock.Any(), "x", gomock.Any()).Times(1)
	ts.Dispatch(ctx, toolset.ToolCall{Name: "fails", Arguments: "x"})

	cb.EXPECT().OnToolNotFound(ctx, "nope").Times(1)
	ts.Dispatch(ctx, toolset.ToolCall{Name: "nope"})

	cb.EXPECT().OnToolStart(ctx, gomock.Any(), "print 1/0").Times(1)
	cb.EXPECT().OnScriptFault(ctx, gomock.Any()).
		Do(func(_ context.Context, res *sandbox.Result) {
			assert.False(t, res.Success)
			assert.Equal(t, sandbox.ZeroDivisionError, res.Fault.Kind)
		}).Times(1)
	cb.EXPECT().OnToolEnd(ctx, gomock.Any(), "print 1/0", gomock.Any()).Times(1)
	ts.Dispatch(ctx, toolset.ToolCall{Name: sandbox.ToolName, Arguments: "print 1/0"})

	cb.EXPECT().OnSelect(ctx, gomock.Any()).
		Do(func(_ context.Context, sel *selector.Selection) {
			assert.Equal(t, "weather", sel.Query)
		}).Times(1)
	_, err := ts.Expose(ctx, "weather")
	require.NoError(t, err)
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("no sandbox", func(t *testing.T) {
		ts := toolset.New(catalog.MustBuild(testDescriptors()...))
		_, err := ts.Run(ctx, "print 1")
		assert.True(t, errors.Is(err, toolset.ErrNoSandbox))
		assert.NotContains(t, ts.Names(), sandbox.ToolName)
	})

	t.Run("with sandbox", func(t *testing.T) {
		cat := catalog.MustBuild(testDescriptors()...)
		ts := toolset.New(cat, toolset.WithSandbox(sandbox.New(sandbox.WithCatalog(cat))))
		assert.Equal(t, sandbox.ToolName, ts.Names()[len(ts.Names())-1])

		res, err := ts.Run(ctx, `for c in ["Tokyo", "Rome"] { print weather(c) }`)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "sunny in Tokyo\nsunny in Rome\n", res.Output)

		out := ts.Dispatch(ctx, toolset.ToolCall{Name: sandbox.ToolName, Arguments: `print search("go")`})
		assert.Equal(t, "results for go\n", out.Content)
	})

	t.Run("fault", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cb := mocktoolset.NewMockCallback(ctrl)
		cb.EXPECT().OnScriptFault(ctx, gomock.Any()).Times(1)

		ts := testToolset(t, toolset.WithCallback(cb))
		res, err := ts.Run(ctx, "print nope")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, sandbox.NameError, res.Fault.Kind)
	})
}

func TestDescriptionWithExamples(t *testing.T) {
	assert.Equal(t, "desc", toolset.DescriptionWithExamples("desc", nil))
	assert.Equal(t, "desc\n\nExamples:\n- a()", toolset.DescriptionWithExamples("desc", []string{"a()"}))
}
