package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/mcp"
	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/toolset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testServer(t *testing.T, opts ...mcp.Option) *mcp.Server {
	t.Helper()

	search := tools.Func("search", "Searches the web for news.", nil, func(_ context.Context, input string) (string, error) {
		return "results for " + input, nil
	})
	weather := tools.Func("weather", "Returns the weather forecast for a city.", nil, func(_ context.Context, input string) (string, error) {
		return "sunny in " + input, nil
	})
	fails := tools.Func("fails", "Always fails.", nil, func(_ context.Context, _ string) (string, error) {
		return "", errors.New("upstream unavailable")
	})

	cat := catalog.New()
	require.NoError(t, cat.Register(tools.FromTool(search, tools.Eager(), tools.WithExamples("search('news')"))))
	require.NoError(t, cat.Register(tools.FromTool(weather, tools.WithExamples("weather('Tokyo')"))))
	require.NoError(t, cat.Register(tools.FromTool(fails)))
	cat.Freeze()

	ts := toolset.New(cat,
		toolset.WithTopK(1),
		toolset.WithSandbox(sandbox.New(sandbox.WithCatalog(cat))),
	)
	return mcp.NewServer(ts, opts...)
}

func handle(t *testing.T, s *mcp.Server, msg string) string {
	t.Helper()
	res := s.HandleMessage(context.Background(), []byte(msg))
	require.NotNil(t, res)
	js, err := json.Marshal(res)
	require.NoError(t, err)
	return string(js)
}

func TestInitialize(t *testing.T) {
	s := testServer(t, mcp.WithImplementation("test", "0.1"), mcp.WithInstructions("use run_orchestration"))

	res := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)
	assert.Equal(t, int64(1), gjson.Get(res, "id").Int())
	assert.Equal(t, mcp.ProtocolVersion, gjson.Get(res, "result.protocolVersion").String())
	assert.Equal(t, "test", gjson.Get(res, "result.serverInfo.name").String())
	assert.Equal(t, "0.1", gjson.Get(res, "result.serverInfo.version").String())
	assert.Equal(t, "use run_orchestration", gjson.Get(res, "result.instructions").String())
	assert.True(t, gjson.Get(res, "result.capabilities.tools").Exists())

	res = handle(t, s, `{"jsonrpc":"2.0","id":"abc","method":"ping"}`)
	assert.Equal(t, `{"jsonrpc":"2.0","id":"abc","result":{}}`, res)

	assert.Nil(t, s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
}

func TestListTools(t *testing.T) {
	s := testServer(t)

	res := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	names := gjson.Get(res, "result.tools.#.name").Array()
	require.Len(t, names, 3)
	assert.Equal(t, "search", names[0].String())
	assert.Equal(t, "weather", names[1].String())
	assert.Equal(t, "fails", names[2].String())
	assert.Equal(t, "object", gjson.Get(res, "result.tools.0.inputSchema.type").String())
	assert.Equal(t, "Searches the web for news.\n\nExamples:\n- search('news')", gjson.Get(res, "result.tools.0.description").String())

	res = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{"query":"weather forecast for tokyo"}}`)
	names = gjson.Get(res, "result.tools.#.name").Array()
	require.Len(t, names, 2)
	assert.Equal(t, "search", names[0].String())
	assert.Equal(t, "weather", names[1].String())

	res = handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/list","params":[1,2]}`)
	assert.Equal(t, int64(mcp.CodeInvalidParams), gjson.Get(res, "error.code").Int())
}

func TestCallTool(t *testing.T) {
	s := testServer(t)

	tcases := []struct {
		name    string
		params  string
		exp     string
		isError bool
	}{
		{"text", `{"name":"weather","arguments":"Tokyo"}`, "sunny in Tokyo", false},
		{"object", `{"name":"run_orchestration","arguments":{"script":"print weather('Paris')"}}`, "sunny in Paris\n", false},
		{"failed", `{"name":"fails","arguments":{}}`, "Tool call failed: upstream unavailable", true},
		{"not found", `{"name":"missing"}`, "Tool `missing` not found", true},
		{"fault", `{"name":"run_orchestration","arguments":"print 1 / 0"}`, "ZeroDivisionError", true},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			res := handle(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":`+tc.params+`}`)
			require.False(t, gjson.Get(res, "error").Exists(), res)
			assert.Equal(t, "text", gjson.Get(res, "result.content.0.type").String())
			assert.Contains(t, gjson.Get(res, "result.content.0.text").String(), tc.exp)
			assert.Equal(t, tc.isError, gjson.Get(res, "result.isError").Bool())
		})
	}

	res := handle(t, s, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{}}`)
	assert.Equal(t, int64(mcp.CodeInvalidParams), gjson.Get(res, "error.code").Int())
	assert.Equal(t, "missing tool name", gjson.Get(res, "error.message").String())
}

func TestHandleErrors(t *testing.T) {
	s := testServer(t)

	tcases := []struct {
		name string
		msg  string
		code int
		id   string
	}{
		{"parse", `{"jsonrpc":`, mcp.CodeParseError, "null"},
		{"version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, mcp.CodeInvalidRequest, "1"},
		{"no method", `{"jsonrpc":"2.0","id":2}`, mcp.CodeInvalidRequest, "2"},
		{"unknown method", `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`, mcp.CodeMethodNotFound, "3"},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			res := handle(t, s, tc.msg)
			assert.Equal(t, int64(tc.code), gjson.Get(res, "error.code").Int(), res)
			assert.Equal(t, tc.id, gjson.Get(res, "id").Raw)
		})
	}

	s.SetRequestHandler("custom/fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	res := handle(t, s, `{"jsonrpc":"2.0","id":4,"method":"custom/fail"}`)
	assert.Equal(t, int64(mcp.CodeInternalError), gjson.Get(res, "error.code").Int())
	assert.Equal(t, "boom", gjson.Get(res, "error.message").String())

	err := mcp.NewError(mcp.CodeInvalidParams, "bad %s", "value")
	assert.EqualError(t, err, "RPC error -32602: bad value")
}

func TestHTTPHandler(t *testing.T) {
	var transportErrors []error
	h := mcp.NewHTTPHandler(testServer(t)).WithErrorHandler(func(err error) {
		transportErrors = append(transportErrors, err)
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search","arguments":"go"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "results for go", gjson.Get(body.String(), "result.content.0.text").String())

	resp2, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp2.StatusCode)

	resp3, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)

	assert.Empty(t, transportErrors)
}

func TestListenAndServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, mcp.ListenAndServe(ctx, "127.0.0.1:0", mcp.DefaultEndpoint, testServer(t)))
}

func TestServeStdio(t *testing.T) {
	s := testServer(t)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"weather","arguments":"Oslo"}}`,
		`not json`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, s.ServeStdio(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, mcp.ProtocolVersion, gjson.Get(lines[0], "result.protocolVersion").String())
	assert.Equal(t, "sunny in Oslo", gjson.Get(lines[1], "result.content.0.text").String())
	assert.Equal(t, int64(mcp.CodeParseError), gjson.Get(lines[2], "error.code").Int())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.ServeStdio(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), &out)
	assert.True(t, errors.Is(err, context.Canceled))
}
