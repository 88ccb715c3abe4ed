package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTools(t *testing.T) {
	out, _, err := execute(t, "", "tools")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "web_search (eager): "), lines[0])
	assert.Contains(t, out, "run_orchestration (deferred): ")
	assert.Contains(t, out, "    Example: fx_rate('USD to EUR')\n")

	out, _, err = execute(t, "", "tools", "--format", "json")
	require.NoError(t, err)
	names := gjson.Get(out, "tools.#.name").Array()
	require.Len(t, names, 7)
	assert.Equal(t, "web_search", names[0].String())
	assert.Equal(t, "fx_rate", names[6].String())
	assert.True(t, gjson.Get(out, "tools.0.eager").Bool())

	out, _, err = execute(t, "", "tools", "--definitions", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: open_meteo_weather")
	assert.Contains(t, out, "parameters:")

	_, _, err = execute(t, "", "tools", "--format", "xml")
	assert.True(t, errors.Is(err, encoding.ErrUnsupportedFormat))
}

func TestSelect(t *testing.T) {
	out, _, err := execute(t, "", "select", "--query", "weather forecast for tokyo", "--top-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "  [ALWAYS] web_search\n")
	assert.Contains(t, out, "  [ALWAYS] wikipedia\n")
	assert.Equal(t, 1, strings.Count(out, "[MATCHED]"))

	out, _, err = execute(t, "", "select", "-k", "0", "--template", `{{ range .Items }}{{ .Name | upper }},{{ end }}`, "anything")
	require.NoError(t, err)
	assert.Equal(t, "WEB_SEARCH,WIKIPEDIA,", out)

	out, _, err = execute(t, "", "select", "-q", "github repositories", "--format", "json")
	require.NoError(t, err)
	assert.Len(t, gjson.Get(out, "tools").Array(), 5)

	out, _, err = execute(t, "", "select", "-q", "exchange rate", "-k", "2", "--definitions", "--format", "json")
	require.NoError(t, err)
	assert.Len(t, gjson.Get(out, "functions").Array(), 4)

	_, _, err = execute(t, "", "select", "-q", "x", "-k", "-1")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	out, _, err := execute(t, "print 1 + 2", "run", "-")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, _, err = execute(t, "print 'before'\nprint 1 / 0", "run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScriptFault))
	assert.Contains(t, out, "ZeroDivisionError")

	file := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(file, []byte("let names = tools()\nprint len(names)"), 0o600))
	out, _, err = execute(t, "", "run", file)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	_, _, err = execute(t, "", "run", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	out, stderr, err := execute(t, "print 'x'", "--verbose", "run")
	require.NoError(t, err)
	assert.Equal(t, "x\n", out)
	assert.Contains(t, stderr, "*** Run Started ***")
	assert.Contains(t, stderr, "*** Run Ended.")
}

func TestCall(t *testing.T) {
	out, _, err := execute(t, "", "call", "run_orchestration", `{"script": "print 'hi'"}`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)

	out, _, err = execute(t, "print 2", "call", "run_orchestration")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, _, err = execute(t, "", "call", "Web_Search", "news")
	require.Error(t, err)
	assert.Contains(t, out, "Tool `Web_Search` not found")

	out, stderr, err := execute(t, "", "--verbose", "call", "missing", "x")
	require.Error(t, err)
	assert.Contains(t, out, "not found")
	assert.Contains(t, stderr, "Tool Not Found: missing")
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "toolscope.yaml")
	require.NoError(t, os.WriteFile(file, []byte("sandbox:\n  disabled: true\ntools:\n  http_get:\n    disabled: true\n"), 0o600))

	out, _, err := execute(t, "", "--config", file, "tools", "--format", "json")
	require.NoError(t, err)
	assert.Len(t, gjson.Get(out, "tools").Array(), 5)
	assert.NotContains(t, out, "run_orchestration")

	_, _, err = execute(t, "print 1", "--config", file, "run")
	assert.Error(t, err)

	_, _, err = execute(t, "", "--config", filepath.Join(dir, "missing.yaml"), "tools")
	assert.Error(t, err)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &stdout, &stderr)
	cmd.SetArgs([]string{"--log-level", "verbose", "tools"})
	assert.Error(t, cmd.Execute())
}

func TestServeStdio(t *testing.T) {
	in := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"query":"weather in tokyo"}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"run_orchestration","arguments":"print 6 * 7"}}` + "\n"

	out, _, err := execute(t, in, "serve", "--stdio")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Len(t, gjson.Get(lines[0], "result.tools").Array(), 5)
	assert.Equal(t, "42\n", gjson.Get(lines[1], "result.content.0.text").String())
}
