package sandbox

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/effective-security/toolscope/tools"
)

// ToolName is the capability name of the sandbox
const ToolName = "run_orchestration"

// NoOutputMessage is returned by the tool when a script prints nothing.
const NoOutputMessage = "script completed successfully (no output)"

// ErrNestedRun is returned when a script calls the sandbox tool.
var ErrNestedRun = errors.New("nested orchestration runs are not supported")

const toolDescription = "Run an orchestration script that calls several tools in one step and returns only what the script prints. " +
	"Use it to loop over items, filter or aggregate tool results, and keep intermediate data out of context. " +
	"Tools are called as functions, for example weather(\"Tokyo\"), or with call(\"name\", arg). " +
	"Statements: let x = expr, print expr, for x in list { }, if cond { } else { }. " +
	"Builtins: len, sum, min, max, avg, count, map, filter, reduce, sort, keys, values, range, append, join, split, get, parse_json, jget, jset."

// Examples of the tool usage shown to the model
var Examples = []string{
	`run_orchestration('let cities = ["Tokyo", "London"]\nfor c in cities { print c, open_meteo_weather(c) }')`,
	`run_orchestration('let repos = parse_json(github_repo_search("vector database"))\nprint sum(map(repos, r => r.stars))')`,
}

// Request is the tool input
type Request struct {
	Script string `json:"script" yaml:"script" jsonschema:"title=Script,description=The orchestration script to run. Use print to return results."`
}

// Tool exposes a Sandbox as a capability.
type Tool struct {
	sandbox *Sandbox
}

var _ tools.Tool[Request, Result] = (*Tool)(nil)

// NewTool returns the capability running scripts in the sandbox.
func NewTool(sb *Sandbox) *Tool {
	return &Tool{sandbox: sb}
}

// Descriptor returns a deferred descriptor of the sandbox tool with usage examples.
func Descriptor(sb *Sandbox, opts ...tools.Option) *tools.Descriptor {
	opts = append([]tools.Option{tools.WithExamples(Examples...)}, opts...)
	return tools.FromTool(NewTool(sb), opts...)
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return toolDescription
}

func (t *Tool) Parameters() any {
	return schema.MustFor[Request]()
}

type nestedKey struct{}

// Run executes the script. A script calling the sandbox tool gets ErrNestedRun.
func (t *Tool) Run(ctx context.Context, req *Request) (*Result, error) {
	if ctx.Value(nestedKey{}) != nil {
		return nil, errors.WithStack(ErrNestedRun)
	}
	return t.sandbox.Execute(context.WithValue(ctx, nestedKey{}, true), req.Script), nil
}

// Call runs the script given as {"script": "..."} or as plain text.
// Faults are returned as the diagnostic text, not as errors.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	res, err := t.Run(ctx, &Request{Script: Script(input)})
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// Script returns the script of the tool input,
// given as {"script": "..."}, in a code block, or as plain text.
func Script(input string) string {
	if llmutils.IsJSON(input) {
		var req Request
		if err := llmutils.UnmarshalInput(input, &req); err == nil && req.Script != "" {
			return req.Script
		}
	} else if strings.Contains(input, "```") {
		return llmutils.TrimBackticks(input)
	}
	return input
}

// String returns the text reported to the model: the output,
// NoOutputMessage when a completed script printed nothing, or the diagnostic.
func (r *Result) String() string {
	if r.Success && strings.TrimSpace(r.Output) == "" {
		return NoOutputMessage
	}
	return r.Output
}
