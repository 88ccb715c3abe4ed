// Package httpget provides the http_get capability for JSON and text APIs.
package httpget

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/tools/webapi"
)

// ToolName of the capability
const ToolName = "http_get"

// DefaultMaxChars limits the returned text
const DefaultMaxChars = 5000

// Examples of the tool usage
var Examples = []string{
	"http_get('https://api.github.com/rate_limit')",
	"http_get('https://jsonplaceholder.typicode.com/todos/1')",
}

// Request is the tool input
type Request struct {
	URL string `json:"url" yaml:"url" jsonschema:"title=URL,description=Full URL to fetch including https://"`
}

// Result is the response text
type Result struct {
	Text string `json:"text" yaml:"text"`
}

func (r *Result) String() string {
	return r.Text
}

// Tool fetches a URL
type Tool struct {
	client   *webapi.Client
	maxChars int
}

var _ tools.Tool[Request, Result] = (*Tool)(nil)

// New returns the tool
func New(hc *http.Client) *Tool {
	return &Tool{
		client:   webapi.NewClient(hc),
		maxChars: DefaultMaxChars,
	}
}

// Descriptor returns the deferred descriptor of the tool.
func Descriptor(t *Tool, opts ...tools.Option) *tools.Descriptor {
	opts = append([]tools.Option{tools.WithExamples(Examples...)}, opts...)
	return tools.FromTool(t, opts...)
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Generic HTTP GET for JSON/text APIs."
}

func (t *Tool) Parameters() any {
	return schema.MustFor[Request]()
}

func (t *Tool) Run(ctx context.Context, req *Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("invalid request: URL must be absolute http or https: %q", req.URL)
	}

	body, err := t.client.Get(ctx, req.URL, nil, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Text: llmutils.Truncate(string(body), t.maxChars)}, nil
}

// Call accepts {"url": "..."} or the URL as plain text.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallText(ctx, t, input, func(r *Request, s string) { r.URL = s })
}
