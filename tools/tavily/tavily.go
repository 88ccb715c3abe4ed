// Package tavily provides the web_search capability backed by the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/tools/webapi"
)

// ToolName of the capability
const ToolName = "web_search"

// EnvAPIKey is the environment variable with the API key
const EnvAPIKey = "TAVILY_API_KEY"

// Examples of the tool usage
var Examples = []string{
	"web_search('latest news about vector databases')",
	"web_search('LangChain vs LlamaIndex comparison 2024')",
}

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" yaml:"query" jsonschema:"title=Query,description=The query to search web."`
}

// SearchResult represents the structure for a search response
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results" jsonschema:"title=results,description=The results from a web search."`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty" jsonschema:"title=answer,description=The aggregated answer from a web search."`
}

// Tool is a tool that provides a web search functionality
type Tool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ tools.Tool[SearchRequest, SearchResult] = (*Tool)(nil)

// New returns the tool. When apiKey is empty, TAVILY_API_KEY is used at call time.
func New(apiKey string) *Tool {
	return &Tool{
		apiKey:     apiKey,
		httpClient: webapi.NewClient(nil).HTTPClient(),
	}
}

// Descriptor returns the eager descriptor of the tool.
func Descriptor(t *Tool, opts ...tools.Option) *tools.Descriptor {
	opts = append([]tools.Option{tools.Eager(), tools.WithExamples(Examples...)}, opts...)
	return tools.FromTool(t, opts...)
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Web search for fresh results using Tavily (returns snippets)."
}

func (t *Tool) Parameters() any {
	return schema.MustFor[SearchRequest]()
}

func (t *Tool) Run(_ context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	apikey := t.apiKey
	if apikey == "" {
		apikey = os.Getenv(EnvAPIKey)
	}
	if apikey == "" {
		return nil, errors.Newf("%s is not set", EnvAPIKey)
	}

	client := tavilygo.NewClient(apikey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchReq := tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	}

	searchResp, err := tavilygo.Search(client, searchReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}

	res := &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}
	return res, nil
}

// Call accepts {"query": "..."} or the query as plain text.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallText(ctx, t, input, func(r *SearchRequest, s string) { r.Query = s })
}

func (r *SearchResult) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}

	return buf.String()
}
