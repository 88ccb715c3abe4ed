// Package wikipedia provides the wikipedia capability: encyclopedic summaries
// of the pages matching a search.
package wikipedia

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/tools/webapi"
	"github.com/tidwall/gjson"
)

// ToolName of the capability
const ToolName = "wikipedia"

// DefaultBaseURL of the MediaWiki API
const DefaultBaseURL = "https://en.wikipedia.org"

const (
	// DefaultMaxPages is the number of pages summarized
	DefaultMaxPages = 3
	// DefaultMaxChars limits the returned text
	DefaultMaxChars = 4000
)

// NoResults is returned when the search matches no page
const NoResults = "No good Wikipedia Search Result was found"

// Examples of the tool usage
var Examples = []string{
	"wikipedia('Transformer neural network architecture')",
	"wikipedia('Retrieval augmented generation')",
}

// Request is the tool input
type Request struct {
	Query string `json:"query" yaml:"query" jsonschema:"title=Query,description=The topic to look up."`
}

// Page is a summarized page
type Page struct {
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
}

// Result is the tool output
type Result struct {
	Pages    []Page `json:"pages" yaml:"pages"`
	maxChars int
}

func (r *Result) String() string {
	if len(r.Pages) == 0 {
		return NoResults
	}
	parts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		parts[i] = "Page: " + p.Title + "\nSummary: " + p.Summary
	}
	text := strings.Join(parts, "\n\n")
	if r.maxChars > 0 {
		text = llmutils.Truncate(text, r.maxChars)
	}
	return text
}

// Tool looks up Wikipedia
type Tool struct {
	client   *webapi.Client
	baseURL  string
	maxPages int
	maxChars int
}

var _ tools.Tool[Request, Result] = (*Tool)(nil)

// New returns the tool
func New(hc *http.Client) *Tool {
	return &Tool{
		client:   webapi.NewClient(hc),
		baseURL:  DefaultBaseURL,
		maxPages: DefaultMaxPages,
		maxChars: DefaultMaxChars,
	}
}

// Descriptor returns the eager descriptor of the tool.
func Descriptor(t *Tool, opts ...tools.Option) *tools.Descriptor {
	opts = append([]tools.Option{tools.Eager(), tools.WithExamples(Examples...)}, opts...)
	return tools.FromTool(t, opts...)
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = strings.TrimSuffix(baseURL, "/")
	return t
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Wikipedia lookup for concise encyclopedic summaries."
}

func (t *Tool) Parameters() any {
	return schema.MustFor[Request]()
}

func (t *Tool) Run(ctx context.Context, req *Request) (*Result, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	query := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"generator":     {"search"},
		"gsrsearch":     {req.Query},
		"gsrlimit":      {strconv.Itoa(t.maxPages)},
		"prop":          {"extracts"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
	}
	body, err := t.client.Get(ctx, t.baseURL+"/w/api.php", query, nil)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		index int64
		page  Page
	}
	var list []indexed
	for _, p := range gjson.GetBytes(body, "query.pages").Array() {
		list = append(list, indexed{
			index: p.Get("index").Int(),
			page: Page{
				Title:   p.Get("title").String(),
				Summary: strings.TrimSpace(p.Get("extract").String()),
			},
		})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].index < list[j].index })

	res := &Result{maxChars: t.maxChars}
	for _, item := range list {
		res.Pages = append(res.Pages, item.page)
	}
	return res, nil
}

// Call accepts {"query": "..."} or the query as plain text.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallText(ctx, t, input, func(r *Request, s string) { r.Query = s })
}
