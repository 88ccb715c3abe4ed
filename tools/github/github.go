// Package github provides the github_repo_search capability.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/tools/webapi"
)

// ToolName of the capability
const ToolName = "github_repo_search"

// DefaultBaseURL of the GitHub API
const DefaultBaseURL = "https://api.github.com"

// DefaultPerPage is the number of repositories returned
const DefaultPerPage = 5

// Examples of the tool usage
var Examples = []string{
	"github_repo_search('retrieval augmented generation')",
	"github_repo_search('LLM agent framework')",
}

// Request is the tool input
type Request struct {
	Topic string `json:"topic" yaml:"topic" jsonschema:"title=Topic,description=Search keyword like vector database."`
}

// Repo is a found repository
type Repo struct {
	Name        string  `json:"name"`
	Stars       int     `json:"stars"`
	URL         string  `json:"url"`
	Description *string `json:"description"`
}

// Result is the list of repositories, most starred first
type Result struct {
	Topic string `json:"-"`
	Repos []Repo `json:"repos"`
}

func (r *Result) String() string {
	if len(r.Repos) == 0 {
		return fmt.Sprintf("No repositories found for '%s'.", r.Topic)
	}
	js, _ := json.MarshalIndent(r.Repos, "", "  ")
	return string(js)
}

type searchResponse struct {
	Items []struct {
		FullName        string  `json:"full_name"`
		StargazersCount int     `json:"stargazers_count"`
		HTMLURL         string  `json:"html_url"`
		Description     *string `json:"description"`
	} `json:"items"`
}

// Tool searches GitHub repositories
type Tool struct {
	client  *webapi.Client
	baseURL string
	token   string
}

var _ tools.Tool[Request, Result] = (*Tool)(nil)

// New returns the tool, the token is optional.
func New(hc *http.Client, token string) *Tool {
	return &Tool{
		client:  webapi.NewClient(hc),
		baseURL: DefaultBaseURL,
		token:   token,
	}
}

// Descriptor returns the deferred descriptor of the tool.
func Descriptor(t *Tool, opts ...tools.Option) *tools.Descriptor {
	opts = append([]tools.Option{tools.WithExamples(Examples...)}, opts...)
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
	return "Search GitHub repositories by topic keyword, sorted by stars."
}

func (t *Tool) Parameters() any {
	return schema.MustFor[Request]()
}

func (t *Tool) Run(ctx context.Context, req *Request) (*Result, error) {
	if req.Topic == "" {
		return nil, errors.New("invalid request: empty topic")
	}

	header := http.Header{"Accept": {"application/vnd.github+json"}}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	var resp searchResponse
	err := t.client.GetJSON(ctx, t.baseURL+"/search/repositories", url.Values{
		"q":        {req.Topic},
		"sort":     {"stars"},
		"order":    {"desc"},
		"per_page": {strconv.Itoa(DefaultPerPage)},
	}, header, &resp)
	if err != nil {
		return nil, err
	}

	res := &Result{Topic: req.Topic}
	for _, item := range resp.Items {
		res.Repos = append(res.Repos, Repo{
			Name:        item.FullName,
			Stars:       item.StargazersCount,
			URL:         item.HTMLURL,
			Description: item.Description,
		})
	}
	return res, nil
}

// Call accepts {"topic": "..."} or the topic as plain text.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallText(ctx, t, input, func(r *Request, s string) { r.Topic = s })
}
