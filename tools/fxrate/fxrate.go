// Package fxrate provides the fx_rate currency conversion capability.
package fxrate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/tools/webapi"
)

// ToolName of the capability
const ToolName = "fx_rate"

// DefaultBaseURL of the exchange rate API
const DefaultBaseURL = "https://api.exchangerate.host"

// InvalidPair is returned when the pair can not be parsed
const InvalidPair = "Please provide a pair like 'USD to EUR'."

// Examples of the tool usage
var Examples = []string{
	"fx_rate('USD to EUR')",
	"fx_rate('GBP/JPY')",
}

// Request is the tool input
type Request struct {
	Pair string `json:"pair" yaml:"pair" jsonschema:"title=Pair,description=Currency pair like USD to EUR or USD/JPY."`
}

// Result is the rate of one base unit
type Result struct {
	Base  string   `json:"base" yaml:"base"`
	Quote string   `json:"quote" yaml:"quote"`
	Rate  *float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
}

func (r *Result) String() string {
	switch {
	case r.Base == "":
		return InvalidPair
	case r.Rate == nil:
		return fmt.Sprintf("Could not fetch rate for %s->%s.", r.Base, r.Quote)
	}
	return fmt.Sprintf("1 %s = %.4f %s", r.Base, *r.Rate, r.Quote)
}

// ParsePair returns the base and quote currencies of
// "USD to EUR", "USD/EUR" or "usd eur".
func ParsePair(pair string) (base, quote string, ok bool) {
	s := strings.ReplaceAll(pair, " to ", " ")
	s = strings.ReplaceAll(s, "/", " ")
	parts := strings.Fields(s)
	if len(parts) < 2 {
		return "", "", false
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), true
}

// Tool converts currencies
type Tool struct {
	client    *webapi.Client
	baseURL   string
	accessKey string
}

var _ tools.Tool[Request, Result] = (*Tool)(nil)

// New returns the tool, the access key is optional.
func New(hc *http.Client, accessKey string) *Tool {
	return &Tool{
		client:    webapi.NewClient(hc),
		baseURL:   DefaultBaseURL,
		accessKey: accessKey,
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
	return "Fetch FX conversion rate (e.g., USD to EUR)."
}

func (t *Tool) Parameters() any {
	return schema.MustFor[Request]()
}

func (t *Tool) Run(ctx context.Context, req *Request) (*Result, error) {
	base, quote, ok := ParsePair(req.Pair)
	if !ok {
		return &Result{}, nil
	}

	query := url.Values{
		"from":   {base},
		"to":     {quote},
		"amount": {"1"},
	}
	if t.accessKey != "" {
		query.Set("access_key", t.accessKey)
	}

	var resp struct {
		Result *float64 `json:"result"`
	}
	if err := t.client.GetJSON(ctx, t.baseURL+"/convert", query, nil, &resp); err != nil {
		return nil, errors.WithMessagef(err, "failed to convert %s to %s", base, quote)
	}
	return &Result{Base: base, Quote: quote, Rate: resp.Result}, nil
}

// Call accepts {"pair": "..."} or the pair as plain text.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallText(ctx, t, input, func(r *Request, s string) { r.Pair = s })
}
