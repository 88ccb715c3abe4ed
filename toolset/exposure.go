package toolset

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/prompts"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
)

// listingTemplate prints one line per selected tool with its first example.
const listingTemplate = `{% for item in items %}  [{{ item.tag }}] {{ item.name|safe }}
{% if item.example %}           Example: {{ item.example|safe }}
{% endif %}{% endfor %}`

// FunctionDefinition describes a tool to a model provider.
type FunctionDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	// Parameters is the JSON schema of the arguments
	Parameters any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Exposure is the set of tools exposed to the model for one request.
type Exposure struct {
	Selection *selector.Selection

	toolset *Toolset
}

// Names returns the exposed names in order.
func (e *Exposure) Names() []string {
	return e.Selection.Names()
}

// Listing renders the exposed tools as shown to the user or the model:
//
//	[ALWAYS] web_search
//	         Example: web_search('latest news about vector databases')
func (e *Exposure) Listing() (string, error) {
	items := make([]map[string]any, len(e.Selection.Items))
	for i, item := range e.Selection.Items {
		items[i] = map[string]any{
			"tag":     string(item.Tag),
			"name":    item.Descriptor.Name(),
			"example": item.Descriptor.FirstExample(),
			"score":   item.Score,
		}
	}
	out, err := prompts.RenderJinja2(listingTemplate, map[string]any{
		"items": items,
		"query": e.Selection.Query,
	})
	if err != nil {
		return "", errors.WithMessage(err, "failed to render tools listing")
	}
	return out, nil
}

// Definitions returns the function definitions of the exposed tools.
func (e *Exposure) Definitions() []*FunctionDefinition {
	return Definitions(e.Selection.Descriptors())
}

// Definitions returns the function definitions of the descriptors.
// Examples are appended to the description.
func Definitions(list []*tools.Descriptor) []*FunctionDefinition {
	defs := make([]*FunctionDefinition, len(list))
	for i, d := range list {
		defs[i] = &FunctionDefinition{
			Name:        d.Name(),
			Description: DescriptionWithExamples(d.Description(), d.Examples()),
			Parameters:  d.Invocation().Parameters(),
		}
	}
	return defs
}

// Dispatch invokes the call if it names an exposed tool.
// Other names are reported as not found, even when in the catalog.
func (e *Exposure) Dispatch(ctx context.Context, call ToolCall) *ToolResult {
	return e.toolset.dispatch(ctx, call, e.Names())
}

// DispatchAll invokes the calls concurrently, restricted to the exposed tools.
func (e *Exposure) DispatchAll(ctx context.Context, calls []ToolCall) []*ToolResult {
	return e.toolset.dispatchAll(ctx, calls, e.Names())
}

// DescriptionWithExamples appends the usage examples to the description.
func DescriptionWithExamples(description string, examples []string) string {
	if len(examples) == 0 {
		return description
	}
	var b strings.Builder
	b.WriteString(description)
	b.WriteString("\n\nExamples:")
	for _, ex := range examples {
		b.WriteString("\n- ")
		b.WriteString(ex)
	}
	return b.String()
}
