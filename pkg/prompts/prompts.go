// Package prompts renders the text templates shown to a model or a user.
// Jinja2 templates are rendered with gonja, Go templates with the sprig functions.
package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/nikolalohinski/gonja"
)

// Format of a template
type Format string

// Supported formats
const (
	FormatJinja2     Format = "jinja2"
	FormatGoTemplate Format = "go-template"
)

// ErrUnsupportedFormat is returned for an unknown template format
var ErrUnsupportedFormat = errors.New("unsupported template format")

// Render renders the template in the given format
func Render(format Format, tmpl string, values map[string]any) (string, error) {
	switch format {
	case FormatJinja2:
		return RenderJinja2(tmpl, values)
	case FormatGoTemplate, "":
		return RenderGoTemplate(tmpl, values)
	}
	return "", errors.Wrapf(ErrUnsupportedFormat, "format %q", format)
}

// RenderJinja2 renders a Jinja2 template
func RenderJinja2(tmpl string, values map[string]any) (string, error) {
	tpl, err := gonja.FromString(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	out, err := tpl.Execute(values)
	if err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return out, nil
}

// RenderGoTemplate renders a text/template with the sprig functions.
// Missing keys are errors.
func RenderGoTemplate(tmpl string, values map[string]any) (string, error) {
	parsed, err := template.New("template").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	var sb strings.Builder
	if err = parsed.Execute(&sb, values); err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return sb.String(), nil
}
