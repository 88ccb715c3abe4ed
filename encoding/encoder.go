// Package encoding renders catalog listings and function definitions
// as JSON, YAML, TOML or text.
package encoding

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	dummyenc "github.com/effective-security/toolscope/encoding/dummy"
	jsonenc "github.com/effective-security/toolscope/encoding/json"
	tomlenc "github.com/effective-security/toolscope/encoding/toml"
	yamlenc "github.com/effective-security/toolscope/encoding/yaml"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/toolset"
)

type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal([]byte, any) error
}

type Format = string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatText Format = "text"
)

// Formats lists the supported formats
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML, FormatText}

// ErrUnsupportedFormat is returned for an unknown format
var ErrUnsupportedFormat = errors.New("unsupported format")

var (
	_ Encoder = (*dummyenc.Encoder)(nil)
	_ Encoder = (*jsonenc.Encoder)(nil)
	_ Encoder = (*tomlenc.Encoder)(nil)
	_ Encoder = (*yamlenc.Encoder)(nil)
)

// ForFormat returns the encoder of the format, JSON when empty.
func ForFormat(format Format) (Encoder, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return jsonenc.NewEncoder(), nil
	case FormatYAML, "yml":
		return yamlenc.NewEncoder(), nil
	case FormatTOML:
		return tomlenc.NewEncoder(), nil
	case FormatText, "txt":
		return dummyenc.NewEncoder(), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "format %q", format)
}

// Listing is the serializable form of a catalog.
type Listing struct {
	Tools []tools.Info `json:"tools" yaml:"tools" toml:"tools"`
}

// String returns one line per tool with its examples.
func (l *Listing) String() string {
	var b strings.Builder
	for _, info := range l.Tools {
		mode := "deferred"
		if info.Eager {
			mode = "eager"
		}
		b.WriteString(info.Name)
		b.WriteString(" (")
		b.WriteString(mode)
		b.WriteString("): ")
		b.WriteString(info.Description)
		b.WriteString("\n")
		for _, ex := range info.Examples {
			b.WriteString("    Example: ")
			b.WriteString(ex)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// EncodeListing encodes the descriptors metadata in the format.
func EncodeListing(format Format, infos []tools.Info) ([]byte, error) {
	enc, err := ForFormat(format)
	if err != nil {
		return nil, err
	}
	bs, err := enc.Marshal(&Listing{Tools: infos})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to encode listing")
	}
	return bs, nil
}

// DecodeListing decodes a listing produced by EncodeListing.
func DecodeListing(format Format, data []byte) (*Listing, error) {
	if format == FormatText {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "decode format %q", format)
	}
	enc, err := ForFormat(format)
	if err != nil {
		return nil, err
	}
	l := new(Listing)
	if err = enc.Unmarshal(data, l); err != nil {
		return nil, errors.WithMessage(err, "failed to decode listing")
	}
	return l, nil
}

// Definitions is the serializable form of function definitions.
type Definitions struct {
	Functions []*toolset.FunctionDefinition `json:"functions" yaml:"functions" toml:"functions"`
}

// String returns the definitions in a human readable form.
func (d *Definitions) String() string {
	var b strings.Builder
	for i, def := range d.Functions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## ")
		b.WriteString(def.Name)
		b.WriteString("\n")
		b.WriteString(def.Description)
		b.WriteString("\n")
		if def.Parameters != nil {
			b.WriteString("Parameters: ")
			b.WriteString(oneLineJSON(def.Parameters))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// EncodeDefinitions encodes the function definitions in the format.
// Parameters are JSON schemas, so YAML and TOML are produced from their JSON form.
func EncodeDefinitions(format Format, defs []*toolset.FunctionDefinition) ([]byte, error) {
	doc := &Definitions{Functions: defs}

	var (
		bs  []byte
		err error
	)
	switch strings.ToLower(format) {
	case FormatYAML, "yml":
		bs, err = yamlenc.NewJSONTagsEncoder().Marshal(doc)
	case FormatTOML:
		var table map[string]any
		if table, err = toTable(doc); err == nil {
			bs, err = tomlenc.NewEncoder().Marshal(table)
		}
	default:
		var enc Encoder
		if enc, err = ForFormat(format); err != nil {
			return nil, err
		}
		bs, err = enc.Marshal(doc)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to encode definitions")
	}
	return bs, nil
}

// toTable returns the JSON form of v as a map
func toTable(v any) (map[string]any, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var table map[string]any
	if err = json.Unmarshal(js, &table); err != nil {
		return nil, errors.WithStack(err)
	}
	return table, nil
}

func oneLineJSON(v any) string {
	js, err := json.Marshal(v)
	if err != nil {
		return "<invalid>"
	}
	return string(js)
}
