package tools

import (
	"regexp"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidDescriptor is returned when a descriptor fails validation.
	ErrInvalidDescriptor = errors.New("invalid capability descriptor")

	toolNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	validate      = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("toolname", func(fl validator.FieldLevel) bool {
		return toolNameRegex.MatchString(fl.Field().String())
	})
	return v
}

// Info is the serializable part of a descriptor.
type Info struct {
	Name        string   `json:"name" yaml:"name" toml:"name" validate:"required,toolname"`
	Description string   `json:"description" yaml:"description" toml:"description" validate:"required"`
	Eager       bool     `json:"eager" yaml:"eager" toml:"eager"`
	Examples    []string `json:"examples,omitempty" yaml:"examples,omitempty" toml:"examples,omitempty"`
}

// Descriptor is the immutable metadata of one capability.
type Descriptor struct {
	info       Info
	invocation ITool
}

// Option configures a Descriptor
type Option func(*Descriptor)

// Eager marks the descriptor as always exposed.
func Eager() Option {
	return func(d *Descriptor) {
		d.info.Eager = true
	}
}

// WithEager sets the eager flag explicitly.
func WithEager(eager bool) Option {
	return func(d *Descriptor) {
		d.info.Eager = eager
	}
}

// WithExamples appends usage examples, surfaced verbatim next to the description.
func WithExamples(examples ...string) Option {
	return func(d *Descriptor) {
		d.info.Examples = append(d.info.Examples, examples...)
	}
}

// New returns a deferred descriptor, unless Eager option is provided.
func New(name, description string, invocation ITool, opts ...Option) *Descriptor {
	d := &Descriptor{
		info: Info{
			Name:        name,
			Description: description,
		},
		invocation: invocation,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromTool returns a descriptor with the name and description of the tool.
func FromTool(tool ITool, opts ...Option) *Descriptor {
	return New(tool.Name(), tool.Description(), tool, opts...)
}

func (d *Descriptor) Name() string {
	return d.info.Name
}

func (d *Descriptor) Description() string {
	return d.info.Description
}

func (d *Descriptor) Eager() bool {
	return d.info.Eager
}

// Examples returns a copy of the usage examples.
func (d *Descriptor) Examples() []string {
	return slices.Clone(d.info.Examples)
}

// FirstExample returns the first example, or empty string.
func (d *Descriptor) FirstExample() string {
	if len(d.info.Examples) == 0 {
		return ""
	}
	return d.info.Examples[0]
}

// Invocation returns the opaque invocation handle.
func (d *Descriptor) Invocation() ITool {
	return d.invocation
}

// Info returns the serializable metadata.
func (d *Descriptor) Info() Info {
	info := d.info
	info.Examples = slices.Clone(d.info.Examples)
	return info
}

// Key returns the text used to score the descriptor against a query.
func (d *Descriptor) Key() string {
	return strings.ToLower(d.info.Name + " " + d.info.Description)
}

// Validate checks the name and description, and that the invocation is set.
// Names follow the function name rule of model providers and MCP clients:
// up to 64 letters, digits, '_' or '-'. The invocation is checked for presence
// only, it is never called or inspected.
func (d *Descriptor) Validate() error {
	if d == nil {
		return errors.WithMessage(ErrInvalidDescriptor, "nil descriptor")
	}
	if err := validate.Struct(&d.info); err != nil {
		return errors.Mark(errors.Wrapf(err, "invalid descriptor %q", d.info.Name), ErrInvalidDescriptor)
	}
	if d.invocation == nil {
		return errors.Mark(errors.Newf("invalid descriptor %q: missing invocation", d.info.Name), ErrInvalidDescriptor)
	}
	return nil
}
