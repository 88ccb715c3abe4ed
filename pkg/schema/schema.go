package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.RWMutex
)

// Schema holds the reflected schema of a capability input type.
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters represents the function parameters definition
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given type
func New(t reflect.Type) (*Schema, error) {
	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := buildSchema(t)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()

	return s, nil
}

// For returns the function parameters definition for the type T.
func For[T any]() (*jsonschema.Schema, error) {
	s, err := New(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return s.Parameters, nil
}

// MustFor is like For, but panics on error.
// Use it only for package level definitions.
func MustFor[T any]() *jsonschema.Schema {
	s, err := For[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

func buildSchema(t reflect.Type) (*Schema, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Newf("schema: expected struct type, got %s", t.Kind())
	}

	raw := JSONSchema(t)
	params, err := ToFunctionSchema(raw)
	if err != nil {
		return nil, err
	}
	return &Schema{
		RawSchema:  raw,
		Parameters: params,
	}, nil
}

// ToFunctionSchema returns the top level object of the schema,
// with all the references resolved.
func ToFunctionSchema(tSchema *jsonschema.Schema) (*jsonschema.Schema, error) {
	refID := strings.TrimPrefix(tSchema.Ref, "#/$defs/")

	var defs = make(map[string]*jsonschema.Schema)
	root := tSchema

	for name, def := range tSchema.Definitions {
		if name == refID {
			root = def
		} else {
			defs[name] = def
		}
	}

	res := &jsonschema.Schema{
		Type:       root.Type,
		Properties: root.Properties,
		Required:   root.Required,
	}

	if err := resolveRefs(res.Properties, defs); err != nil {
		return nil, err
	}
	return res, nil
}

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) error {
	if props == nil {
		return nil
	}
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		child := pair.Value
		if child.Ref != "" {
			name := strings.TrimPrefix(child.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("schema: definition not found: %s", name)
			}
			pair.Value = def
			child = def
		}
		if err := resolveRefs(child.Properties, defs); err != nil {
			return err
		}
		if child.Items != nil && child.Items.Ref != "" {
			name := strings.TrimPrefix(child.Items.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("schema: definition not found: %s", name)
			}
			child.Items = def
		}
	}
	return nil
}

// JSONSchema returns the json schema of the type
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.AllowAdditionalProperties = true

	// The struct name could be same in different packages,
	// add the hash of the package path to avoid the `$ref` collisions.
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}

// FromAny creates a json schema from any JSON serializable value.
//
// For example:
//
//	map[string]any{
//		"type": "object",
//		"properties": map[string]any{
//			"query": map[string]any{
//				"type": "string",
//			},
//		},
//	}
func FromAny(t any) (*jsonschema.Schema, error) {
	js, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	schema := &jsonschema.Schema{}
	err = json.Unmarshal(js, schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal schema")
	}
	return schema, nil
}

// MustFromAny is like FromAny, but panics on error.
func MustFromAny(t any) *jsonschema.Schema {
	s, err := FromAny(t)
	if err != nil {
		panic(err)
	}
	return s
}

// StringInput is the parameters definition for capabilities
// accepting a single free form string.
func StringInput(name, description string) *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	props.Set(name, &jsonschema.Schema{
		Type:        "string",
		Description: description,
	})
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{name},
	}
}
