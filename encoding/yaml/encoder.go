package yaml

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

// Encoder writes YAML with the yaml tags of the value,
// or with its json tags when created by NewJSONTagsEncoder.
type Encoder struct {
	jsonTags bool
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// NewJSONTagsEncoder returns an encoder converting the JSON form of the value,
// for types like JSON schemas that only define json tags or MarshalJSON.
func NewJSONTagsEncoder() *Encoder {
	return &Encoder{jsonTags: true}
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if e.jsonTags {
		bs, err := sigsyaml.Marshal(v)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return bs, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	if e.jsonTags {
		return errors.WithStack(sigsyaml.Unmarshal(data, ret))
	}
	return errors.WithStack(yaml.Unmarshal(data, ret))
}
