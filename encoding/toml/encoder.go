package toml

import (
	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
)

// Encoder writes TOML. The value must encode to a table:
// a struct, or a map with string keys.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	bs, err := toml.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return bs, nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	return errors.WithStack(toml.Unmarshal(data, ret))
}
