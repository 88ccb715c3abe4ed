package json

import (
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
)

// Encoder writes indented JSON and reads lenient JSON.
type Encoder struct {
	indent string
}

func NewEncoder() *Encoder {
	return &Encoder{indent: "  "}
}

// WithIndent sets the indent, empty string writes compact JSON.
func (e *Encoder) WithIndent(indent string) *Encoder {
	e.indent = indent
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	var (
		bs  []byte
		err error
	)
	if e.indent == "" {
		bs, err = json.Marshal(v)
	} else {
		bs, err = json.MarshalIndent(v, "", e.indent)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append(bs, '\n'), nil
}

// Unmarshal accepts JSON surrounded by prose or backticks,
// and the usual LLM JSON mistakes.
func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(bs)
	return ljson.Unmarshal(data, ret)
}
