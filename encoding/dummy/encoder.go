package dummy

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
)

type Stringer interface {
	String() string
}

// Encoder writes the text form of a value.
type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

// Marshal returns the String of a Stringer, strings and bytes as is,
// and indented JSON for other values.
func (e *Encoder) Marshal(v any) ([]byte, error) {
	switch s := v.(type) {
	case Stringer:
		return []byte(s.String()), nil
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	case *string:
		return []byte(*s), nil
	}
	return []byte(llmutils.ToJSONIndent(v)), nil
}

// Unmarshal supports only *string and *[]byte.
func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	switch s := ret.(type) {
	case *string:
		*s = string(bs)
	case *[]byte:
		*s = bs
	default:
		return errors.Newf("text can not be decoded into %T", ret)
	}
	return nil
}
