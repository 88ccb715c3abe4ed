package sandbox

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// decodeJSON parses JSON into script values, keeping the key order of objects.
func decodeJSON(data string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	v, err := decodeValue(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder, depth int) (any, error) {
	if depth > MaxNesting {
		return nil, errors.Newf("JSON nested deeper than %d", MaxNesting)
	}
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("unexpected end of JSON input")
		}
		return nil, errors.WithStack(err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			list := []any{}
			for dec.More() {
				v, err := decodeValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, errors.WithStack(err)
			}
			return list, nil
		case '{':
			m := newMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, errors.WithStack(err)
				}
				key, ok := kt.(string)
				if !ok {
					return nil, errors.Newf("invalid object key %v", kt)
				}
				v, err := decodeValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, errors.WithStack(err)
			}
			return m, nil
		}
		return nil, errors.Newf("unexpected delimiter %v", t)
	case string, float64, bool, nil:
		return t, nil
	}
	return nil, errors.Newf("unexpected token %v", tok)
}
