package dummy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type text string

func (t text) String() string {
	return "text: " + string(t)
}

func TestEncoder(t *testing.T) {
	enc := NewEncoder()

	s := "pointer"
	for _, tc := range []struct {
		v   any
		exp string
	}{
		{text("stringer"), "text: stringer"},
		{"plain", "plain"},
		{[]byte("bytes"), "bytes"},
		{&s, "pointer"},
		{map[string]int{"a": 1}, "{\n\t\"a\": 1\n}"},
	} {
		bs, err := enc.Marshal(tc.v)
		require.NoError(t, err)
		assert.Equal(t, tc.exp, string(bs))
	}

	var out string
	require.NoError(t, enc.Unmarshal([]byte("hello"), &out))
	assert.Equal(t, "hello", out)

	var raw []byte
	require.NoError(t, enc.Unmarshal([]byte("hello"), &raw))
	assert.Equal(t, "hello", string(raw))

	var m map[string]any
	assert.EqualError(t, enc.Unmarshal([]byte("{}"), &m), "text can not be decoded into *map[string]interface {}")
}
