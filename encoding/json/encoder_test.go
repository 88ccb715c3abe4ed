package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repo struct {
	Name  string `json:"name"`
	Stars int    `json:"stars"`
}

func TestEncoder(t *testing.T) {
	enc := NewEncoder()

	bs, err := enc.Marshal(&repo{Name: "toolscope", Stars: 42})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"toolscope\",\n  \"stars\": 42\n}\n", string(bs))

	bs, err = NewEncoder().WithIndent("").Marshal(&repo{Name: "toolscope", Stars: 42})
	require.NoError(t, err)
	assert.Equal(t, "{\"name\":\"toolscope\",\"stars\":42}\n", string(bs))

	_, err = enc.Marshal(func() {})
	assert.Error(t, err)

	var r repo
	require.NoError(t, enc.Unmarshal([]byte("Sure, here you go:\n```json\n{\"name\": \"gonja\", \"stars\": 7}\n```"), &r))
	assert.Equal(t, repo{Name: "gonja", Stars: 7}, r)
}
