package yaml

import (
	"testing"

	"github.com/effective-security/toolscope/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listing struct {
	Name     string   `yaml:"name" json:"title"`
	Examples []string `yaml:"examples,omitempty" json:"examples,omitempty"`
}

func TestEncoder(t *testing.T) {
	v := &listing{Name: "fx_rate", Examples: []string{"fx_rate('USD to EUR')"}}

	bs, err := NewEncoder().Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "name: fx_rate\nexamples:\n  - fx_rate('USD to EUR')\n", string(bs))

	var got listing
	require.NoError(t, NewEncoder().Unmarshal([]byte("```yaml\n"+string(bs)+"```"), &got))
	assert.Equal(t, *v, got)
}

func TestJSONTagsEncoder(t *testing.T) {
	enc := NewJSONTagsEncoder()

	bs, err := enc.Marshal(&listing{Name: "fx_rate"})
	require.NoError(t, err)
	assert.Equal(t, "title: fx_rate\n", string(bs))

	bs, err = enc.Marshal(schema.StringInput("url", "The URL."))
	require.NoError(t, err)
	assert.Equal(t, "properties:\n  url:\n    description: The URL.\n    type: string\nrequired:\n- url\ntype: object\n", string(bs))

	var got listing
	require.NoError(t, enc.Unmarshal([]byte("title: http_get\n"), &got))
	assert.Equal(t, "http_get", got.Name)
}
