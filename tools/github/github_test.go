package github_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/toolscope/tools/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTool(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "stars", q.Get("sort"))
		assert.Equal(t, "desc", q.Get("order"))
		assert.Equal(t, "5", q.Get("per_page"))
		if q.Get("q") != "vector database" {
			_, _ = w.Write([]byte(`{"total_count":0,"items":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"total_count":2,"items":[
			{"full_name":"milvus-io/milvus","stargazers_count":35000,"html_url":"https://github.com/milvus-io/milvus","description":"Vector DB"},
			{"full_name":"acme/vdb","stargazers_count":12,"html_url":"https://github.com/acme/vdb","description":null}
		]}`))
	}))
	defer server.Close()

	ctx := context.Background()
	tool := github.New(server.Client(), "secret").WithBaseURL(server.URL)
	assert.Equal(t, github.ToolName, tool.Name())
	assert.Equal(t, "Search GitHub repositories by topic keyword, sorted by stars.", tool.Description())
	assert.False(t, github.Descriptor(tool).Eager())

	out, err := tool.Call(ctx, "vector database")
	require.NoError(t, err)
	exp := `[
  {
    "name": "milvus-io/milvus",
    "stars": 35000,
    "url": "https://github.com/milvus-io/milvus",
    "description": "Vector DB"
  },
  {
    "name": "acme/vdb",
    "stars": 12,
    "url": "https://github.com/acme/vdb",
    "description": null
  }
]`
	assert.Equal(t, exp, out)

	out, err = tool.Call(ctx, `{"topic": "nothing"}`)
	require.NoError(t, err)
	assert.Equal(t, "No repositories found for 'nothing'.", out)

	_, err = tool.Call(ctx, "")
	assert.EqualError(t, err, "invalid request: empty topic")
}
