package selector_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(_ context.Context, input string) (string, error) {
	return input, nil
}

func desc(name, description string, opts ...tools.Option) *tools.Descriptor {
	return tools.New(name, description, tools.Func(name, description, nil, noop), opts...)
}

func fixture() []*tools.Descriptor {
	return []*tools.Descriptor{
		desc("search", "Web search.", tools.Eager()),
		desc("wiki", "Wikipedia lookup.", tools.Eager()),
		desc("weather", "Get the weather forecast for a city."),
		desc("fx", "Exchange rates."),
		desc("repo_search", "Query GitHub by keyword."),
	}
}

func TestSelectScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cat := catalog.MustBuild(fixture()...)
	s := selector.New()

	sel, err := s.Select(ctx, "weather in Tokyo", cat, 3)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"search", "wiki", "weather", "fx", "repo_search"}, sel.Names()); diff != "" {
		t.Errorf("unexpected selection (-want +got):\n%s", diff)
	}
	assert.Equal(t, "lexical", sel.Scorer)
	assert.Equal(t, 3, sel.TopK)
	assert.Equal(t, "weather in Tokyo", sel.Query)
	assert.Equal(t, 3, sel.Matched())

	tags := make([]selector.Tag, len(sel.Items))
	for i, item := range sel.Items {
		tags[i] = item.Tag
	}
	assert.Equal(t, []selector.Tag{
		selector.TagAlways, selector.TagAlways,
		selector.TagMatched, selector.TagMatched, selector.TagMatched,
	}, tags)
	assert.Zero(t, sel.Items[0].Score)
	assert.InDelta(t, 0.4, sel.Items[2].Score, 1e-9)
	assert.Greater(t, sel.Items[2].Score, sel.Items[3].Score)

	sel, err = s.Select(ctx, "weather in Tokyo", cat, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "wiki", "weather"}, sel.Names())

	descs, err := selector.Select("weather in Tokyo", cat, 1)
	require.NoError(t, err)
	require.Len(t, descs, 3)
	assert.Equal(t, "weather", descs[2].Name())
}

func TestSelectEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := selector.New()
	cat := catalog.MustBuild(fixture()...)

	t.Run("zero topK", func(t *testing.T) {
		sel, err := s.Select(ctx, "weather in Tokyo", cat, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"search", "wiki"}, sel.Names())
		assert.Equal(t, 0, sel.Matched())
	})

	t.Run("negative topK", func(t *testing.T) {
		_, err := s.Select(ctx, "weather", cat, -1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, selector.ErrInvalidTopK))
		assert.EqualError(t, err, "invalid topK: -1, must be non-negative")

		_, err = selector.Select("weather", cat, -5)
		assert.True(t, errors.Is(err, selector.ErrInvalidTopK))
	})

	t.Run("topK above deferred count", func(t *testing.T) {
		sel, err := s.Select(ctx, "weather", cat, 100)
		require.NoError(t, err)
		assert.Len(t, sel.Items, 5)
	})

	t.Run("no deferred", func(t *testing.T) {
		eagerOnly := catalog.MustBuild(fixture()[:2]...)
		for _, k := range []int{0, 1, 10} {
			sel, err := s.Select(ctx, "weather", eagerOnly, k)
			require.NoError(t, err)
			assert.Equal(t, []string{"search", "wiki"}, sel.Names())
		}
	})

	t.Run("empty query", func(t *testing.T) {
		sel, err := s.Select(ctx, "", cat, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"search", "wiki", "weather", "fx"}, sel.Names())
	})

	t.Run("empty catalog", func(t *testing.T) {
		sel, err := s.Select(ctx, "weather", catalog.MustBuild(), 3)
		require.NoError(t, err)
		assert.Empty(t, sel.Items)

		sel, err = s.Select(ctx, "weather", nil, 3)
		require.NoError(t, err)
		assert.Empty(t, sel.Items)
	})
}

func TestSelectTiesKeepRegistrationOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// both keys score 8/34 against the query
	a := desc("fx", "Exchange rates.")
	b := desc("search", "Web search.")
	assert.Equal(t,
		selector.Ratio([]rune("weather in tokyo"), []rune(a.Key())),
		selector.Ratio([]rune("weather in tokyo"), []rune(b.Key())))

	sel, err := selector.New().Select(ctx, "weather in Tokyo", catalog.MustBuild(a, b), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"fx", "search"}, sel.Names())

	sel, err = selector.New().Select(ctx, "weather in Tokyo", catalog.MustBuild(b, a), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "fx"}, sel.Names())

	sel, err = selector.New().Select(ctx, "weather in Tokyo", catalog.MustBuild(b, a), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"search"}, sel.Names())
}

func TestSelectIndependentCatalogs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c1 := catalog.MustBuild(fixture()...)
	c2 := catalog.MustBuild(fixture()...)
	s := selector.New()

	for _, q := range []string{"weather in Tokyo", "github repos", ""} {
		r1, err := s.Select(ctx, q, c1, 2)
		require.NoError(t, err)
		r2, err := s.Select(ctx, q, c2, 2)
		require.NoError(t, err)
		if diff := cmp.Diff(r1.Names(), r2.Names()); diff != "" {
			t.Errorf("catalogs diverged for %q (-c1 +c2):\n%s", q, diff)
		}
	}
}

func TestSelectWithBM25(t *testing.T) {
	t.Parallel()

	s := selector.New(selector.WithScorer(selector.NewBM25Scorer(0, 0)))
	assert.Equal(t, "bm25", s.Scorer().Name())

	sel, err := s.Select(context.Background(), "github keyword search", catalog.MustBuild(fixture()...), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "wiki", "repo_search"}, sel.Names())
	assert.Equal(t, "bm25", sel.Scorer)
}

// randomCatalog returns a catalog of up to 30 descriptors with random eager flags.
func randomCatalog(t *testing.T, f *gofakeit.Faker) *catalog.Catalog {
	n := f.IntRange(0, 30)
	list := make([]*tools.Descriptor, 0, n)
	for i := range n {
		words := make([]string, f.IntRange(1, 8))
		for w := range words {
			words[w] = f.Word()
		}
		var opts []tools.Option
		if f.IntRange(0, 3) == 0 {
			opts = append(opts, tools.Eager())
		}
		list = append(list, desc(fmt.Sprintf("tool_%d", i), strings.Join(words, " ")+".", opts...))
	}
	cat, err := catalog.Build(list...)
	require.NoError(t, err)
	return cat
}

func TestSelectProperties(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	scorers := []selector.Scorer{
		selector.NewLexicalScorer(),
		selector.NewBM25Scorer(0, 0),
	}

	for seed := range uint64(50) {
		f := gofakeit.New(seed)
		cat := randomCatalog(t, f)
		topK := f.IntRange(0, 10)
		query := f.Word() + " " + f.Word()

		order := make(map[string]int)
		eager := []string{}
		deferred := 0
		for i, d := range cat.Iterate() {
			order[d.Name()] = i
			if d.Eager() {
				eager = append(eager, d.Name())
			} else {
				deferred++
			}
		}

		for _, scorer := range scorers {
			s := selector.New(selector.WithScorer(scorer))
			sel, err := s.Select(ctx, query, cat, topK)
			require.NoError(t, err)

			// size
			require.Len(t, sel.Items, len(eager)+min(topK, deferred), "seed %d", seed)

			// eager prefix in registration order
			names := sel.Names()
			assert.Equal(t, eager, names[:len(eager)], "seed %d", seed)

			// deferred suffix ordered by score, ties by registration
			seen := make(map[string]bool)
			matched := sel.Items[len(eager):]
			for i, item := range matched {
				assert.Equal(t, selector.TagMatched, item.Tag)
				assert.False(t, item.Descriptor.Eager())
				assert.False(t, seen[item.Descriptor.Name()])
				seen[item.Descriptor.Name()] = true
				if i > 0 {
					prev := matched[i-1]
					assert.GreaterOrEqual(t, prev.Score, item.Score, "seed %d", seed)
					if prev.Score == item.Score {
						assert.Less(t, order[prev.Descriptor.Name()], order[item.Descriptor.Name()], "seed %d", seed)
					}
				}
			}

			// deterministic
			again, err := s.Select(ctx, query, cat, topK)
			require.NoError(t, err)
			if diff := cmp.Diff(names, again.Names()); diff != "" {
				t.Errorf("seed %d: selection is not deterministic (-first +second):\n%s", seed, diff)
			}
		}
	}
}
