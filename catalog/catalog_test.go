package catalog_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(name, description string, opts ...tools.Option) *tools.Descriptor {
	inv := tools.Func(name, description, nil, func(_ context.Context, input string) (string, error) {
		return name + ":" + input, nil
	})
	return tools.New(name, description, inv, opts...)
}

func TestRegisterLookup(t *testing.T) {
	t.Parallel()

	c := catalog.New()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.All())

	require.NoError(t, c.Register(desc("search", "Web search.", tools.Eager())))
	require.NoError(t, c.Register(desc("weather", "Get the weather forecast for a city.")))
	require.NoError(t, c.Register(desc("fx", "Exchange rates.")))

	err := c.Register(desc("fx", "Other exchange."))
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrDuplicateName))
	assert.EqualError(t, err, "duplicate capability name: fx")

	err = c.Register(desc("bad name", "x"))
	assert.True(t, errors.Is(err, tools.ErrInvalidDescriptor))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"search", "weather", "fx"}, c.Names())

	d, err := c.Lookup("weather")
	require.NoError(t, err)
	assert.Equal(t, "weather", d.Name())
	out, err := d.Invocation().Call(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "weather:Tokyo", out)

	_, err = c.Lookup("stocks")
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrUnknownCapability))
	assert.EqualError(t, err, "unknown capability: stocks")

	assert.False(t, c.Frozen())
	c.Freeze()
	assert.True(t, c.Frozen())
	err = c.Register(desc("repo_search", "Query GitHub by keyword."))
	assert.True(t, errors.Is(err, catalog.ErrFrozen))
	assert.Equal(t, 3, c.Len())
}

func TestAllIterate(t *testing.T) {
	t.Parallel()

	c := catalog.MustBuild(
		desc("a", "first", tools.WithExamples("a(1)")),
		desc("b", "second", tools.Eager()),
		desc("c", "third"),
	)
	all := c.All()
	require.Len(t, all, 3)

	// the copy does not alias the catalog
	all[0] = nil
	assert.Equal(t, "a", c.All()[0].Name())

	var names []string
	for i, d := range c.Iterate() {
		assert.Equal(t, c.Names()[i], d.Name())
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	// early break
	count := 0
	for range c.Iterate() {
		count++
		break
	}
	assert.Equal(t, 1, count)

	infos := c.Infos()
	assert.Equal(t, tools.Info{Name: "a", Description: "first", Examples: []string{"a(1)"}}, infos[0])
	assert.Equal(t, tools.Info{Name: "b", Description: "second", Eager: true}, infos[1])
}

func TestBuild(t *testing.T) {
	t.Parallel()

	_, err := catalog.Build(desc("a", "x"), desc("a", "y"))
	assert.True(t, errors.Is(err, catalog.ErrDuplicateName))

	assert.Panics(t, func() {
		catalog.MustBuild(desc("", "x"))
	})
}

func TestInstancesAreIndependent(t *testing.T) {
	t.Parallel()

	c1 := catalog.New()
	c2 := catalog.New()
	require.NoError(t, c1.Register(desc("weather", "Weather.")))
	require.NoError(t, c2.Register(desc("weather", "Other weather.")))
	require.NoError(t, c2.Register(desc("fx", "Rates.")))

	assert.Equal(t, 1, c1.Len())
	assert.Equal(t, 2, c2.Len())

	d1, err := c1.Lookup("weather")
	require.NoError(t, err)
	d2, err := c2.Lookup("weather")
	require.NoError(t, err)
	assert.Equal(t, "Weather.", d1.Description())
	assert.Equal(t, "Other weather.", d2.Description())

	_, err = c1.Lookup("fx")
	assert.True(t, errors.Is(err, catalog.ErrUnknownCapability))

	c1.Freeze()
	assert.False(t, c2.Frozen())
	require.NoError(t, c2.Register(desc("search", "Search.")))
}
