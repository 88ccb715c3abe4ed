package encoding_test

import (
	"testing"

	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/tools"
	"github.com/stretchr/testify/require"
)

func catalogOf(t *testing.T, list ...*tools.Descriptor) *catalog.Catalog {
	cat, err := catalog.Build(list...)
	require.NoError(t, err)
	return cat
}
