// Package store provides the score cache shared by selector instances.
package store

import (
	"context"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "store")

// ScoreCache keeps the scores computed for a query against a set of documents.
// Keys are opaque to the cache.
type ScoreCache interface {
	// Get returns the cached scores, or false if the key is not present.
	Get(ctx context.Context, key string) ([]float64, bool, error)
	// Put stores the scores under the key.
	Put(ctx context.Context, key string, scores []float64) error
	// Reset drops all entries.
	Reset(ctx context.Context) error
}
