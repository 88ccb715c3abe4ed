package selector

import "context"

// Scorer ranks documents against a query.
// Higher is more relevant. Implementations must be deterministic
// and safe for concurrent use.
type Scorer interface {
	// Name identifies the scorer in metrics and cache keys.
	Name() string
	// Score returns one score per document, in the same order.
	Score(ctx context.Context, query string, docs []string) []float64
}
