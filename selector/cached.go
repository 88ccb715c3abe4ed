package selector

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/effective-security/toolscope/pkg/metricskey"
	"github.com/effective-security/toolscope/store"
	"github.com/effective-security/xlog"
)

// CachedScorer memoizes the scores of another scorer.
// Cache failures are logged and the scores are recomputed.
type CachedScorer struct {
	scorer Scorer
	cache  store.ScoreCache
}

// NewCachedScorer wraps the scorer with the cache.
func NewCachedScorer(scorer Scorer, cache store.ScoreCache) *CachedScorer {
	return &CachedScorer{
		scorer: scorer,
		cache:  cache,
	}
}

// Name returns the name of the wrapped scorer.
func (s *CachedScorer) Name() string {
	return s.scorer.Name()
}

// Score returns cached scores, or computes and caches them.
func (s *CachedScorer) Score(ctx context.Context, query string, docs []string) []float64 {
	key := CacheKey(s.scorer.Name(), query, docs)

	scores, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "cache_get", "scorer", s.Name(), "err", err.Error())
	} else if ok && len(scores) == len(docs) {
		metricskey.StatsScoreCacheHits.IncrCounter(1, s.Name())
		return scores
	}
	metricskey.StatsScoreCacheMisses.IncrCounter(1, s.Name())

	scores = s.scorer.Score(ctx, query, docs)
	if err := s.cache.Put(ctx, key, scores); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "cache_put", "scorer", s.Name(), "err", err.Error())
	}
	return scores
}

// CacheKey returns the hash of the scorer name, the query and the documents.
func CacheKey(scorer, query string, docs []string) string {
	d := xxhash.New()
	_, _ = d.WriteString(scorer)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(query)
	for _, doc := range docs {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(doc)
	}
	return scorer + "-" + strconv.FormatUint(d.Sum64(), 16)
}
