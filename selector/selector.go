// Package selector decides which capability descriptors are exposed
// to the model for a request.
//
// Eager descriptors are always returned first, in registration order.
// Deferred descriptors are scored against the query, sorted by descending
// score with ties kept in registration order, and truncated to topK.
package selector

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/pkg/metricskey"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "selector")

// DefaultTopK is the number of deferred descriptors exposed by default.
const DefaultTopK = 3

// ErrInvalidTopK is returned when topK is negative.
var ErrInvalidTopK = errors.New("invalid topK")

// Tag describes why a descriptor was selected.
type Tag string

// Tags
const (
	TagAlways  Tag = "ALWAYS"
	TagMatched Tag = "MATCHED"
)

// Item is one selected descriptor.
type Item struct {
	Descriptor *tools.Descriptor
	Tag        Tag
	// Score is zero for eager descriptors
	Score float64
}

// Selection is the ordered result of Select.
type Selection struct {
	Query  string
	TopK   int
	Scorer string
	Items  []Item
}

// Descriptors returns the selected descriptors in order.
func (s *Selection) Descriptors() []*tools.Descriptor {
	list := make([]*tools.Descriptor, len(s.Items))
	for i, item := range s.Items {
		list[i] = item.Descriptor
	}
	return list
}

// Names returns the selected names in order.
func (s *Selection) Names() []string {
	list := make([]string, len(s.Items))
	for i, item := range s.Items {
		list[i] = item.Descriptor.Name()
	}
	return list
}

// Matched returns the number of deferred descriptors selected.
func (s *Selection) Matched() int {
	count := 0
	for _, item := range s.Items {
		if item.Tag == TagMatched {
			count++
		}
	}
	return count
}

// Selector selects descriptors with a Scorer.
// It holds no per-request state and is safe for concurrent use.
type Selector struct {
	scorer Scorer
}

// Option configures a Selector
type Option func(*Selector)

// WithScorer replaces the default lexical scorer.
func WithScorer(scorer Scorer) Option {
	return func(s *Selector) {
		s.scorer = scorer
	}
}

// New returns a Selector, by default with the lexical scorer.
func New(opts ...Option) *Selector {
	s := &Selector{}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = NewLexicalScorer()
	}
	return s
}

// Scorer returns the scorer in use.
func (s *Selector) Scorer() Scorer {
	return s.scorer
}

var lexical = New()

// Select returns the descriptors exposed for the query, using the lexical scorer.
func Select(query string, cat *catalog.Catalog, topK int) ([]*tools.Descriptor, error) {
	sel, err := lexical.Select(context.Background(), query, cat, topK)
	if err != nil {
		return nil, err
	}
	return sel.Descriptors(), nil
}

// Select returns eager descriptors followed by up to topK best scored
// deferred descriptors.
// A negative topK returns ErrInvalidTopK.
func (s *Selector) Select(ctx context.Context, query string, cat *catalog.Catalog, topK int) (*Selection, error) {
	name := s.scorer.Name()
	if topK < 0 {
		metricskey.StatsSelectorInvalidRequests.IncrCounter(1, name)
		return nil, errors.Mark(errors.Newf("invalid topK: %d, must be non-negative", topK), ErrInvalidTopK)
	}

	started := time.Now()
	defer metricskey.PerfSelect.MeasureSince(started, name)

	res := &Selection{
		Query:  query,
		TopK:   topK,
		Scorer: name,
	}

	var deferred []*tools.Descriptor
	if cat != nil {
		for _, d := range cat.Iterate() {
			if d.Eager() {
				res.Items = append(res.Items, Item{Descriptor: d, Tag: TagAlways})
			} else {
				deferred = append(deferred, d)
			}
		}
	}

	if topK > 0 && len(deferred) > 0 {
		docs := make([]string, len(deferred))
		for i, d := range deferred {
			docs[i] = d.Key()
		}
		scores := s.scorer.Score(ctx, query, docs)

		ranked := make([]Item, len(deferred))
		for i, d := range deferred {
			ranked[i] = Item{Descriptor: d, Tag: TagMatched}
			if i < len(scores) {
				ranked[i].Score = scores[i]
			}
		}
		slices.SortStableFunc(ranked, func(a, b Item) int {
			return cmp.Compare(b.Score, a.Score)
		})
		if len(ranked) > topK {
			ranked = ranked[:topK]
		}
		res.Items = append(res.Items, ranked...)
	}

	matched := res.Matched()
	metricskey.StatsSelectorSelections.IncrCounter(1, name)
	metricskey.StatsSelectorDeferredSelected.IncrCounter(float64(matched), name)

	logger.ContextKV(ctx, xlog.DEBUG,
		"scorer", name,
		"top_k", topK,
		"eager", len(res.Items)-matched,
		"deferred", len(deferred),
		"matched", matched,
	)
	return res, nil
}
