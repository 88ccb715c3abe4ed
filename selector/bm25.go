package selector

import (
	"context"
	"math"
	"strings"
	"unicode"
)

// BM25 defaults
const (
	DefaultBM25K1 = 1.2
	DefaultBM25B  = 0.75
)

// BM25Scorer ranks by Okapi BM25 over the documents given to each call.
// Term statistics are computed from the documents, so the scores are
// relative to the candidate set.
type BM25Scorer struct {
	k1 float64
	b  float64
}

// NewBM25Scorer returns BM25 scorer. A non-positive k1 and a b outside [0, 1]
// are replaced by defaults; b = 0 disables document length normalization.
func NewBM25Scorer(k1, b float64) *BM25Scorer {
	if k1 <= 0 {
		k1 = DefaultBM25K1
	}
	if b < 0 || b > 1 {
		b = DefaultBM25B
	}
	return &BM25Scorer{k1: k1, b: b}
}

// Params returns k1 and b
func (s *BM25Scorer) Params() (k1, b float64) {
	return s.k1, s.b
}

// Name returns "bm25"
func (s *BM25Scorer) Name() string {
	return "bm25"
}

// Score returns BM25 of the query terms against each document.
func (s *BM25Scorer) Score(_ context.Context, query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	terms := uniqueTerms(Tokenize(query))
	if len(terms) == 0 || len(docs) == 0 {
		return scores
	}

	tfs := make([]map[string]int, len(docs))
	lens := make([]int, len(docs))
	df := make(map[string]int)
	total := 0
	for i, doc := range docs {
		tokens := Tokenize(doc)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		tfs[i] = tf
		lens[i] = len(tokens)
		total += len(tokens)
	}
	if total == 0 {
		return scores
	}

	n := float64(len(docs))
	avgdl := float64(total) / n
	for _, term := range terms {
		dfs := float64(df[term])
		if dfs == 0 {
			continue
		}
		idf := math.Log((n-dfs+0.5)/(dfs+0.5) + 1)
		for i, tf := range tfs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := s.k1 * (1 - s.b + s.b*float64(lens[i])/avgdl)
			scores[i] += idf * f * (s.k1 + 1) / (f + norm)
		}
	}
	return scores
}

// Tokenize splits lower-cased text on anything but letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	var list []string
	for _, tok := range tokens {
		if !seen[tok] {
			seen[tok] = true
			list = append(list, tok)
		}
	}
	return list
}
