package selector

import (
	"context"
	"strings"
)

// LexicalScorer scores by the Ratcliff/Obershelp ratio of matching characters,
// without junk heuristics.
// The ratio is 2*M/T, where M is the number of matched characters and T
// is the total length of both strings. Two empty strings score 1.
type LexicalScorer struct{}

// NewLexicalScorer returns the lexical scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Name returns "lexical"
func (s *LexicalScorer) Name() string {
	return "lexical"
}

// Score returns the ratio of the lower-cased query against each document.
// The documents are expected to be lower-cased keys.
func (s *LexicalScorer) Score(_ context.Context, query string, docs []string) []float64 {
	q := []rune(strings.ToLower(query))
	scores := make([]float64, len(docs))
	for i, doc := range docs {
		scores[i] = Ratio(q, []rune(doc))
	}
	return scores
}

// Ratio returns the similarity of a and b in [0, 1].
func Ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	m := newMatcher(a, b)
	return 2.0 * float64(m.matches()) / float64(total)
}

type matcher struct {
	a, b []rune
	// positions of each element in b, popular elements removed
	b2j map[rune][]int

	j2len    map[int]int
	newj2len map[int]int
}

// autojunk threshold: in sequences of at least 200 elements,
// elements occurring more than 1% of the time are ignored as match anchors.
const autojunkMinLen = 200

func newMatcher(a, b []rune) *matcher {
	b2j := make(map[rune][]int)
	for j, elt := range b {
		b2j[elt] = append(b2j[elt], j)
	}

	if n := len(b); n >= autojunkMinLen {
		ntest := n/100 + 1
		for elt, idxs := range b2j {
			if len(idxs) > ntest {
				delete(b2j, elt)
			}
		}
	}

	return &matcher{
		a:        a,
		b:        b,
		b2j:      b2j,
		j2len:    make(map[int]int),
		newj2len: make(map[int]int),
	}
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k]
// within a[alo:ahi] and b[blo:bhi]. Of equal blocks, the one starting
// earliest in a wins, and of those the one starting earliest in b.
func (m *matcher) longestMatch(alo, ahi, blo, bhi int) (besti, bestj, bestsize int) {
	besti, bestj = alo, blo

	clear(m.j2len)
	for i := alo; i < ahi; i++ {
		clear(m.newj2len)
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := m.j2len[j-1] + 1
			m.newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		m.j2len, m.newj2len = m.newj2len, m.j2len
	}

	// popular elements were dropped from b2j, extend the match over them
	for besti > alo && bestj > blo && m.a[besti-1] == m.b[bestj-1] {
		besti, bestj, bestsize = besti-1, bestj-1, bestsize+1
	}
	for besti+bestsize < ahi && bestj+bestsize < bhi && m.a[besti+bestsize] == m.b[bestj+bestsize] {
		bestsize++
	}
	return besti, bestj, bestsize
}

type span struct {
	alo, ahi, blo, bhi int
}

// matches returns the total size of the matching blocks.
func (m *matcher) matches() int {
	total := 0
	queue := []span{{0, len(m.a), 0, len(m.b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := m.longestMatch(s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return total
}
