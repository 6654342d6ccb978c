// search.go implements a BM25-scored full-text index over skill sources.
//
// Declaration lines (exports and comments) get a score boost, and camelCase
// identifiers are indexed both whole and split, so "crypto data" finds
// fetchCryptoData.
package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/nevindra/codeact/skills"
)

// BM25 tuning parameters.
const (
	bm25K1    = 1.2
	bm25B     = 0.75
	declBoost = 2.0
	maxHits   = 10
)

type searchIndex struct {
	sources   []skills.Source
	postings  map[string][]posting
	declTerms map[string]map[int]bool
	docLens   []int
	avgDL     float64
}

type posting struct {
	doc  int
	freq int
}

type hit struct {
	source  skills.Source
	score   float64
	snippet string
}

func newSearchIndex(sources []skills.Source) *searchIndex {
	idx := &searchIndex{
		sources:   sources,
		postings:  make(map[string][]posting),
		declTerms: make(map[string]map[int]bool),
		docLens:   make([]int, len(sources)),
	}

	total := 0
	for i, s := range sources {
		tokens := tokenize(s.Path + "\n" + s.Content)
		idx.docLens[i] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int)
		for _, t := range tokens {
			tf[t]++
		}
		for term, freq := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, freq: freq})
		}

		for _, line := range strings.Split(s.Content, "\n") {
			if !isDeclaration(line) {
				continue
			}
			for _, t := range tokenize(line) {
				if idx.declTerms[t] == nil {
					idx.declTerms[t] = make(map[int]bool)
				}
				idx.declTerms[t][i] = true
			}
		}
	}
	if len(sources) > 0 {
		idx.avgDL = float64(total) / float64(len(sources))
	}
	return idx
}

func isDeclaration(line string) bool {
	l := strings.TrimSpace(line)
	return strings.HasPrefix(l, "export ") || strings.HasPrefix(l, "//")
}

// search ranks sources against query. At most maxHits are returned.
func (idx *searchIndex) search(query string) []hit {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range tokenize(query) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(idx.sources))
	scores := make(map[int]float64)
	for _, term := range terms {
		posts := idx.postings[term]
		df := float64(len(posts))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
		for _, p := range posts {
			dl := float64(idx.docLens[p.doc])
			tf := float64(p.freq)
			score := idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*(dl/idx.avgDL)))
			if idx.declTerms[term][p.doc] {
				score *= declBoost
			}
			scores[p.doc] += score
		}
	}

	hits := make([]hit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, hit{
			source:  idx.sources[doc],
			score:   score,
			snippet: snippet(idx.sources[doc].Content, seen),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].source.Path < hits[j].source.Path
	})
	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	return hits
}

// snippet returns the 5-line window with the most distinct query terms,
// padded by one line each side.
func snippet(content string, terms map[string]bool) string {
	lines := strings.Split(content, "\n")
	lineScores := make([]int, len(lines))
	for i, line := range lines {
		seen := make(map[string]bool)
		for _, t := range tokenize(line) {
			if terms[t] && !seen[t] {
				lineScores[i]++
				seen[t] = true
			}
		}
	}

	const window = 5
	best, bestScore := 0, 0
	for i := range lines {
		score := 0
		for j := i; j < min(i+window, len(lines)); j++ {
			score += lineScores[j]
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	start := max(best-1, 0)
	end := min(best+window+1, len(lines))
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

func formatHits(query string, hits []hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No skill source matches %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching file(s):\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n", h.source.Path, resourceURI(h.source), h.snippet)
	}
	return b.String()
}

// tokenize splits text into lowercase tokens of two or more characters.
// camelCase and snake_case identifiers also yield their parts.
func tokenize(text string) []string {
	var tokens []string
	var word []rune

	flush := func() {
		if len(word) == 0 {
			return
		}
		w := string(word)
		word = word[:0]
		lower := strings.ToLower(w)
		if len(lower) < 2 {
			return
		}
		tokens = append(tokens, lower)
		if parts := splitIdent(w); len(parts) > 1 {
			for _, p := range parts {
				if len(p) >= 2 {
					tokens = append(tokens, p)
				}
			}
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			word = append(word, r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// splitIdent splits "fetchCryptoData" or "fetch_crypto" into lowercase parts.
func splitIdent(w string) []string {
	var parts []string
	var cur []rune
	rs := []rune(w)
	for i, r := range rs {
		switch {
		case r == '_':
			if len(cur) > 0 {
				parts = append(parts, strings.ToLower(string(cur)))
			}
			cur = cur[:0]
			continue
		case unicode.IsUpper(r) && i > 0 && len(cur) > 0 &&
			(unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))):
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, strings.ToLower(string(cur)))
	}
	return parts
}
