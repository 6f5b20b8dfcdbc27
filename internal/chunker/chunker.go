// Package chunker turns unit content into overlapping, embedding-sized text
// chunks. Splitting is deterministic: the same text always yields the same
// chunk boundaries and hashes, which is what lets the persistence layer diff
// old and new chunk sets by hash instead of rewriting everything.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Candidate is one prospective chunk before persistence.
type Candidate struct {
	Ordinal     int
	Text        string
	TokenCount  int
	OverlapPrev int
	ContentHash string
}

// Tokenize splits text into word tokens. Token granularity is words, not
// sub-word units: a single very long word is one token and is never split.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Split greedily packs word tokens into chunks of at most maxTokens, seeding
// each new chunk with the trailing minOverlapTokens words of the chunk just
// closed. Whitespace-only input produces no chunks. If everything fits in a
// single chunk its overlap is zero.
func Split(text string, maxTokens, minOverlapTokens int) []Candidate {
	words := Tokenize(text)
	if len(words) == 0 {
		return nil
	}
	if maxTokens < 1 {
		maxTokens = 1
	}
	if minOverlapTokens < 0 {
		minOverlapTokens = 0
	}
	// Overlap must leave room for at least one new word per chunk.
	if minOverlapTokens >= maxTokens {
		minOverlapTokens = maxTokens - 1
	}

	var out []Candidate
	current := make([]string, 0, maxTokens)
	overlapPrev := 0

	flush := func() {
		text := strings.Join(current, " ")
		out = append(out, Candidate{
			Ordinal:     len(out),
			Text:        text,
			TokenCount:  len(current),
			OverlapPrev: overlapPrev,
			ContentHash: HashContent(len(out), text),
		})
	}

	for _, w := range words {
		if len(current) >= maxTokens {
			flush()
			seed := minOverlapTokens
			if seed > len(current) {
				seed = len(current)
			}
			tail := current[len(current)-seed:]
			current = append(make([]string, 0, maxTokens), tail...)
			overlapPrev = seed
		}
		current = append(current, w)
	}
	if len(current) > 0 {
		flush()
	}
	return out
}

// HashContent is the stable per-chunk content hash. Ordinal is mixed in so
// repeated identical text within one unit still yields distinct rows.
func HashContent(ordinal int, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x1f%s", ordinal, text)))
	return hex.EncodeToString(sum[:])
}
