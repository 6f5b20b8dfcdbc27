package chunker

import (
	"strings"
	"testing"
)

func TestSplitSixWordsWithOverlap(t *testing.T) {
	got := Split("A B C D E F", 4, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].Text != "A B C D" || got[0].OverlapPrev != 0 || got[0].TokenCount != 4 {
		t.Fatalf("chunk 0 = %+v", got[0])
	}
	if got[1].Text != "C D E F" || got[1].OverlapPrev != 2 || got[1].TokenCount != 4 {
		t.Fatalf("chunk 1 = %+v", got[1])
	}
}

func TestSplitSingleChunkNoOverlap(t *testing.T) {
	got := Split("one two three", 10, 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].OverlapPrev != 0 {
		t.Fatalf("single chunk must have zero overlap, got %d", got[0].OverlapPrev)
	}
	if got[0].TokenCount != 3 {
		t.Fatalf("token count = %d, want 3", got[0].TokenCount)
	}
}

func TestSplitEmptyAndWhitespace(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t  \n"} {
		if got := Split(in, 4, 2); len(got) != 0 {
			t.Fatalf("Split(%q) = %d chunks, want 0", in, len(got))
		}
	}
}

func TestSplitIdempotent(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog again and again"
	a := Split(text, 5, 2)
	b := Split(text, 5, 2)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Ordinal != b[i].Ordinal || a[i].ContentHash != b[i].ContentHash {
			t.Fatalf("chunk %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSplitOverlapProperty(t *testing.T) {
	text := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10 w11 w12 w13"
	const overlap = 3
	chunks := Split(text, 6, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		k := chunks[i].OverlapPrev
		if k != overlap {
			t.Fatalf("chunk %d overlap = %d, want %d", i, k, overlap)
		}
		tail := prev[len(prev)-k:]
		head := cur[:k]
		for j := range tail {
			if tail[j] != head[j] {
				t.Fatalf("chunk %d: tail %v does not lead chunk %d head %v", i-1, tail, i, head)
			}
		}
	}
}

func TestSplitSingleLongWord(t *testing.T) {
	got := Split(strings.Repeat("x", 5000), 4, 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].TokenCount != 1 {
		t.Fatalf("a word is one token, got %d", got[0].TokenCount)
	}
}

func TestSplitOverlapClampedBelowMax(t *testing.T) {
	// Overlap >= maxTokens would never make progress; it gets clamped.
	got := Split("a b c d e f g h", 3, 5)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	total := 0
	for _, c := range got {
		if c.TokenCount > 3 {
			t.Fatalf("chunk exceeds max tokens: %+v", c)
		}
		total += c.TokenCount - c.OverlapPrev
	}
	if total != 8 {
		t.Fatalf("net tokens = %d, want 8", total)
	}
}

func TestSplitExactBoundary(t *testing.T) {
	got := Split("a b c d", 4, 2)
	if len(got) != 1 {
		t.Fatalf("text that exactly fills one chunk must not spill, got %d chunks", len(got))
	}
}
