package milvus

import (
	"strings"
	"testing"
)

func TestSplitSentences_PacksAndOverlaps(t *testing.T) {
	text := strings.Repeat("This is a fairly ordinary sentence about services. ", 30)
	chunks := SplitText(text, ChunkSentence, ChunkOptions{MaxSize: 200, OverlapSize: 4})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk.Content) > 200+60 {
			t.Fatalf("chunk %d far exceeds max size: %d chars", i, len(chunk.Content))
		}
		if chunk.Index != i {
			t.Fatalf("chunk index mismatch: got %d want %d", chunk.Index, i)
		}
		if chunk.Hash == "" || chunk.Method != "sentence" {
			t.Fatalf("chunk metadata missing: %+v", chunk)
		}
	}
	// tail overlap: second chunk starts with words from the first chunk's end
	firstWords := strings.Fields(chunks[0].Content)
	tail := strings.Join(firstWords[len(firstWords)-4:], " ")
	if !strings.HasPrefix(chunks[1].Content, tail) {
		t.Fatalf("no tail overlap: chunk 1 starts %q, expected prefix %q", chunks[1].Content[:40], tail)
	}
}

func TestSplitParagraphs(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\n" + strings.Repeat("x", 1100)
	chunks := SplitText(text, ChunkParagraph, ChunkOptions{})
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "first paragraph") || !strings.Contains(chunks[0].Content, "second paragraph") {
		t.Fatalf("small paragraphs not packed together: %q", chunks[0].Content)
	}
}

func TestSplitTokenWindows_Overlap(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%3)
	}
	chunks := SplitText(strings.Join(words, " "), ChunkToken, ChunkOptions{MaxTokens: 40, OverlapSize: 10})
	if len(chunks) != 3 {
		t.Fatalf("expected 3 windows (stride 30 over 100 words), got %d", len(chunks))
	}
	first := strings.Fields(chunks[0].Content)
	second := strings.Fields(chunks[1].Content)
	if len(first) != 40 {
		t.Fatalf("window size wrong: %d", len(first))
	}
	if first[30] != second[0] {
		t.Fatalf("windows do not overlap by 10 words")
	}
}

func TestSplitSemantic_TitleBoundaries(t *testing.T) {
	text := "# Overview\nintro text\n## Setup\nsteps here\n1. First step\ndetails\nConfiguration:\nvalues"
	chunks := SplitText(text, ChunkSemantic, ChunkOptions{})
	if len(chunks) != 4 {
		t.Fatalf("expected 4 semantic sections, got %d: %#v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[1].Content, "## Setup") {
		t.Fatalf("section boundary wrong: %q", chunks[1].Content)
	}
}

func TestRerank_BoostsAndThreshold(t *testing.T) {
	hits := []SearchHit{
		{Content: "nothing relevant here", Distance: 0.50},
		{Content: "payment service timeout investigation", Distance: 0.45, Keywords: []string{"payment"}},
	}
	ranked := Rerank("payment service timeout", hits, 10, 0.55)
	if len(ranked) != 1 {
		t.Fatalf("expected threshold to drop one hit, got %d", len(ranked))
	}
	if !strings.Contains(ranked[0].Content, "payment") {
		t.Fatalf("boosted hit should rank first: %+v", ranked[0])
	}
	if ranked[0].Score <= 0.45 {
		t.Fatalf("score not boosted: %v", ranked[0].Score)
	}
}

func TestHashEmbedder_DeterministicUnitVector(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(nil, "orders failing with timeouts")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, _ := e.Embed(nil, "orders failing with timeouts")
	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
		norm += float64(a[i]) * float64(a[i])
	}
	if norm < 0.99 || norm > 1.01 {
		t.Fatalf("vector not normalized: %v", norm)
	}
}
