package milvus

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// ChunkMethod selects the ingest splitting strategy.
type ChunkMethod string

const (
	ChunkSentence  ChunkMethod = "sentence"
	ChunkParagraph ChunkMethod = "paragraph"
	ChunkToken     ChunkMethod = "token"
	ChunkSemantic  ChunkMethod = "semantic"
)

const (
	defaultSentenceMax  = 512
	defaultParagraphMax = 1024
	defaultTokenWindow  = 200
	defaultTokenOverlap = 40
	defaultTailOverlap  = 20
)

// Chunk is one stored unit of a document.
type Chunk struct {
	Content   string    `json:"content"`
	Hash      string    `json:"hash"`
	Index     int       `json:"chunk_index"`
	Method    string    `json:"chunk_method"`
	FilePath  string    `json:"file_path,omitempty"`
	Title     string    `json:"doc_title,omitempty"`
	DocType   string    `json:"doc_type,omitempty"`
	Language  string    `json:"language,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkOptions tunes a split. Zero values fall back to the per-method
// defaults.
type ChunkOptions struct {
	MaxSize     int
	MaxTokens   int
	OverlapSize int
}

// SplitText splits text with the chosen method and fills per-chunk
// metadata. Unknown methods fall back to sentence splitting.
func SplitText(text string, method ChunkMethod, opts ChunkOptions) []Chunk {
	var pieces []string
	switch method {
	case ChunkParagraph:
		pieces = splitParagraphs(text, orDefault(opts.MaxSize, defaultParagraphMax))
	case ChunkToken:
		pieces = splitTokenWindows(text, orDefault(opts.MaxTokens, defaultTokenWindow), orDefault(opts.OverlapSize, defaultTokenOverlap))
	case ChunkSemantic:
		pieces = splitSemantic(text, orDefault(opts.MaxSize, defaultSentenceMax))
	default:
		method = ChunkSentence
		pieces = splitSentences(text, orDefault(opts.MaxSize, defaultSentenceMax), orDefault(opts.OverlapSize, defaultTailOverlap))
	}

	now := time.Now().UTC()
	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		sum := md5.Sum([]byte(piece))
		chunks = append(chunks, Chunk{
			Content:   piece,
			Hash:      hex.EncodeToString(sum[:]),
			Index:     len(chunks),
			Method:    string(method),
			Summary:   summarize(piece),
			CreatedAt: now,
		})
	}
	return chunks
}

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// splitSentences packs sentences into chunks of at most maxSize chars and
// carries a tail of overlapWords words into the next chunk.
func splitSentences(text string, maxSize, overlapWords int) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	sentences := strings.Split(marked, "\x00")

	var out []string
	var current strings.Builder
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxSize {
			chunk := current.String()
			out = append(out, chunk)
			current.Reset()
			if overlapWords > 0 {
				current.WriteString(tailWords(chunk, overlapWords))
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if strings.TrimSpace(current.String()) != "" {
		out = append(out, current.String())
	}
	return out
}

func splitParagraphs(text string, maxSize int) []string {
	paragraphs := regexp.MustCompile(`\n\s*\n`).Split(text, -1)
	var out []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > maxSize {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func splitTokenWindows(text string, window, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if overlap >= window {
		overlap = window / 2
	}
	stride := window - overlap
	var out []string
	for start := 0; start < len(words); start += stride {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

var titleLine = regexp.MustCompile(`^(#{1,6}\s+.+|\d+\.\s+.+|.+:)\s*$`)

// splitSemantic starts a new chunk at every title-looking line and force
// splits anything that still exceeds maxSize.
func splitSemantic(text string, maxSize int) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if titleLine.MatchString(trimmed) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if strings.TrimSpace(current.String()) != "" {
		sections = append(sections, current.String())
	}

	var out []string
	for _, section := range sections {
		section = strings.TrimSpace(section)
		for len(section) > maxSize {
			out = append(out, section[:maxSize])
			section = section[maxSize:]
		}
		if section != "" {
			out = append(out, section)
		}
	}
	return out
}

func tailWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[len(words)-n:], " ")
}

func summarize(content string) string {
	if len(content) <= 160 {
		return ""
	}
	if loc := sentenceEnd.FindStringIndex(content); loc != nil {
		return strings.TrimSpace(content[:loc[0]+1])
	}
	return strings.TrimSpace(content[:160])
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
