package channel

import (
	"strings"
	"unicode/utf8"
)

// ChunkerMode selects the text chunking strategy.
type ChunkerMode string

const (
	ChunkerModeText     ChunkerMode = "text"
	ChunkerModeMarkdown ChunkerMode = "markdown"
)

// Chunker splits text into pieces that respect a character limit.
type Chunker func(text string, limit int) []string

// OutboundPolicy configures how outbound text is split before delivery.
// A zero TextChunkLimit disables chunking.
type OutboundPolicy struct {
	TextChunkLimit int         `json:"text_chunk_limit,omitempty"`
	ChunkerMode    ChunkerMode `json:"chunker_mode,omitempty"`
	Chunker        Chunker     `json:"-"`
}

// NormalizeOutboundPolicy fills zero-value fields with sensible defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.ChunkerMode == "" {
		policy.ChunkerMode = ChunkerModeText
	}
	if policy.Chunker == nil {
		policy.Chunker = DefaultChunker(policy.ChunkerMode)
	}
	return policy
}

// DefaultChunker returns the built-in Chunker for the given mode.
func DefaultChunker(mode ChunkerMode) Chunker {
	switch mode {
	case ChunkerModeMarkdown:
		return ChunkMarkdownText
	default:
		return ChunkText
	}
}

// SplitText applies the policy to text. It always returns at least one
// element for non-blank input.
func (p OutboundPolicy) SplitText(text string) []string {
	p = NormalizeOutboundPolicy(p)
	if p.TextChunkLimit <= 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	return p.Chunker(text, p.TextChunkLimit)
}

// ChunkText splits text at newline boundaries so that no chunk exceeds
// limit runes. Lines longer than limit are cut.
func ChunkText(text string, limit int) []string {
	return pack(text, "\n", limit, cutRunes)
}

// ChunkMarkdownText splits text at blank lines, falling back to ChunkText
// for paragraphs longer than limit.
func ChunkMarkdownText(text string, limit int) []string {
	return pack(text, "\n\n", limit, ChunkText)
}

// pack greedily joins sep-separated segments into chunks of at most limit
// runes; oversize segments go through split.
func pack(text, sep string, limit int, split Chunker) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	sepLen := utf8.RuneCountInString(sep)
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, seg := range strings.Split(text, sep) {
		n := utf8.RuneCountInString(seg)
		if n > limit {
			flush()
			chunks = append(chunks, split(seg, limit)...)
			continue
		}
		if curLen > 0 && curLen+sepLen+n > limit {
			flush()
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += sepLen
		}
		cur.WriteString(seg)
		curLen += n
	}
	flush()
	return chunks
}

func cutRunes(line string, limit int) []string {
	runes := []rune(line)
	var chunks []string
	for start := 0; start < len(runes); start += limit {
		segment := strings.TrimSpace(string(runes[start:min(start+limit, len(runes))]))
		if segment != "" {
			chunks = append(chunks, segment)
		}
	}
	return chunks
}
