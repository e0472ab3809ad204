package channel

import (
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "blank", text: "   ", limit: 10, want: nil},
		{name: "fits", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "line boundaries", text: "aaa\nbbb\nccc", limit: 7, want: []string{"aaa\nbbb", "ccc"}},
		{name: "long line split", text: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "runes not bytes", text: "ééééé", limit: 5, want: []string{"ééééé"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ChunkText(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Fatalf("ChunkText(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestChunkMarkdownText_ParagraphBoundaries(t *testing.T) {
	t.Parallel()

	got := ChunkMarkdownText("para one\n\npara two\n\npara three", 20)
	if len(got) != 2 || got[0] != "para one\n\npara two" || got[1] != "para three" {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitText_NoLimit(t *testing.T) {
	t.Parallel()

	got := OutboundPolicy{}.SplitText(" " + strings.Repeat("x", 5000) + " ")
	if len(got) != 1 || len(got[0]) != 5000 {
		t.Fatalf("expected single trimmed chunk, got %d chunks", len(got))
	}
	if (OutboundPolicy{}).SplitText("  ") != nil {
		t.Fatalf("expected nil for blank text")
	}
}

func TestMessageEventName(t *testing.T) {
	t.Parallel()

	if (Message{}).EventName() != EventChatMessage {
		t.Fatalf("expected default chat event")
	}
	if (Message{Event: EventConnectChannel}).EventName() != EventConnectChannel {
		t.Fatalf("expected explicit event to be kept")
	}
	if !(Message{Text: " "}).IsEmpty() {
		t.Fatalf("expected blank message to be empty")
	}
}
