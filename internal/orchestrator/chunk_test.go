package orchestrator

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestChunkTextShortPassesThrough(t *testing.T) {
	got := chunkText("short text", 100)
	if len(got) != 1 || got[0] != "short text" {
		t.Fatalf("got %+v", got)
	}
}

func TestChunkTextPrefersNewlineBreaks(t *testing.T) {
	text := strings.Repeat("x", 40) + "\n" + strings.Repeat("y", 40)
	got := chunkText(text, 60)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(got), got)
	}
	if !strings.HasPrefix(got[0], "x") || !strings.HasPrefix(got[1], "y") {
		t.Fatalf("break not at newline: %+v", got)
	}
}

// Wide (CJK) runes count double and are never cut mid-rune.
func TestChunkTextDisplayWidth(t *testing.T) {
	text := strings.Repeat("汉", 50)
	got := chunkText(text, 40)
	if len(got) < 2 {
		t.Fatalf("wide text not split: %d chunks", len(got))
	}
	for _, c := range got {
		if w := runewidth.StringWidth(c); w > 40 {
			t.Fatalf("chunk width %d exceeds limit: %q", w, c)
		}
		for _, r := range c {
			if r != '汉' {
				t.Fatalf("rune mangled: %q", c)
			}
		}
	}
}

func TestChunkTextNoContentLost(t *testing.T) {
	text := strings.Repeat("word ", 500)
	got := chunkText(text, 120)
	var total int
	for _, c := range got {
		total += strings.Count(c, "word")
	}
	if total != 500 {
		t.Fatalf("lost words: %d of 500", total)
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if got := chunkText("   ", 100); got != nil {
		t.Fatalf("expected nil for blank input, got %+v", got)
	}
}
