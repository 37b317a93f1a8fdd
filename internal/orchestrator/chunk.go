package orchestrator

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// chunkText splits s into pieces whose display width stays under maxWidth.
// Splitting operates on whole runes only — a multibyte character is never cut
// mid-sequence — and prefers to break at the last newline or space inside the
// window so chunks stay readable.
func chunkText(s string, maxWidth int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if maxWidth < 16 {
		maxWidth = 16
	}

	var chunks []string
	for len(s) > 0 {
		if runewidth.StringWidth(s) <= maxWidth {
			chunks = append(chunks, s)
			break
		}

		width := 0
		cut := 0          // byte offset of the hard cut
		softCut := -1     // byte offset of the best break point
		softIsNewline := false
		for i, r := range s {
			w := runewidth.RuneWidth(r)
			if width+w > maxWidth {
				cut = i
				break
			}
			width += w
			switch r {
			case '\n':
				softCut, softIsNewline = i, true
			case ' ':
				if !softIsNewline {
					softCut = i
				}
			}
		}
		if cut == 0 {
			// single rune wider than the window; cannot happen with sane widths
			break
		}
		if softCut > 0 {
			cut = softCut
		}

		chunks = append(chunks, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	return chunks
}
