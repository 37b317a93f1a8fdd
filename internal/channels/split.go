package channels

// SplitMessage splits content into pieces of at most maxRunes runes each,
// preferring to break after the last newline in the back half of the window.
// Platform message limits count characters, not bytes, and a cut must never
// land inside a multibyte sequence.
func SplitMessage(content string, maxRunes int) []string {
	if content == "" {
		return nil
	}
	var parts []string
	for len(content) > 0 {
		end, lastNL, lastNLRune := len(content), -1, -1
		n := 0
		for i, r := range content {
			if n == maxRunes {
				end = i
				break
			}
			if r == '\n' {
				lastNL, lastNLRune = i, n
			}
			n++
		}
		if end == len(content) {
			parts = append(parts, content)
			break
		}
		cut := end
		if lastNLRune > maxRunes/2 {
			cut = lastNL + 1
		}
		parts = append(parts, content[:cut])
		content = content[cut:]
	}
	return parts
}
