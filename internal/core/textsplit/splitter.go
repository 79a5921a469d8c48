package textsplit

import (
	"math"
	"strings"
	"unicode"
)

// Strategy selects the granularity one split pass works at. Each strategy
// hands oversized pieces down to the next one.
type Strategy int

const (
	StrategySentence Strategy = iota
	StrategyParagraph
	StrategyChar
)

// DefaultUltraSafeCharLimit bounds piece length in runes regardless of the
// token estimate, protecting against providers with hard character caps.
const DefaultUltraSafeCharLimit = 2000

// Splitter cuts text into pieces that fit an embedding provider's token
// budget without dropping content.
type Splitter struct {
	MaxTokens          int
	UltraSafeCharLimit int
}

func New(maxTokens int) *Splitter {
	return &Splitter{
		MaxTokens:          maxTokens,
		UltraSafeCharLimit: DefaultUltraSafeCharLimit,
	}
}

// EstimateTokens approximates the provider token count of text: CJK
// characters cost 1.2 tokens each, English words 1.5, runs of digits 1.2,
// and everything else one token per three characters. Non-empty input
// always estimates to at least one token.
func EstimateTokens(text string) int {
	var cjk, words, numRuns, other int
	inWord, inNum := false, false
	for _, r := range text {
		switch {
		case isCJK(r):
			cjk++
			inWord, inNum = false, false
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			if !inWord {
				words++
			}
			inWord, inNum = true, false
		case r >= '0' && r <= '9':
			if !inNum {
				numRuns++
			}
			inNum, inWord = true, false
		case unicode.IsSpace(r):
			inWord, inNum = false, false
		default:
			other++
			inWord, inNum = false, false
		}
	}
	est := 1.2*float64(cjk) + 1.5*float64(words) + 1.2*float64(numRuns) + float64(other)/3.0
	n := int(math.Ceil(est))
	if n < 1 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}

// Split cuts text into pieces that each satisfy the token budget and the
// ultra-safe char limit. Concatenating the pieces reproduces the input
// modulo trimmed whitespace. Never returns an empty piece.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.splitWith(text, StrategySentence)
}

// Fits reports whether text already satisfies both limits.
func (s *Splitter) Fits(text string) bool {
	return EstimateTokens(text) <= s.MaxTokens && len([]rune(text)) <= s.charLimit()
}

func (s *Splitter) charLimit() int {
	if s.UltraSafeCharLimit > 0 {
		return s.UltraSafeCharLimit
	}
	return DefaultUltraSafeCharLimit
}

func (s *Splitter) splitWith(text string, strat Strategy) []string {
	if s.Fits(text) {
		return []string{text}
	}
	if strat == StrategyChar {
		return s.charSplit(text)
	}

	var parts []string
	switch strat {
	case StrategySentence:
		parts = splitSentences(text)
	case StrategyParagraph:
		parts = splitParagraphs(text)
	}
	if len(parts) <= 1 {
		return s.splitWith(text, strat+1)
	}

	// Greedy repack: adjacent small parts share a piece, oversized parts
	// recurse into the next strategy.
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			if p := cur.String(); strings.TrimSpace(p) != "" {
				out = append(out, p)
			}
			cur.Reset()
		}
	}
	for _, part := range parts {
		if !s.Fits(part) {
			flush()
			out = append(out, s.splitWith(part, strat+1)...)
			continue
		}
		if cur.Len() > 0 && !s.Fits(cur.String()+part) {
			flush()
		}
		cur.WriteString(part)
	}
	flush()
	return out
}

// charSplit is the last resort: fixed-size rune windows sized with margin
// for estimation error, shrunk further until the estimate fits, preferring
// a cut at whitespace or punctuation in the last 30% of the window.
func (s *Splitter) charSplit(text string) []string {
	runes := []rune(text)
	window := int(float64(s.MaxTokens) * 1.5)
	if window > s.charLimit() {
		window = s.charLimit()
	}
	if window < 1 {
		window = 1
	}

	var out []string
	for start := 0; start < len(runes); {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		// Shrink while the conservative window still overshoots the budget
		// (dense CJK text estimates above one token per character).
		for end-start > 1 && EstimateTokens(string(runes[start:end])) > s.MaxTokens {
			next := start + (end-start)*4/5
			if next <= start {
				next = start + 1
			}
			end = next
		}
		if end < len(runes) {
			if cut := boundaryCut(runes, start, end); cut > start {
				end = cut
			}
		}
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
		start = end
	}
	return out
}

// boundaryCut searches backward from end for whitespace or punctuation,
// accepting a cut only within the last 30% of the window.
func boundaryCut(runes []rune, start, end int) int {
	floor := start + (end-start)*7/10
	for i := end - 1; i > floor; i-- {
		r := runes[i]
		if unicode.IsSpace(r) || isSentenceEnd(r) || unicode.IsPunct(r) {
			return i + 1
		}
	}
	return -1
}

// splitSentences cuts after sentence-ending punctuation and line breaks,
// keeping the terminators attached so concatenation is lossless.
func splitSentences(text string) []string {
	var parts []string
	var cur strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if isSentenceEnd(r) || r == '\n' || r == '\r' {
			// swallow a following terminator run (e.g. "？！" or "\r\n")
			if i+1 < len(runes) && (isSentenceEnd(runes[i+1]) || runes[i+1] == '\n' || runes[i+1] == '\r') {
				continue
			}
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// splitParagraphs cuts on blank lines, separators kept with the preceding
// paragraph.
func splitParagraphs(text string) []string {
	return strings.SplitAfter(text, "\n\n")
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?':
		return true
	}
	return false
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
