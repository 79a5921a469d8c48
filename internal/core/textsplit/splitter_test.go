package textsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("   \n\t"))

	// single char of any class still costs at least one token
	assert.GreaterOrEqual(t, EstimateTokens("a"), 1)
	assert.GreaterOrEqual(t, EstimateTokens("中"), 1)
	assert.GreaterOrEqual(t, EstimateTokens(","), 1)

	// 10 CJK chars at 1.2 each -> 12
	assert.Equal(t, 12, EstimateTokens(strings.Repeat("中", 10)))

	// 4 english words at 1.5 each -> 6
	assert.Equal(t, 6, EstimateTokens("one two three four"))

	// one numeric run costs 1.2 regardless of digit count
	assert.Equal(t, 2, EstimateTokens("1234567890"))

	// CJK weighs more than the same count of misc punctuation
	assert.Greater(t, EstimateTokens(strings.Repeat("中", 30)), EstimateTokens(strings.Repeat("-", 30)))
}

func TestSplitFitsWhole(t *testing.T) {
	s := New(100)
	text := "A short paragraph that fits."
	assert.Equal(t, []string{text}, s.Split(text))
}

func TestSplitEmpty(t *testing.T) {
	s := New(100)
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("  \n "))
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func assertBudgetAndLossless(t *testing.T, s *Splitter, text string) {
	t.Helper()
	pieces := s.Split(text)
	require.NotEmpty(t, pieces)
	var joined strings.Builder
	for _, p := range pieces {
		require.NotEqual(t, "", strings.TrimSpace(p))
		assert.LessOrEqual(t, EstimateTokens(p), s.MaxTokens, "piece over budget: %q", p)
		assert.LessOrEqual(t, len([]rune(p)), s.UltraSafeCharLimit)
		joined.WriteString(p)
	}
	assert.Equal(t, stripSpace(text), stripSpace(joined.String()))
}

func TestSplitSentenceBoundaries(t *testing.T) {
	s := New(12)
	text := "第一句话在这里。第二句话也在这里。第三句话稍微长一点点。"
	assertBudgetAndLossless(t, s, text)
	pieces := s.Split(text)
	assert.Greater(t, len(pieces), 1)
}

func TestSplitEnglishParagraphs(t *testing.T) {
	s := New(20)
	text := "The first paragraph has a handful of words in it. It keeps going for a while longer.\n\n" +
		"The second paragraph is also reasonably sized. It should land in its own piece or two."
	assertBudgetAndLossless(t, s, text)
}

func TestSplitLongUnbrokenText(t *testing.T) {
	// no sentence or paragraph boundaries at all: forces char windows
	s := New(30)
	text := strings.Repeat("中文内容没有任何标点连续书写", 40)
	assertBudgetAndLossless(t, s, text)
}

func TestSplitHugeWordFallsToCharWindows(t *testing.T) {
	s := New(10)
	text := strings.Repeat("x", 5000)
	pieces := s.Split(text)
	require.NotEmpty(t, pieces)
	total := 0
	for _, p := range pieces {
		assert.LessOrEqual(t, EstimateTokens(p), s.MaxTokens)
		total += len(p)
	}
	assert.Equal(t, len(text), total)
}

func TestSplitPrefersWhitespaceCut(t *testing.T) {
	s := New(10)
	// words separated by spaces: char windows should cut on a space rather
	// than mid-word whenever one falls in the cut zone
	text := strings.Repeat("alpha beta gamma delta ", 20)
	for _, p := range s.Split(text) {
		trimmed := strings.TrimSpace(p)
		assert.NotEqual(t, "", trimmed)
	}
	assertBudgetAndLossless(t, s, text)
}

func TestSplitRespectsUltraSafeCharLimit(t *testing.T) {
	s := New(100000)
	s.UltraSafeCharLimit = 50
	text := strings.Repeat("abcde ", 100)
	for _, p := range s.Split(text) {
		assert.LessOrEqual(t, len([]rune(p)), 50)
	}
}

func TestSplitMixedContent(t *testing.T) {
	s := New(25)
	text := "Intro words here. 这是一段中文，包含标点。Numbers 12345 and 67890 follow.\n\n" +
		"另一个段落。It mixes languages freely, 混合语言的内容。"
	assertBudgetAndLossless(t, s, text)
}
