package aligner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicSplitConstraints(t *testing.T) {
	content := "The quick brown fox jumps over the lazy dog, and then it runs away because it is scared. What a day!"
	phrases := deterministicSplit(content)
	require.NotEmpty(t, phrases)

	for _, p := range phrases {
		wc := len(strings.Fields(p))
		assert.LessOrEqual(t, wc, MaxPhraseWords, "phrase %q too many words", p)
		assert.LessOrEqual(t, len(p), MaxPhraseChars, "phrase %q too long", p)
	}
}

func TestDeterministicSplitCoversAllWords(t *testing.T) {
	content := "Alpha beta gamma, delta epsilon zeta. Eta theta iota kappa lambda mu nu xi omicron pi."
	phrases := deterministicSplit(content)

	var got []string
	for _, p := range phrases {
		got = append(got, strings.Fields(p)...)
	}
	assert.Equal(t, strings.Fields(content), got)
}

func TestDeterministicSplitBreaksOnConjunctions(t *testing.T) {
	phrases := deterministicSplit("we waited for hours because the train was late")
	require.GreaterOrEqual(t, len(phrases), 2)
	assert.True(t, strings.HasPrefix(phrases[1], "because") || containsPhraseStarting(phrases, "because"),
		"expected a phrase starting at the conjunction, got %v", phrases)
}

func containsPhraseStarting(phrases []string, prefix string) bool {
	for _, p := range phrases {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func TestPackWordsRespectsCharLimit(t *testing.T) {
	words := strings.Fields("supercalifragilistic expialidocious extraordinarily incomprehensible")
	phrases := packWords(words)
	for _, p := range phrases {
		if len(strings.Fields(p)) > 1 {
			assert.LessOrEqual(t, len(p), MaxPhraseChars)
		}
	}
}

func TestSplitPhrasesEmptyContent(t *testing.T) {
	assert.Nil(t, SplitPhrases(t.Context(), nil, "   "))
}

func TestSplitPhrasesNilAgentFallsBack(t *testing.T) {
	phrases := SplitPhrases(t.Context(), nil, "one two three four five six seven eight nine ten")
	require.NotEmpty(t, phrases)
	for _, p := range phrases {
		assert.LessOrEqual(t, len(strings.Fields(p)), MaxPhraseWords)
	}
}

func TestSanitizeRejectsDroppedWords(t *testing.T) {
	_, ok := sanitize([]string{"hello world"}, "hello world again")
	assert.False(t, ok)
}

func TestSanitizeResplitsOversizePhrase(t *testing.T) {
	content := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	out, ok := sanitize([]string{content}, content)
	require.True(t, ok)
	require.Greater(t, len(out), 1)
	for _, p := range out {
		assert.LessOrEqual(t, len(strings.Fields(p)), MaxPhraseWords)
	}
}

func TestMergeShortJoinsSingletons(t *testing.T) {
	out := mergeShort([]string{"hello there", "friend"})
	assert.Equal(t, []string{"hello there friend"}, out)
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "hello", normalizeToken("Hello,"))
	assert.Equal(t, "it's", normalizeToken("it's"))
	assert.Equal(t, "world", normalizeToken(`"World!"`))
}
