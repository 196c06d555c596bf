// Package aligner turns each segment's transcript into timed subtitles: it
// splits the transcript into phrases, obtains per-word timings from a forced
// aligner, and maps phrases onto contiguous word spans.
package aligner

import (
	"context"
	"strings"

	"github.com/Kira7dn/video-create/internal/agent"
	"github.com/Kira7dn/video-create/internal/logger"
)

// Phrase constraints.
const (
	MinPhraseWords = 2
	MaxPhraseWords = 7
	MaxPhraseChars = 35
)

// conjunctions are secondary break points for the deterministic splitter.
var conjunctions = map[string]bool{
	"and": true, "or": true, "but": true, "so": true, "because": true,
	"when": true, "if": true, "while": true, "although": true,
}

// SplitPhrases breaks content into subtitle phrases, preferring the agent and
// falling back to the deterministic splitter. The result always covers the
// whole content; the last resort is a single phrase holding all of it.
func SplitPhrases(ctx context.Context, ag *agent.Agent, content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if ag.Enabled() {
		phrases, err := ag.SplitPhrases(ctx, content, MinPhraseWords, MaxPhraseWords, MaxPhraseChars)
		if err == nil {
			if cleaned, ok := sanitize(phrases, content); ok {
				return cleaned
			}
			logger.Warn("agent phrases failed constraints, using deterministic split")
		} else {
			logger.AgentFallback("phrase_split", err)
		}
	}
	return deterministicSplit(content)
}

// sanitize enforces the phrase constraints on an agent result and verifies
// word coverage against the original content.
func sanitize(phrases []string, content string) ([]string, bool) {
	var out []string
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if fits(p) {
			out = append(out, p)
			continue
		}
		// Re-split an offending phrase rather than discarding its words.
		out = append(out, packWords(strings.Fields(p))...)
	}
	if !covers(out, content) {
		return nil, false
	}
	return out, true
}

// covers checks that the phrases contain every word of content in order.
func covers(phrases []string, content string) bool {
	var got []string
	for _, p := range phrases {
		got = append(got, strings.Fields(p)...)
	}
	want := strings.Fields(content)
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if normalizeToken(got[i]) != normalizeToken(want[i]) {
			return false
		}
	}
	return true
}

func fits(p string) bool {
	wc := len(strings.Fields(p))
	return wc >= MinPhraseWords && wc <= MaxPhraseWords && len(p) <= MaxPhraseChars
}

// deterministicSplit splits on sentence punctuation, commas, and
// conjunctions, then bin-packs each fragment's words into phrases within the
// constraints.
func deterministicSplit(content string) []string {
	var phrases []string
	for _, fragment := range fragments(content) {
		phrases = append(phrases, packWords(fragment)...)
	}
	phrases = mergeShort(phrases)
	if len(phrases) == 0 {
		return []string{content}
	}
	return phrases
}

// fragments cuts content into word runs at break points.
func fragments(content string) [][]string {
	var frags [][]string
	var current []string
	flush := func() {
		if len(current) > 0 {
			frags = append(frags, current)
			current = nil
		}
	}
	for _, w := range strings.Fields(content) {
		trimmed := strings.TrimRight(w, `"')`)
		if strings.ContainsAny(trimmed, ".!?") {
			current = append(current, w)
			flush()
			continue
		}
		if strings.HasSuffix(trimmed, ",") {
			current = append(current, w)
			flush()
			continue
		}
		if conjunctions[strings.ToLower(normalizeToken(w))] && len(current) > 0 {
			flush()
		}
		current = append(current, w)
	}
	flush()
	return frags
}

// packWords greedily fills phrases up to the word and character limits.
func packWords(words []string) []string {
	var phrases []string
	var cur []string
	curLen := 0
	flush := func() {
		if len(cur) > 0 {
			phrases = append(phrases, strings.Join(cur, " "))
			cur = nil
			curLen = 0
		}
	}
	for _, w := range words {
		next := curLen + len(w)
		if len(cur) > 0 {
			next++ // joining space
		}
		if len(cur) >= MaxPhraseWords || (next > MaxPhraseChars && len(cur) > 0) {
			flush()
			next = len(w)
		}
		cur = append(cur, w)
		curLen = next
	}
	flush()
	return phrases
}

// mergeShort joins single-word phrases into a neighbor when the result still
// fits, so the minimum word count holds wherever possible.
func mergeShort(phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if len(out) > 0 && len(strings.Fields(p)) < MinPhraseWords {
			merged := out[len(out)-1] + " " + p
			if len(strings.Fields(merged)) <= MaxPhraseWords && len(merged) <= MaxPhraseChars {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// normalizeToken lowercases a word and strips surrounding punctuation for
// matching against aligner output.
func normalizeToken(w string) string {
	return strings.ToLower(strings.Trim(w, ".,!?;:\"'()[]{}"))
}
