package aligner

import (
	"strings"

	"github.com/Kira7dn/video-create/internal/spec"
)

// DefaultMaxLookahead bounds the flexible-match search window in words.
const DefaultMaxLookahead = 30

// fallbackSecondsPerWord estimates speech pace for unmatched phrases.
const fallbackSecondsPerWord = 0.3

// MapPhrases maps each phrase onto a span of successfully aligned words and
// emits one subtitle per phrase. Matching works on lowercased,
// punctuation-stripped tokens over the success words only. Subtitles come out
// in phrase order; overlapping neighbors are repaired by clipping the earlier
// end to the later start.
func MapPhrases(phrases []string, words []Word, maxLookahead int) []spec.TextOver {
	if maxLookahead <= 0 {
		maxLookahead = DefaultMaxLookahead
	}
	success := make([]Word, 0, len(words))
	for _, w := range words {
		if w.Success() {
			success = append(success, w)
		}
	}
	tokens := make([]string, len(success))
	for i, w := range success {
		tokens[i] = normalizeToken(w.Word)
	}

	var subs []spec.TextOver
	cursor := 0
	prevEnd := 0.0
	for _, phrase := range phrases {
		ptokens := tokenize(phrase)
		if len(ptokens) == 0 {
			continue
		}

		if start, ok := exactMatch(tokens, ptokens, cursor); ok {
			span := success[start : start+len(ptokens)]
			subs = append(subs, spec.TextOver{
				Text:      phrase,
				StartTime: span[0].Start,
				Duration:  span[len(span)-1].End - span[0].Start,
			})
			cursor = start + len(ptokens)
			prevEnd = span[len(span)-1].End
			continue
		}

		if collected := flexibleMatch(tokens, ptokens, cursor, maxLookahead); len(collected) >= (len(ptokens)+1)/2 {
			minStart, maxEnd := success[collected[0]].Start, success[collected[0]].End
			for _, idx := range collected[1:] {
				if success[idx].Start < minStart {
					minStart = success[idx].Start
				}
				if success[idx].End > maxEnd {
					maxEnd = success[idx].End
				}
			}
			subs = append(subs, spec.TextOver{
				Text:      phrase,
				StartTime: minStart,
				Duration:  maxEnd - minStart,
			})
			cursor += len(collected) / 2
			if cursor > len(success) {
				cursor = len(success)
			}
			prevEnd = maxEnd
			continue
		}

		duration := fallbackSecondsPerWord * float64(len(ptokens))
		if duration < 1.0 {
			duration = 1.0
		}
		subs = append(subs, spec.TextOver{
			Text:       phrase,
			StartTime:  prevEnd,
			Duration:   duration,
			IsFallback: true,
		})
		prevEnd += duration
		cursor++ // avoid stalling on the same position
	}

	repairOverlaps(subs)
	return subs
}

func tokenize(phrase string) []string {
	fields := strings.Fields(phrase)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := normalizeToken(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// exactMatch finds a window of consecutive success-words equal to ptokens,
// searching forward from cursor.
func exactMatch(tokens, ptokens []string, cursor int) (int, bool) {
	for start := cursor; start+len(ptokens) <= len(tokens); start++ {
		match := true
		for i, pt := range ptokens {
			if tokens[start+i] != pt {
				match = false
				break
			}
		}
		if match {
			return start, true
		}
	}
	return 0, false
}

// flexibleMatch greedily collects word indexes within the lookahead window
// whose token appears in the phrase's multiset.
func flexibleMatch(tokens, ptokens []string, cursor, maxLookahead int) []int {
	remaining := make(map[string]int, len(ptokens))
	for _, pt := range ptokens {
		remaining[pt]++
	}
	limit := cursor + maxLookahead
	if limit > len(tokens) {
		limit = len(tokens)
	}
	var collected []int
	for i := cursor; i < limit; i++ {
		if remaining[tokens[i]] > 0 {
			remaining[tokens[i]]--
			collected = append(collected, i)
		}
	}
	return collected
}

// repairOverlaps clips each subtitle's end to its successor's start.
func repairOverlaps(subs []spec.TextOver) {
	for i := 0; i < len(subs)-1; i++ {
		if subs[i].End() > subs[i+1].StartTime {
			subs[i].Duration = subs[i+1].StartTime - subs[i].StartTime
			if subs[i].Duration < 0 {
				subs[i].Duration = 0
			}
		}
	}
}
