// Package extract holds the pure text-analysis rules for draw messages:
// confirmation markers, the #n sequence marker, and suit counting inside
// the first parenthesized group. No function here has side effects.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"tallybot/internal/counter"
)

// confirmationMarks must appear in a message for it to be counted at all.
var confirmationMarks = []string{"✅", "🔰"}

var (
	seqRe   = regexp.MustCompile(`#n(\d+)`)
	parenRe = regexp.MustCompile(`\(([^()]*)\)`)
)

// HasConfirmation reports whether the text carries one of the confirmation
// markers.
func HasConfirmation(text string) bool {
	for _, m := range confirmationMarks {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Sequence extracts the "#n<digits>" draw number, if present.
func Sequence(text string) (int64, bool) {
	m := seqRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Counts tallies suit symbols inside the FIRST parenthesized group only.
// Both ❤️ and ♥️ count as hearts. It returns (nil, false) when the text has
// no parentheses or the group contains no recognized suit.
func Counts(text string) (map[counter.Symbol]int, bool) {
	m := parenRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	content := m[1]

	found := map[counter.Symbol]int{}
	if n := strings.Count(content, "❤️") + strings.Count(content, "♥️"); n > 0 {
		found[counter.Hearts] = n
	}
	for _, s := range []counter.Symbol{counter.Diamonds, counter.Clubs, counter.Spades} {
		if n := strings.Count(content, string(s)); n > 0 {
			found[s] = n
		}
	}
	if len(found) == 0 {
		return nil, false
	}
	return found, true
}
