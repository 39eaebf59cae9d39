package service

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// tokenSortRatio compares two addresses regardless of word order. Both sides
// are lowercased, stripped to letters and digits, and their tokens sorted
// before an edit-distance ratio in [0, 1] is taken.
func tokenSortRatio(a, b string) float64 {
	left, right := sortedTokens(a), sortedTokens(b)
	if left == "" && right == "" {
		return 1
	}
	if left == "" || right == "" {
		return 0
	}
	longest := len([]rune(left))
	if n := len([]rune(right)); n > longest {
		longest = n
	}
	distance := levenshtein.ComputeDistance(left, right)
	return 1 - float64(distance)/float64(longest)
}

func sortedTokens(s string) string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
