package service

import (
	"strings"
	"unicode"

	"github.com/smallbiznis/routepay/internal/address"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
)

const (
	scoreZip     = 100
	scoreState   = 50
	scoreCity    = 40
	scorePrecise = 25
	scoreBrevity = 20
)

var preciseTypes = map[string]struct{}{
	"street_address": {},
	"premise":        {},
	"subpremise":     {},
}

// bestCandidate returns the index and score of the highest scoring
// candidate. Ties keep the earlier candidate.
func bestCandidate(candidates []geocodedomain.Candidate, n address.Normalized) (int, int) {
	shortest := 0
	for _, c := range candidates {
		l := len(c.FormattedAddress)
		if l > 0 && (shortest == 0 || l < shortest) {
			shortest = l
		}
	}

	best, bestScore := -1, 0
	for i, c := range candidates {
		score := scoreCandidate(c, n, shortest)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

func scoreCandidate(c geocodedomain.Candidate, n address.Normalized, shortest int) int {
	formatted := c.FormattedAddress
	upper := strings.ToUpper(formatted)

	score := 0
	if n.Zip != "" && strings.Contains(formatted, n.Zip) {
		score += scoreZip
	}
	if n.State != "" && containsWord(upper, strings.ToUpper(n.State)) {
		score += scoreState
	}
	if n.City != "" && containsWord(upper, strings.ToUpper(n.City)) {
		score += scoreCity
	}
	for _, t := range c.Types {
		if _, ok := preciseTypes[t]; ok {
			score += scorePrecise
			break
		}
	}
	if l := len(formatted); l > 0 && shortest > 0 {
		score += scoreBrevity * shortest / l
	}
	return score
}

// containsWord reports whether word occurs in s bounded by non-alphanumerics.
// Both arguments are expected in the same case.
func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for from := 0; from <= len(s)-len(word); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(s[i-1])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
