// Package address cleans free-text US delivery addresses and pulls out the
// ZIP, state and city components used to steer geocoding.
package address

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalized is the result of Normalize. Empty strings mean the component
// could not be found.
type Normalized struct {
	Cleaned string `json:"cleaned"`
	Zip     string `json:"zip,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
}

var (
	locationTagPattern = regexp.MustCompile(`(?i)\bLOCATION-[A-Z0-9_-]*`)
	separatorPattern   = regexp.MustCompile(`[;|]+`)
	spacePattern       = regexp.MustCompile(`\s+`)
	commaPattern       = regexp.MustCompile(`\s*,[\s,]*`)
	zipPattern         = regexp.MustCompile(`\b(\d{5})(?:-?\d{4})?\b`)
)

var countryNames = map[string]struct{}{
	"US":                       {},
	"USA":                      {},
	"U.S.A.":                   {},
	"UNITED STATES":            {},
	"UNITED STATES OF AMERICA": {},
}

// Normalize never fails; unparseable input yields empty components.
func Normalize(raw string) Normalized {
	cleaned := Clean(raw)
	if cleaned == "" {
		return Normalized{}
	}

	out := Normalized{Cleaned: cleaned}
	out.Zip = extractZip(cleaned)

	segments := strings.Split(cleaned, ", ")
	state, segIdx, tokIdx := findState(segments, out.Zip)
	out.State = state
	if state != "" {
		out.City = cityBeforeState(segments, segIdx, tokIdx)
	} else {
		out.City = trailingCity(segments)
	}
	return out
}

// Clean strips location tags and collapses punctuation and whitespace.
func Clean(raw string) string {
	s := locationTagPattern.ReplaceAllString(raw, " ")
	s = separatorPattern.ReplaceAllString(s, ",")
	s = spacePattern.ReplaceAllString(s, " ")
	s = commaPattern.ReplaceAllString(s, ", ")
	return strings.Trim(s, " ,;-")
}

// extractZip returns the 5-digit form of the last ZIP that closes a segment.
// Numbers followed by more text are house numbers, not ZIPs.
func extractZip(cleaned string) string {
	matches := zipPattern.FindAllStringSubmatchIndex(cleaned, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if endsSegment(cleaned[m[1]:]) {
			return cleaned[m[2]:m[3]]
		}
	}
	return ""
}

func endsSegment(rest string) bool {
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.HasPrefix(rest, ",") {
		return true
	}
	return isCountry(rest)
}

func isCountry(s string) bool {
	_, ok := countryNames[strings.ToUpper(strings.Trim(s, " ,."))]
	return ok
}

func findState(segments []string, zip string) (string, int, int) {
	state, segIdx, tokIdx := "", -1, -1
	for si, seg := range segments {
		if si == 0 && len(segments) > 1 {
			continue
		}
		tokens := strings.Fields(seg)
		for ti, tok := range tokens {
			tok = strings.Trim(tok, ".")
			upper := strings.ToUpper(tok)
			if len(upper) != 2 || !IsState(upper) {
				continue
			}
			followedByZip := zip != "" && ti+1 < len(tokens) && strings.HasPrefix(tokens[ti+1], zip)
			if tok != upper && !followedByZip {
				continue
			}
			state, segIdx, tokIdx = upper, si, ti
		}
	}
	return state, segIdx, tokIdx
}

func cityBeforeState(segments []string, segIdx, tokIdx int) string {
	tokens := strings.Fields(segments[segIdx])
	if segIdx > 0 {
		if tokIdx > 0 {
			return withoutDigits(strings.Join(tokens[:tokIdx], " "))
		}
		return withoutDigits(segments[segIdx-1])
	}
	if tokIdx > 0 {
		return withoutDigits(tokens[tokIdx-1])
	}
	return ""
}

func trailingCity(segments []string) string {
	if len(segments) < 2 {
		return ""
	}
	for i := len(segments) - 1; i > 0; i-- {
		seg := segments[i]
		if isCountry(seg) {
			continue
		}
		seg = strings.TrimSpace(zipPattern.ReplaceAllString(seg, ""))
		if seg == "" {
			// a bare ZIP segment; the city sits before it
			continue
		}
		return withoutDigits(seg)
	}
	return ""
}

func withoutDigits(s string) string {
	s = strings.TrimSpace(s)
	if strings.IndexFunc(s, unicode.IsDigit) >= 0 {
		return ""
	}
	return s
}
