package domain

import "strings"

// NormalizeZip reduces a ZIP to its 5-digit form. ZIP+4 keeps the first five
// digits and short inputs, typically New England ZIPs that lost their leading
// zero in a spreadsheet, are left-padded. Input without digits yields "".
func NormalizeZip(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case len(digits) >= 5:
		return digits[:5]
	default:
		return strings.Repeat("0", 5-len(digits)) + digits
	}
}
