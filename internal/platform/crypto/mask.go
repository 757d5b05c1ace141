package crypto

import "strings"

const maskPrefix = "••••"

// Mask keeps the last visible characters of an account or tax identifier,
// e.g. "•••• 6789". Separators are ignored when counting.
func Mask(value string, visible int) string {
	var digits []rune
	for _, r := range value {
		if r == ' ' || r == '-' {
			continue
		}
		digits = append(digits, r)
	}
	if len(digits) == 0 {
		return ""
	}
	if visible <= 0 {
		return maskPrefix
	}
	if visible >= len(digits) {
		visible = len(digits) / 2
		if visible == 0 {
			return maskPrefix
		}
	}
	return maskPrefix + " " + strings.TrimSpace(string(digits[len(digits)-visible:]))
}
