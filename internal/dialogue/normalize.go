// ABOUTME: Input normalization used to match typed text against button labels
// ABOUTME: Also holds the phone number check and the menu command set

package dialogue

import (
	"strings"
	"unicode"
)

const (
	variationSelector = '\uFE0F'
	zeroWidthJoiner   = '\u200D'
)

// stripDecor drops "other symbol" runes (emoji, dingbats), variation
// selectors and zero-width joiners, then collapses whitespace.
func stripDecor(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == variationSelector || r == zeroWidthJoiner || unicode.Is(unicode.So, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Normalize returns the comparison form of user input: trimmed, lower-cased,
// with decorative symbols removed and whitespace collapsed.
func Normalize(s string) string {
	return stripDecor(strings.ToLower(strings.TrimSpace(s)))
}

// CleanLabel removes decorative symbols from a button label but keeps case.
func CleanLabel(s string) string {
	return stripDecor(strings.TrimSpace(s))
}

// Phone digit bounds, inclusive.
const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// ExtractPhone accepts text holding 10 to 15 digits once every non-digit is
// ignored. The trimmed original text is returned so formatting is preserved.
func ExtractPhone(text string) (string, bool) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return "", false
	}
	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", false
	}
	return raw, true
}

var menuCommands = map[string]bool{
	"/start":       true,
	"меню":         true,
	"главное меню": true,
	"в меню":       true,
}

// IsMenuCommand reports whether normalized input asks for the main menu.
func IsMenuCommand(normalized string) bool {
	return menuCommands[normalized]
}
