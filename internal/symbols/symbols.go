package symbols

import (
	"regexp"
	"strings"
)

var (
	validPattern = regexp.MustCompile(`^[A-Z0-9&-]+$`)
	disallowed   = regexp.MustCompile(`[^A-Z0-9&-]`)

	exchangeSuffixes = []string{".NS", ".BO"}
)

// IsValid reports whether symbol is an exchange ticker such as RELIANCE, M&M or BAJAJ-AUTO
func IsValid(symbol string) bool {
	if len(symbol) < 2 || len(symbol) > 20 {
		return false
	}
	return validPattern.MatchString(symbol)
}

// Sanitize trims, uppercases, drops an exchange suffix (.NS, .BO) and strips disallowed characters.
// Returns "" when the result is not a valid symbol.
func Sanitize(symbol string) string {
	clean := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range exchangeSuffixes {
		clean = strings.TrimSuffix(clean, suffix)
	}
	clean = disallowed.ReplaceAllString(clean, "")
	if !IsValid(clean) {
		return ""
	}
	return clean
}

// Clean sanitizes every symbol and drops invalid entries and duplicates, keeping first-seen order
func Clean(symbols []string) (clean []string, rejected []string) {
	seen := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		sym := Sanitize(raw)
		if sym == "" {
			rejected = append(rejected, raw)
			continue
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		clean = append(clean, sym)
	}
	return clean, rejected
}

// tradable matches the equity list filter: alphanumeric once & and - are removed
func tradable(symbol string) bool {
	stripped := strings.NewReplacer("&", "", "-", "").Replace(symbol)
	if stripped == "" {
		return false
	}
	for _, c := range stripped {
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
