// Package slugify normalizes free text into URL-safe identifiers.
package slugify

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ToSlug lower-cases text, strips every character outside [a-z0-9],
// whitespace and hyphen, collapses runs of whitespace and hyphens into a
// single hyphen, and trims leading and trailing hyphens.
//
// A title that normalizes to the empty string falls back to a generated
// "post-<id>" slug so every post still gets a usable public name.
func ToSlug(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastHyphen := true // swallow leading separators
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == '-', r == ' ', r == '\t', r == '\n', r == '\r':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "post-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return slug
}

// EnsureUnique appends -1, -2, ... to base until exists reports the candidate
// free. Callers must hold whatever lock guards the uniqueness domain, so two
// concurrent creations cannot both observe the same counter value.
func EnsureUnique(base string, exists func(string) bool) string {
	if !exists(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if !exists(candidate) {
			return candidate
		}
	}
}
