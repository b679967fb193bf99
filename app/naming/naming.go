// Package naming implements the reversible URL-slug transform used for
// organization identifiers.
package naming

import "strings"

var safeReplacer = strings.NewReplacer(" ", "-", "/", "-", "?", "-", "#", "-")

var rawReplacer = strings.NewReplacer("_", " ", "-", " ")

// Safe returns a URL-safe organization name with spaces and URL-hostile
// characters replaced by dashes.
func Safe(name string) string {
	return safeReplacer.Replace(name)
}

// Raw returns the original organization name with dashes replaced by spaces.
// Old-style underscores are also replaced.
func Raw(name string) string {
	return rawReplacer.Replace(name)
}

// IsSafe reports whether a name survives the slug round trip without
// informational loss. Names containing dashes, slashes or underscores do not.
func IsSafe(name string) bool {
	return Raw(Safe(name)) == name
}
