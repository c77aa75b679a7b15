package intermediate

import (
	"strings"
	"unicode"
)

// ExportedName converts a model name into an exported Go identifier.
// Separator characters split the name into pieces and each piece gets its
// first letter upper-cased; already-exported names pass through unchanged.
func ExportedName(name string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return out
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "V" + out
	}
	return out
}

// EnumConstName builds the generated constant name for one enum value,
// e.g. ("WidgetState", "in-progress") -> "WidgetStateInProgress".
func EnumConstName(shape, value string) string {
	return shape + ExportedName(strings.ToLower(value))
}

// PackageName derives the Go package name for a service: lower-cased with
// separators removed, e.g. "Elastic Widgets" -> "elasticwidgets".
func PackageName(serviceID string) string {
	var b strings.Builder
	for _, r := range serviceID {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
