package config

import "strings"

// truthy is the single source of truth for boolean options.
var truthy = map[string]bool{
	"true": true,
	"1":    true,
	"yes":  true,
	"y":    true,
	"on":   true,
}

// ParseBool reports whether raw is one of the recognised truthy tokens.
// Matching is case-insensitive and ignores surrounding whitespace; any other
// value, including the empty string, is false.
func ParseBool(raw string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(raw))]
}

// BoolFrom reads a boolean option, returning def when the variable is absent.
func BoolFrom(lookup LookupFunc, name string, def bool) bool {
	raw, ok := lookup(name)
	if !ok {
		return def
	}
	return ParseBool(raw)
}
