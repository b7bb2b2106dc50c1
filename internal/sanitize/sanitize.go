// Package sanitize masks sensitive substrings out of compiler and
// build-tool output before it is returned to a caller (§4.H security,
// §8 property 9).
package sanitize

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rules runs in order; pre-compiled once at package init since every
// build/typecheck invocation applies the same substitutions.
//
// The path rule needs a trailing delimiter (whitespace, end-of-string,
// or colon) to avoid swallowing the next token, but RE2 (unlike the
// backtracking engine this is ported from) has no lookahead; the
// delimiter is captured instead and replayed in the replacement.
var rules = []rule{
	{regexp.MustCompile(`(/[\w\-._/]+?)(\s|$|:)`), "<path>$2"},
	{regexp.MustCompile(`\b[A-Z_]+=[\w\-._/]+`), "<env_var>"},
	{regexp.MustCompile(`\b(?:sk|pk|api_key|token|secret)[-_]?[a-zA-Z0-9]{10,}\b`), "<token>"},
	{regexp.MustCompile(`\b[a-zA-Z0-9]{20,}\b`), "<token>"},
	{regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`), "<ip>"},
	{regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), "<uuid>"},
}

// Output replaces absolute paths, environment-variable assignments,
// long alphanumeric tokens, API-key-like prefixes, IPv4 addresses, and
// UUIDs in s with fixed placeholders.
func Output(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}
