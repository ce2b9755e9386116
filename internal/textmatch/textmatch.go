// Package textmatch holds the string predicates used by the moderation rules.
// List-valued options are comma-separated; every element is trimmed before it
// is compared and empty elements never match.
package textmatch

import (
	"regexp"
	"strings"
)

// Split breaks a comma-separated list into trimmed, non-empty elements.
func Split(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasExact reports whether the trimmed text equals one element of list.
// Comparison is case-sensitive.
func HasExact(text, list string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, item := range Split(list) {
		if text == item {
			return true
		}
	}
	return false
}

// ContainsAny reports whether the trimmed text contains one element of list
// as a substring. Comparison is case-sensitive.
func ContainsAny(text, list string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, item := range Split(list) {
		if strings.Contains(text, item) {
			return true
		}
	}
	return false
}

// ContainsDomain reports whether any of texts contains one of the domains in
// list. Matching is a case-insensitive substring scan; URLs are not parsed,
// so "example.com/refer/" style entries work as configured.
func ContainsDomain(list string, texts ...string) bool {
	domains := Split(list)
	if len(domains) == 0 {
		return false
	}
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}
	for _, d := range domains {
		d = strings.ToLower(d)
		for _, t := range lowered {
			if strings.Contains(t, d) {
				return true
			}
		}
	}
	return false
}

// MatchRegex compiles pattern and tests it against input. A pattern that does
// not compile is returned as an error together with matched=false.
func MatchRegex(input, pattern string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(input), nil
}

// ValidKarma reports whether a karma threshold is usable: present and
// non-zero. Negative thresholds are allowed.
func ValidKarma(n float64, ok bool) bool {
	return ok && n != 0
}

// ValidAccountAge reports whether an account-age threshold is usable:
// present and strictly positive.
func ValidAccountAge(n float64, ok bool) bool {
	return ok && n > 0
}

// ValidMaxLength reports whether a maximum body length is usable: present and
// strictly positive.
func ValidMaxLength(n float64, ok bool) bool {
	return ok && n > 0
}
