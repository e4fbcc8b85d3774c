// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package match

import (
	"fmt"
	"regexp"
	"strings"
)

// regexMeta are the characters that end the static prefix of a regular
// expression when they appear unescaped.
const regexMeta = `.^$*+?|{}[]()`

// Regex returns a rule for a regular expression matched against the
// start of the topic. The leading literal portion of pattern becomes
// the subscription prefix and the remainder is compiled (RE2 syntax)
// and anchored at the end of that prefix. The Result value is the
// submatch slice, whole match first.
func Regex(pattern string) (Rule, error) {
	prefix, rest := splitRegex(pattern)
	expression, err := regexp.Compile(`^(?:` + rest + `)`)
	if err != nil {
		return Rule{}, fmt.Errorf("match: compiling regex %q: %w", pattern, err)
	}
	return Rule{Prefix: prefix, Predicate: regexPredicate(expression)}, nil
}

// MustRegex is like Regex but panics on an invalid pattern. It is meant
// for declarative subscription tables built from literals.
func MustRegex(pattern string) Rule {
	rule, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return rule
}

func regexPredicate(expression *regexp.Regexp) Predicate {
	return func(topic, prefix string) Result {
		submatches := expression.FindStringSubmatch(topic[len(prefix):])
		if submatches == nil {
			return NoMatch
		}
		return Match(submatches)
	}
}

// splitRegex splits pattern at its first dynamic element. Escaped
// punctuation (`\.`) is literal and stays in the prefix; an escape
// introducing a class such as `\d` or `\b` ends it.
func splitRegex(pattern string) (prefix, rest string) {
	var literal strings.Builder
	for i := 0; i < len(pattern); i++ {
		character := pattern[i]
		switch {
		case character == '\\':
			if i+1 >= len(pattern) || !isEscapableLiteral(pattern[i+1]) {
				return literal.String(), pattern[i:]
			}
			literal.WriteByte(pattern[i+1])
			i++
		case strings.IndexByte(regexMeta, character) >= 0:
			return literal.String(), pattern[i:]
		default:
			literal.WriteByte(character)
		}
	}
	return literal.String(), ""
}

// isEscapableLiteral reports whether `\c` denotes the literal c.
func isEscapableLiteral(character byte) bool {
	return character == '\\' || character == '/' || character == '-' ||
		strings.IndexByte(regexMeta, character) >= 0
}
