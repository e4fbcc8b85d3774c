// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package match

import (
	"fmt"
	"regexp"
	"strings"
)

// Glob returns a rule for a topic glob. The pattern must match the
// whole topic.
//
//	*      zero or more characters other than '/'
//	**     zero or more characters including '/'
//	?      exactly one character
//	[...]  one character from the set; ranges use '-'
//	[!...] one character not in the set ('^' also negates)
//	\c     the literal character c
//
// The literal portion before the first wildcard becomes the
// subscription prefix. The Result value is the slice of strings
// captured by each wildcard in order.
func Glob(pattern string) (Rule, error) {
	prefix, rest := splitGlob(pattern)
	translated, err := translateGlob(rest)
	if err != nil {
		return Rule{}, fmt.Errorf("match: glob %q: %w", pattern, err)
	}
	expression, err := regexp.Compile(`^` + translated + `$`)
	if err != nil {
		return Rule{}, fmt.Errorf("match: compiling glob %q: %w", pattern, err)
	}
	return Rule{
		Prefix: prefix,
		Predicate: func(topic, prefix string) Result {
			submatches := expression.FindStringSubmatch(topic[len(prefix):])
			if submatches == nil {
				return NoMatch
			}
			return Match(submatches[1:])
		},
	}, nil
}

// MustGlob is like Glob but panics on an invalid pattern.
func MustGlob(pattern string) Rule {
	rule, err := Glob(pattern)
	if err != nil {
		panic(err)
	}
	return rule
}

func splitGlob(pattern string) (prefix, rest string) {
	var literal strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch character := pattern[i]; character {
		case '\\':
			if i+1 < len(pattern) {
				i++
				literal.WriteByte(pattern[i])
			}
		case '*', '?', '[':
			return literal.String(), pattern[i:]
		default:
			literal.WriteByte(character)
		}
	}
	return literal.String(), ""
}

func translateGlob(pattern string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(pattern); i++ {
		character := pattern[i]
		switch character {
		case '\\':
			if i+1 < len(pattern) {
				i++
				out.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
			}
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				out.WriteString(`(.*)`)
				i++
			} else {
				out.WriteString(`([^/]*)`)
			}
		case '?':
			out.WriteString(`(.)`)
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				return "", fmt.Errorf("unterminated character class at offset %d", i)
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			out.WriteString(`([` + class + `])`)
			i += end + 1
		default:
			out.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}
	return out.String(), nil
}
