// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match reports whether a serialized key matches a glob pattern. '*' spans
// any run of characters (serialized keys never contain '/'), '?' one
// character, and [..] and {a,b} work as in doublestar.
func Match(pattern, key string) bool {
	ok, err := doublestar.Match(pattern, key)
	return err == nil && ok
}

// ValidatePattern rejects malformed glob patterns.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.New("empty pattern")
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid pattern %q", pattern)
	}
	return nil
}

// literalPrefix returns the part of pattern before the first metacharacter.
// Stores use it to narrow a scan before matching each candidate.
func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?[{\\"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// RenderPattern substitutes {name} placeholders in a strategy template.
// Values are escaped exactly like key components so they match literally.
// A placeholder with no value becomes '*', which widens the invalidation
// rather than silently skipping it.
func RenderPattern(template string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(template) + 16)
	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			b.WriteString(template)
			break
		}
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			b.WriteString(template)
			break
		}
		end += open
		name := template[open+1 : end]
		b.WriteString(template[:open])
		if !isPlaceholderName(name) {
			// Not a placeholder, keep glob alternation as written.
			b.WriteString(template[open : end+1])
		} else if v, ok := vars[name]; ok && v != "" {
			b.WriteString(escape(v))
		} else {
			b.WriteByte('*')
		}
		template = template[end+1:]
	}
	return b.String()
}

func isPlaceholderName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
