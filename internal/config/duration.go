package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// lifetimeFactors maps duration units to seconds. Months and years are
// calendar approximations; cache lifetimes don't need better.
var lifetimeFactors = map[string]int64{
	"s":   1,
	"min": 60,
	"h":   60 * 60,
	"d":   24 * 60 * 60,
	"w":   7 * 24 * 60 * 60,
	"mo":  30 * 24 * 60 * 60,
	"y":   365 * 24 * 60 * 60,
}

// ParseLifetime parses a cache lifetime like "2d 12h" or "30min": pairs
// of a decimal count and a unit (s|min|h|d|w|mo|y), whitespace-separated,
// summed. A bare number counts as seconds; an empty string is zero.
func ParseLifetime(value string) (time.Duration, error) {
	tokens := tokenizeLifetime(value)
	if len(tokens) == 0 {
		return 0, nil
	}

	var (
		seconds int64
		num     int64 = -1
	)
	for _, token := range tokens {
		if num < 0 {
			parsed, err := strconv.ParseInt(token, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid lifetime %q: expected digits, got %q", value, token)
			}
			num = parsed
			continue
		}
		factor, ok := lifetimeFactors[token]
		if !ok {
			return 0, fmt.Errorf("invalid lifetime %q: unknown unit %q", value, token)
		}
		seconds += num * factor
		num = -1
	}
	if num >= 0 {
		// a trailing bare number counts as seconds
		seconds += num
	}
	return time.Duration(seconds) * time.Second, nil
}

// tokenizeLifetime splits into alternating digit and unit runs,
// discarding whitespace.
func tokenizeLifetime(value string) []string {
	var (
		tokens []string
		last   rune
	)
	for _, c := range strings.ToLower(value) {
		var kind rune
		switch {
		case unicode.IsDigit(c):
			kind = 'd'
		case unicode.IsSpace(c):
			kind = ' '
		default:
			kind = 'u'
		}
		if kind != ' ' {
			if kind != last || last == ' ' || len(tokens) == 0 {
				tokens = append(tokens, "")
			}
			tokens[len(tokens)-1] += string(c)
		}
		last = kind
	}
	return tokens
}
