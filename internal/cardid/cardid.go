// Package cardid generates, validates and orders spreadsheet-style record
// identifiers ("A", "B", … "Z", "AA") and their numeric sub-identifiers.
//
// Two failure policies coexist. Normalizing functions (NextCardID,
// NormalizeCardID, NextOptionID, BuildFullID) are used when constructing new
// data and return an error wrapping apperr.ErrInvalidID on malformed input.
// Parsing functions (ParseFullID) are used on stored data and return a
// tagged invalid result instead.
package cardid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
)

var (
	cardIDRe   = regexp.MustCompile(`^[A-Z]+$`)
	optionIDRe = regexp.MustCompile(`^\d+$`)
	fullIDRe   = regexp.MustCompile(`^([A-Z]+)(\d+)$`)
)

// IsValidCardID reports whether s is a non-empty run of A-Z.
func IsValidCardID(s string) bool {
	return cardIDRe.MatchString(s)
}

// CompareCardIDs orders ids by length first, then lexicographically, so Z < AA.
func CompareCardIDs(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// NormalizeCardID trims and upper-cases s and validates the result.
func NormalizeCardID(s string) (string, error) {
	n := strings.ToUpper(strings.TrimSpace(s))
	if !IsValidCardID(n) {
		return "", fmt.Errorf("cardid: %q: %w", s, apperr.ErrInvalidID)
	}
	return n, nil
}

// MaxCardID returns the greatest id in used under CompareCardIDs.
// The second result is false when used is empty.
func MaxCardID(used []string) (string, bool) {
	var top string
	for _, id := range used {
		if top == "" || CompareCardIDs(id, top) > 0 {
			top = id
		}
	}
	return top, top != ""
}

// NextCardID returns the immediate successor of the greatest id in used,
// or "A" when used is empty. Every entry must be a valid card id.
func NextCardID(used []string) (string, error) {
	for _, id := range used {
		if !IsValidCardID(id) {
			return "", fmt.Errorf("cardid: used id %q: %w", id, apperr.ErrInvalidID)
		}
	}
	top, ok := MaxCardID(used)
	if !ok {
		return "A", nil
	}
	return Successor(top), nil
}

// Successor increments id as a base-26 odometer over A..Z. When every
// position overflows a new leading A is prepended (Z→AA, ZZ→AAA).
// id must be a valid card id.
func Successor(id string) string {
	b := []byte(id)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 'Z' {
			b[i]++
			return string(b)
		}
		b[i] = 'A'
	}
	return "A" + string(b)
}
