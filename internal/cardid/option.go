package cardid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
)

// IsValidOptionID reports whether s is a non-empty run of decimal digits.
func IsValidOptionID(s string) bool {
	return optionIDRe.MatchString(s)
}

// compareNumeric compares two digit strings by value without parsing them,
// so ids of any length order correctly.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// NextOptionID returns max(existing)+1 as a decimal string, or "1" when
// existing is empty.
func NextOptionID(existing []string) (string, error) {
	var highest uint64
	for _, id := range existing {
		if !IsValidOptionID(id) {
			return "", fmt.Errorf("cardid: option id %q: %w", id, apperr.ErrInvalidID)
		}
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return "", fmt.Errorf("cardid: option id %q out of range: %w", id, apperr.ErrInvalidID)
		}
		if n > highest {
			highest = n
		}
	}
	if highest == ^uint64(0) {
		return "", fmt.Errorf("cardid: option id space exhausted: %w", apperr.ErrInvalidID)
	}
	return strconv.FormatUint(highest+1, 10), nil
}

// FullID is a card id joined with an option id, e.g. "A6".
type FullID struct {
	CardID   string
	OptionID string
	Valid    bool
}

// String returns the concatenated form, or "" for an invalid id.
func (f FullID) String() string {
	if !f.Valid {
		return ""
	}
	return f.CardID + f.OptionID
}

// IsValidFullID reports whether s matches [A-Z]+\d+.
func IsValidFullID(s string) bool {
	return fullIDRe.MatchString(s)
}

// BuildFullID concatenates a card id and an option id.
func BuildFullID(cardID, optionID string) (string, error) {
	if !IsValidCardID(cardID) {
		return "", fmt.Errorf("cardid: card id %q: %w", cardID, apperr.ErrInvalidID)
	}
	if !IsValidOptionID(optionID) {
		return "", fmt.Errorf("cardid: option id %q: %w", optionID, apperr.ErrInvalidID)
	}
	return cardID + optionID, nil
}

// ParseFullID splits s into its card and option parts. It never fails;
// malformed input yields a FullID with Valid=false.
func ParseFullID(s string) FullID {
	m := fullIDRe.FindStringSubmatch(s)
	if m == nil {
		return FullID{}
	}
	return FullID{CardID: m[1], OptionID: m[2], Valid: true}
}

// CompareFullIDs orders full ids by card part, then by numeric option part
// (A2 < A10 < B1). Invalid ids sort after every valid id and among
// themselves lexicographically.
func CompareFullIDs(a, b string) int {
	pa, pb := ParseFullID(a), ParseFullID(b)
	switch {
	case !pa.Valid && !pb.Valid:
		return strings.Compare(a, b)
	case !pa.Valid:
		return 1
	case !pb.Valid:
		return -1
	}
	if c := CompareCardIDs(pa.CardID, pb.CardID); c != 0 {
		return c
	}
	return compareNumeric(pa.OptionID, pb.OptionID)
}
