// Package storekey encodes and decodes the four-segment storage keys
// (prefix:version:type:identifier) under which records are persisted, and
// the parallel meta keys (prefix:version:@meta:name) for non-record data.
//
// Each segment is percent-encoded on its own before joining, so a colon
// never appears inside a segment. Build functions return errors; parse
// functions never fail and report validity through a flag.
package storekey

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardid"
)

const (
	// DefaultPrefix is the namespace used when a Codec or Spec carries none.
	DefaultPrefix = "cardsync"

	// Placeholder is the identifier meaning "no specific record".
	Placeholder = "_"

	// MetaTag is the literal third segment of every meta key.
	MetaTag = "@meta"

	separator = ":"
	segments  = 4
)

// Canonical record types.
const (
	TypeQuestionBank = "questionBank"
	TypeEnvFull      = "envFull"
)

var typeAliases = map[string]string{
	"questionbank":  TypeQuestionBank,
	"question_bank": TypeQuestionBank,
	"question-bank": TypeQuestionBank,
	"qb":            TypeQuestionBank,
	"bank":          TypeQuestionBank,
	"envfull":       TypeEnvFull,
	"env_full":      TypeEnvFull,
	"env-full":      TypeEnvFull,
	"env":           TypeEnvFull,
	"full":          TypeEnvFull,
}

// NormalizeType maps an alias to its canonical type. Canonical values and
// unknown strings are returned unchanged.
func NormalizeType(t string) string {
	if t == TypeQuestionBank || t == TypeEnvFull {
		return t
	}
	if canon, ok := typeAliases[strings.ToLower(strings.TrimSpace(t))]; ok {
		return canon
	}
	return t
}

// IsValidType reports whether t is one of the two canonical types.
func IsValidType(t string) bool {
	return t == TypeQuestionBank || t == TypeEnvFull
}

// IdentifierKind classifies the fourth segment of a record key.
type IdentifierKind string

const (
	KindCard        IdentifierKind = "card"
	KindFull        IdentifierKind = "full"
	KindPlaceholder IdentifierKind = "placeholder"
	KindInvalid     IdentifierKind = "invalid"
)

// ClassifyIdentifier returns the kind of a decoded identifier.
func ClassifyIdentifier(id string) IdentifierKind {
	switch {
	case id == Placeholder:
		return KindPlaceholder
	case cardid.IsValidCardID(id):
		return KindCard
	case cardid.IsValidFullID(id):
		return KindFull
	default:
		return KindInvalid
	}
}

// Spec describes a record key to build. An empty Prefix uses DefaultPrefix.
type Spec struct {
	Prefix     string
	Version    string
	Type       string
	Identifier string
}

// Parsed is the result of ParseKey.
type Parsed struct {
	Valid      bool           `json:"valid"`
	Prefix     string         `json:"prefix"`
	Version    string         `json:"version"`
	Type       string         `json:"type"`
	Identifier string         `json:"identifier"`
	Kind       IdentifierKind `json:"identifierKind"`
}

// BuildKey validates spec and returns the encoded four-segment key.
func BuildKey(spec Spec) (string, error) {
	prefix := spec.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if spec.Version == "" {
		return "", fmt.Errorf("storekey: version is required: %w", apperr.ErrInvalidKey)
	}
	typ := NormalizeType(spec.Type)
	if !IsValidType(typ) {
		return "", fmt.Errorf("storekey: unknown type %q: %w", spec.Type, apperr.ErrInvalidKey)
	}
	if ClassifyIdentifier(spec.Identifier) == KindInvalid {
		return "", fmt.Errorf("storekey: identifier %q: %w", spec.Identifier, apperr.ErrInvalidID)
	}
	return join(prefix, spec.Version, typ, spec.Identifier), nil
}

// ParseKey decodes key. It never fails: malformed keys, undecodable
// segments, unknown types and bad identifiers all yield Valid=false with
// whatever fields could be recovered.
func ParseKey(key string) Parsed {
	parts, ok := split(key)
	if !ok {
		return Parsed{Kind: KindInvalid}
	}
	p := Parsed{
		Prefix:     parts[0],
		Version:    parts[1],
		Type:       parts[2],
		Identifier: parts[3],
		Kind:       ClassifyIdentifier(parts[3]),
	}
	p.Valid = p.Prefix != "" && p.Version != "" && IsValidType(p.Type) && p.Kind != KindInvalid
	return p
}

// BuildMetaKey returns prefix:version:@meta:name. An empty prefix uses
// DefaultPrefix. Type and identifier validation do not apply.
func BuildMetaKey(prefix, version, name string) (string, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if version == "" {
		return "", fmt.Errorf("storekey: version is required: %w", apperr.ErrInvalidKey)
	}
	if name == "" {
		return "", fmt.Errorf("storekey: meta name is required: %w", apperr.ErrInvalidKey)
	}
	return join(prefix, version, MetaTag, name), nil
}

// ParsedMeta is the result of ParseMetaKey.
type ParsedMeta struct {
	Valid   bool   `json:"valid"`
	Prefix  string `json:"prefix"`
	Version string `json:"version"`
	Name    string `json:"name"`
}

// ParseMetaKey decodes a meta key; Valid is false for anything else.
func ParseMetaKey(key string) ParsedMeta {
	parts, ok := split(key)
	if !ok || parts[2] != MetaTag {
		return ParsedMeta{}
	}
	return ParsedMeta{
		Valid:   parts[0] != "" && parts[1] != "" && parts[3] != "",
		Prefix:  parts[0],
		Version: parts[1],
		Name:    parts[3],
	}
}

func join(parts ...string) string {
	enc := make([]string, len(parts))
	for i, p := range parts {
		enc[i] = encodeSegment(p)
	}
	return strings.Join(enc, separator)
}

func split(key string) ([]string, bool) {
	raw := strings.Split(key, separator)
	if len(raw) != segments {
		return nil, false
	}
	out := make([]string, segments)
	for i, r := range raw {
		dec, err := url.PathUnescape(r)
		if err != nil {
			return nil, false
		}
		out[i] = dec
	}
	return out, true
}

// encodeSegment escapes like url.PathEscape and additionally escapes the
// separator, which PathEscape leaves alone.
func encodeSegment(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), separator, "%3A")
}
