package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/cardsync/internal/fieldpath"
)

// Built-in transform names.
const (
	Identity   = "identity"
	Percentage = "percentage"
	Uppercase  = "uppercase"
	Lowercase  = "lowercase"
	Trim       = "trim"
	ISODate    = "isoDate"
	Difference = "difference"
)

// isoLayout matches the millisecond-precision UTC form used by stored records.
const isoLayout = "2006-01-02T15:04:05.000Z"

var firstOptionValue = fieldpath.MustParse("options.0.value")

func builtins() map[string]Func {
	return map[string]Func{
		Identity:   func(v any, _ Context) (any, error) { return v, nil },
		Percentage: percentage,
		Uppercase:  stringFunc(strings.ToUpper),
		Lowercase:  stringFunc(strings.ToLower),
		Trim:       stringFunc(strings.TrimSpace),
		ISODate:    isoDate,
		Difference: difference,
	}
}

func stringFunc(f func(string) string) Func {
	return func(v any, _ Context) (any, error) {
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

// percentage rescales a fraction to a percentage (0.25 → 25).
func percentage(v any, _ Context) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return formatNumber(f * 100), nil
}

// isoDate renders unix milliseconds or a parseable date string as ISO-8601 UTC.
func isoDate(v any, _ Context) (any, error) {
	switch typed := v.(type) {
	case time.Time:
		return typed.UTC().Format(isoLayout), nil
	case string:
		s := strings.TrimSpace(typed)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(isoLayout), nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC().Format(isoLayout), nil
		}
		return nil, fmt.Errorf("unparseable date %q", typed)
	default:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(int64(f)).UTC().Format(isoLayout), nil
	}
}

// difference subtracts the target's first option value from the source value.
// A target without options is treated as zero.
func difference(v any, tc Context) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	base := 0.0
	if raw, ok := fieldpath.Get(tc.Target, firstOptionValue); ok && raw != nil {
		if b, err := toFloat(raw); err == nil {
			base = b
		}
	}
	return formatNumber(f - base), nil
}

// formatNumber renders f the way stored option values are written: as a
// string without trailing zeros.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toString(v any) (string, error) {
	switch typed := v.(type) {
	case string:
		return typed, nil
	case nil:
		return "", fmt.Errorf("nil value")
	case fmt.Stringer:
		return typed.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func toFloat(v any) (float64, error) {
	switch typed := v.(type) {
	case int:
		return float64(typed), nil
	case int32:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case float32:
		return float64(typed), nil
	case float64:
		return typed, nil
	case json.Number:
		return typed.Float64()
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(typed), "%"))
		if s == "" {
			return 0, fmt.Errorf("empty string cannot convert to number")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q as number: %w", typed, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported number conversion from %T", v)
	}
}
