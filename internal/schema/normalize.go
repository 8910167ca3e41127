package schema

import (
	"encoding/json"
	"strings"
	"time"
)

// canonicalLayout is the second-precision form the stores expect.
const canonicalLayout = "2006-01-02 15:04:05"

// primaryLayouts cover the timestamp encodings the upstream feeds are
// known to emit: trailing-Z UTC, explicit offset, naive (assumed UTC),
// and already-canonical forms, with and without fractional seconds.
var primaryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	canonicalLayout,
}

// fallbackLayouts are a second, more permissive pass tried only after
// every primary layout fails.
var fallbackLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05Z0700",
	"02 Jan 2006 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02",
}

// NormalizeTimestamp canonicalizes a textual timestamp to UTC second
// precision ("2006-01-02 15:04:05"). Unparseable input is returned
// unchanged: a bad timestamp must never abort the batch it rides in.
func NormalizeTimestamp(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}

	for _, layout := range primaryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(canonicalLayout)
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(canonicalLayout)
		}
	}

	return raw
}

// NormalizeTimeValue canonicalizes a payload time value. Strings go
// through NormalizeTimestamp; numeric epochs (seconds or milliseconds)
// are rendered in the canonical form. Anything else passes through.
func NormalizeTimeValue(v any) any {
	switch tv := v.(type) {
	case string:
		return NormalizeTimestamp(tv)
	case float64:
		return epochToTime(int64(tv)).UTC().Format(canonicalLayout)
	case int:
		return epochToTime(int64(tv)).UTC().Format(canonicalLayout)
	case int64:
		return epochToTime(tv).UTC().Format(canonicalLayout)
	case json.Number:
		if n, err := tv.Int64(); err == nil {
			return epochToTime(n).UTC().Format(canonicalLayout)
		}
		if f, err := tv.Float64(); err == nil {
			return epochToTime(int64(f)).UTC().Format(canonicalLayout)
		}
	}
	return v
}

// epochToTime reads a numeric epoch as milliseconds when it is too
// large to be seconds.
func epochToTime(n int64) time.Time {
	if n >= 100_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// IsTimeLikeField reports whether a payload field name should pass
// through timestamp normalization.
func IsTimeLikeField(name string) bool {
	if name == "timestamp" {
		return true
	}
	return strings.HasSuffix(name, "_time") ||
		strings.HasSuffix(name, "_at") ||
		strings.HasSuffix(name, "_ts") ||
		strings.HasSuffix(name, "time")
}
