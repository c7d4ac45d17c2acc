package record

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// tsLayout renders UTC instants with an explicit +00:00 offset, the form
// used in every signed payload.
const tsLayout = "2006-01-02T15:04:05-07:00"

// FormatTimestamp renders t as RFC 3339 UTC with a numeric offset.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(tsLayout)
}

// ParseTimestamp accepts RFC 3339 with or without sub-seconds and
// normalizes to UTC. Signed payloads always carry the normalized form;
// tolerant parsing exists for records produced by older writers.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrSchema, s)
}

// NormalizeTimestamp re-renders any accepted timestamp form canonically.
func NormalizeTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(t), nil
}

// NormalizeLabel NFC-normalizes and trims a task or scope label so that
// visually identical labels canonicalize to identical bytes.
func NormalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
