package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentKeySep separates the line (or document) identifier from the source
// document id in a change order content key.
const ContentKeySep = "::"

// WholeDocument is the item identifier used when a whole document, rather
// than one of its lines, contributes to a change order.
const WholeDocument = "document"

// FormatContentKey returns a change order content key like "line-3::inv-42".
func FormatContentKey(itemKey, documentID string) string {
	return itemKey + ContentKeySep + documentID
}

// ParseContentKey splits "line-3::inv-42" into its item key and document id.
func ParseContentKey(key string) (itemKey, documentID string, err error) {
	i := strings.LastIndex(key, ContentKeySep)
	if i <= 0 || i+len(ContentKeySep) == len(key) {
		return "", "", fmt.Errorf("invalid content key: %q", key)
	}
	return key[:i], key[i+len(ContentKeySep):], nil
}

// DocumentOf returns the document id segment of a content key, or "" if the
// key is malformed.
func DocumentOf(key string) string {
	_, doc, err := ParseContentKey(key)
	if err != nil {
		return ""
	}
	return doc
}

// NewNodeID returns a fresh stable identifier for a cost-code node or change
// order.
func NewNodeID() string {
	return uuid.NewString()
}

// FormatPeriod returns a billing period label like "2025-03 (March)".
func FormatPeriod(t time.Time) string {
	return t.Format("2006-01 (January)")
}

// ParsePeriod parses a label produced by FormatPeriod back to the first day
// of that month.
func ParsePeriod(label string) (time.Time, error) {
	t, err := time.Parse("2006-01 (January)", label)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period label %q: %w", label, err)
	}
	return t, nil
}
