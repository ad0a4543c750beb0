package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is fixed width so that lexical order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp is a UTC instant truncated to microseconds. Every store keeps
// microseconds losslessly, so a marker survives a round trip unchanged.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return NewTimestamp(t), nil
}

// Next returns the marker for a write happening at now that replaces a record
// stamped prev. The result is strictly after prev even if the clock did not
// advance.
func Next(prev Timestamp, now time.Time) Timestamp {
	ts := NewTimestamp(now)
	if !ts.After(prev) {
		ts = Timestamp{Time: prev.Add(time.Microsecond)}
	}
	return ts
}

func (t Timestamp) After(u Timestamp) bool {
	return t.Time.After(u.Time)
}

func (t Timestamp) Equal(u Timestamp) bool {
	return t.Time.Equal(u.Time)
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
