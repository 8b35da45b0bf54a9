package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
)

func isEmptyLiteral(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("false"))
}

// Many2One is a legacy reference value, sent as [id, "display name"] or false.
type Many2One struct {
	ID   int
	Name string
}

func (m Many2One) IsSet() bool { return m.ID > 0 }

func (m *Many2One) UnmarshalJSON(b []byte) error {
	if isEmptyLiteral(b) {
		*m = Many2One{}
		return nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		// some reads answer a bare id
		var id int
		if err2 := json.Unmarshal(b, &id); err2 == nil {
			*m = Many2One{ID: id}
			return nil
		}
		return fmt.Errorf("many2one: %w", err)
	}
	if len(pair) == 0 {
		*m = Many2One{}
		return nil
	}
	var out Many2One
	if err := json.Unmarshal(pair[0], &out.ID); err != nil {
		return fmt.Errorf("many2one id: %w", err)
	}
	if len(pair) > 1 {
		_ = json.Unmarshal(pair[1], &out.Name)
	}
	*m = out
	return nil
}

func (m Many2One) MarshalJSON() ([]byte, error) {
	if !m.IsSet() {
		return []byte("false"), nil
	}
	return json.Marshal([]any{m.ID, m.Name})
}

// Date holds a legacy date or datetime, always in UTC. The zero value means unset.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if isEmptyLiteral(b) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("false"), nil
	}
	return json.Marshal(d.UTC().Format(DatetimeLayout))
}

// Day returns the calendar day of d at midnight UTC.
func (d Date) Day() time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	y, m, dd := d.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func (d Date) Ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{DatetimeLayout, DateLayout, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date: unrecognised value %q", s)
}

// FormatDate renders t the way legacy domains expect dates.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
