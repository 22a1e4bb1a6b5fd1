// Package dates normalizes the date strings found in pathway data and clinic letters.
package dates

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISO is the canonical layout for stored dates.
const ISO = "2006-01-02"

// Display is the layout used in validation comments.
const Display = "02/01/2006"

// ParseError reports a value that is not a recognised calendar date.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return "date: empty input"
	}
	return fmt.Sprintf("date: cannot parse %q: %s", e.Input, e.Reason)
}

var (
	dayFirst  = regexp.MustCompile(`^(\d{1,2})([/.-])(\d{1,2})([/.-])(\d{4})$`)
	yearFirst = regexp.MustCompile(`^(\d{4})([/-])(\d{1,2})([/-])(\d{1,2})$`)
)

// Parse accepts DD/MM/YYYY, DD-MM-YYYY, DD.MM.YYYY, YYYY-MM-DD and YYYY/MM/DD.
// The result is midnight UTC on that calendar day.
func Parse(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, &ParseError{}
	}
	var y, m, d string
	if g := dayFirst.FindStringSubmatch(s); g != nil {
		if g[2] != g[4] {
			return time.Time{}, &ParseError{Input: text, Reason: "mixed separators"}
		}
		d, m, y = g[1], g[3], g[5]
	} else if g := yearFirst.FindStringSubmatch(s); g != nil {
		if g[2] != g[4] {
			return time.Time{}, &ParseError{Input: text, Reason: "mixed separators"}
		}
		y, m, d = g[1], g[3], g[5]
	} else {
		return time.Time{}, &ParseError{Input: text, Reason: "unsupported layout"}
	}
	yi, _ := strconv.Atoi(y)
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	if mi < 1 || mi > 12 {
		return time.Time{}, &ParseError{Input: text, Reason: "month out of range"}
	}
	t := time.Date(yi, time.Month(mi), di, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead.
	if t.Day() != di || int(t.Month()) != mi {
		return time.Time{}, &ParseError{Input: text, Reason: "day out of range"}
	}
	return t, nil
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Format renders t in the comment layout, or "UNKNOWN" for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return "UNKNOWN"
	}
	return t.Format(Display)
}

// Date is a possibly-invalid date field. It keeps the text it was built from
// so a value that failed to parse stays visible instead of becoming null.
type Date struct {
	raw   string
	value time.Time
	ok    bool
}

// FromString parses s and keeps the raw text.
func FromString(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}
	t, err := Parse(s)
	if err != nil {
		return Date{raw: s}
	}
	return Date{raw: s, value: t, ok: true}
}

// Of wraps an already-known time.
func Of(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	d := Day(t)
	return Date{raw: d.Format(ISO), value: d, ok: true}
}

// MustParse is for tests and literals.
func MustParse(s string) Date {
	d := FromString(s)
	if !d.ok {
		panic(fmt.Sprintf("dates: invalid literal %q", s))
	}
	return d
}

// Time returns the parsed value and whether it is valid.
func (d Date) Time() (time.Time, bool) { return d.value, d.ok }

// Raw returns the text the date was built from.
func (d Date) Raw() string { return d.raw }

// IsZero reports whether no value was supplied at all.
func (d Date) IsZero() bool { return d.raw == "" && !d.ok }

// Valid reports whether the value parsed.
func (d Date) Valid() bool { return d.ok }

// Invalid reports a supplied value that failed to parse.
func (d Date) Invalid() bool { return d.raw != "" && !d.ok }

// Canonical reports whether the raw text is already in ISO layout.
func (d Date) Canonical() bool { return d.ok && d.raw == d.value.Format(ISO) }

// ISO returns the canonical text, or "" when invalid or absent.
func (d Date) ISO() string {
	if !d.ok {
		return ""
	}
	return d.value.Format(ISO)
}

func (d Date) String() string {
	if d.ok {
		return d.value.Format(ISO)
	}
	return d.raw
}

// MarshalJSON writes the raw text so a non-canonical or invalid value
// survives a storage round trip and is still reported on re-validation.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.raw)
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d = FromString(s)
	return nil
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.raw), nil }

func (d *Date) UnmarshalText(b []byte) error {
	*d = FromString(string(b))
	return nil
}
