package dates

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayouts(t *testing.T) {
	want := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"07/03/2025", "07-03-2025", "2025-03-07", "2025/03/07", "07.03.2025", "7/3/2025", " 2025-03-07 "} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), "%s parsed as %s", in, got)
	}
}

func TestParseFailures(t *testing.T) {
	for _, in := range []string{"", "   ", "March 7th", "2025-13-01", "31/02/2025", "07/03-2025", "2025.03.07", "not a date"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		var pe *ParseError
		assert.True(t, errors.As(err, &pe), "%q should yield *ParseError", in)
	}
}

func TestDateKeepsInvalidRaw(t *testing.T) {
	d := FromString("32/01/2025")
	assert.True(t, d.Invalid())
	assert.False(t, d.Valid())
	assert.Equal(t, "32/01/2025", d.Raw())
	assert.Equal(t, "", d.ISO())

	empty := FromString("")
	assert.True(t, empty.IsZero())
	assert.False(t, empty.Invalid())
}

func TestDateCanonical(t *testing.T) {
	assert.True(t, FromString("2025-01-01").Canonical())
	assert.False(t, FromString("01/01/2025").Canonical())
	assert.Equal(t, "2025-01-01", FromString("01/01/2025").ISO())
}

func TestDateJSON(t *testing.T) {
	type wrap struct {
		D Date `json:"d"`
		E Date `json:"e"`
	}
	var w wrap
	require.NoError(t, json.Unmarshal([]byte(`{"d":"01/02/2025","e":null}`), &w))
	assert.Equal(t, "2025-02-01", w.D.ISO())
	assert.True(t, w.E.IsZero())

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"01/02/2025","e":null}`, string(out))
}

func TestDaysBetween(t *testing.T) {
	a := MustParse("2025-01-01")
	b := MustParse("2025-08-01")
	at, _ := a.Time()
	bt, _ := b.Time()
	assert.Equal(t, 212, DaysBetween(at, bt))
}
