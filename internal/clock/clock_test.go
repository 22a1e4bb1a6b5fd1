package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rttline/internal/dates"
	"rttline/internal/domain"
)

func day(s string) time.Time {
	t, err := dates.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func events(codes ...domain.Code) []domain.CodeEvent {
	out := make([]domain.CodeEvent, 0, len(codes))
	base := day("2025-01-01")
	for i, c := range codes {
		out = append(out, domain.CodeEvent{Date: dates.Of(base.AddDate(0, 0, 7*i)), Code: c})
	}
	return out
}

func TestBreachBoundaries(t *testing.T) {
	cases := map[int]domain.Breach{
		0:   domain.BreachNone,
		18:  domain.BreachNone,
		19:  domain.Breach18,
		25:  domain.Breach18,
		26:  domain.Breach26,
		51:  domain.Breach26,
		52:  domain.Breach52,
		104: domain.Breach52,
	}
	for weeks, want := range cases {
		assert.Equal(t, want, BreachFor(weeks), "weeks=%d", weeks)
	}
}

func TestElapsedWeeks(t *testing.T) {
	start := day("2025-01-01")
	assert.Equal(t, 0, ElapsedWeeks(start, start.AddDate(0, 0, 6), 0))
	assert.Equal(t, 1, ElapsedWeeks(start, start.AddDate(0, 0, 7), 0))
	assert.Equal(t, 8, ElapsedWeeks(start, start.AddDate(0, 0, 70), 2))
	assert.Equal(t, 0, ElapsedWeeks(start, start.AddDate(0, 0, 14), 5))
	assert.Equal(t, 0, ElapsedWeeks(start, start.AddDate(0, 0, -30), 0))
	assert.Equal(t, 8, ElapsedWeeks(start, day("2025-03-01"), -30))
}

func TestComputeEndToEnd(t *testing.T) {
	p := domain.PathwayRecord{
		PathwayNumber:  "P1",
		ClockStartDate: dates.MustParse("2025-01-01"),
		Events:         events(10),
	}
	out, err := Compute(p, day("2025-08-01"))
	require.NoError(t, err)
	assert.Equal(t, 30, out.ElapsedWeeks)
	assert.Equal(t, domain.Breach26, out.Breach)
	assert.Equal(t, domain.ClockActive, out.Status)
	assert.Empty(t, out.SequenceErrors)
}

func TestComputeUsesStopDate(t *testing.T) {
	p := domain.PathwayRecord{
		PathwayNumber:  "P2",
		ClockStartDate: dates.MustParse("01/01/2025"),
		ClockStopDate:  dates.MustParse("01/03/2025"),
		Events:         events(10, 30),
	}
	out, err := Compute(p, day("2026-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 8, out.ElapsedWeeks)
	assert.Equal(t, domain.ClockStopped, out.Status)
	assert.Equal(t, domain.CodeFirstTreatment, out.CurrentCode)
}

func TestComputeRequiresStart(t *testing.T) {
	_, err := Compute(domain.PathwayRecord{PathwayNumber: "P3", ClockStartDate: dates.FromString("31/02/2025")}, day("2025-06-01"))
	assert.True(t, errors.Is(err, ErrNoClockStart))
}

func TestComputeIsIdempotent(t *testing.T) {
	p := domain.PathwayRecord{
		PathwayNumber:  "P4",
		ClockStartDate: dates.MustParse("2024-06-01"),
		Events:         events(10, 20, 11),
	}
	now := day("2025-06-01")
	a, errA := Compute(p, now)
	b, errB := Compute(p, now)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestSequence(t *testing.T) {
	t.Run("restart without pause", func(t *testing.T) {
		errs := Sequence(events(10, 20, 11))
		require.Len(t, errs, 1)
		assert.Equal(t, 2, errs[0].Index)
		assert.Equal(t, domain.CodeRestartAfterMonitoring, errs[0].Code)
	})
	t.Run("legal monitoring cycle", func(t *testing.T) {
		assert.Empty(t, Sequence(events(10, 32, 91, 11, 20, 30)))
	})
	t.Run("duplicate terminal", func(t *testing.T) {
		errs := Sequence(events(10, 30, 34))
		require.Len(t, errs, 1)
		assert.Equal(t, domain.CodeDecisionNotToTreat, errs[0].Code)
	})
	t.Run("91 without pause", func(t *testing.T) {
		errs := Sequence(events(10, 91))
		require.Len(t, errs, 1)
		assert.Equal(t, domain.CodeSubsequentActivity, errs[0].SuggestedCode)
	})
	t.Run("20 after treatment", func(t *testing.T) {
		errs := Sequence(events(10, 30, 20))
		require.Len(t, errs, 1)
		assert.Equal(t, domain.CodeAfterTreatment, errs[0].SuggestedCode)
	})
	t.Run("decreasing dates", func(t *testing.T) {
		ev := []domain.CodeEvent{
			{Date: dates.MustParse("2025-03-01"), Code: 10},
			{Date: dates.MustParse("2025-02-01"), Code: 20},
		}
		errs := Sequence(ev)
		require.Len(t, errs, 1)
		assert.Equal(t, 1, errs[0].Index)
	})
}

func TestStatus(t *testing.T) {
	cases := []struct {
		name  string
		codes []domain.Code
		want  domain.ClockStatus
	}{
		{"started", []domain.Code{10}, domain.ClockActive},
		{"paused", []domain.Code{10, 32}, domain.ClockPaused},
		{"activity during pause", []domain.Code{10, 31, 91}, domain.ClockPaused},
		{"restarted", []domain.Code{10, 32, 11}, domain.ClockActive},
		{"stopped", []domain.Code{10, 30}, domain.ClockStopped},
		{"after treatment", []domain.Code{10, 30, 90}, domain.ClockStopped},
		{"dna keeps running", []domain.Code{10, 33}, domain.ClockActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(domain.PathwayRecord{Events: events(tc.codes...)}))
		})
	}
	assert.Equal(t, domain.ClockIncomplete, Status(domain.PathwayRecord{}))
}
