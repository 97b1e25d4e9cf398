package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30s":   30 * time.Second,
		"5min":  5 * time.Minute,
		"2h":    2 * time.Hour,
		"1m":    time.Minute,
		"10sec": 10 * time.Second,
		" 3hr ": 3 * time.Hour,
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			d, err := ParseDuration(raw)
			require.NoError(t, err)
			assert.Equal(t, want, d)
		})
	}

	for _, raw := range []string{"", "5", "min", "0s", "-5m", "5 minutes", "1.5h"} {
		t.Run("invalid "+raw, func(t *testing.T) {
			_, err := ParseDuration(raw)
			assert.Error(t, err)
		})
	}
}

func TestParseSchedule(t *testing.T) {
	now := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)

	t.Run("tomorrow", func(t *testing.T) {
		got, err := ParseSchedule("tomorrow", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("tomorrow with time", func(t *testing.T) {
		got, err := ParseSchedule("tomorrow 08:30", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC), got)
	})

	t.Run("absolute", func(t *testing.T) {
		got, err := ParseSchedule("2026-12-24 18:00", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC), got)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "yesterday", "tomorrow 25:00", "tomorrow 8", "2026-13-01 00:00", "next week"} {
			_, err := ParseSchedule(raw, now)
			assert.Error(t, err, "expected error for %q", raw)
		}
	})
}

func TestFireAt(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	got, err := FireAt("5min", "", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), got)

	got, err = FireAt("", "tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)

	_, err = FireAt("5min", "tomorrow", now)
	assert.Error(t, err)

	_, err = FireAt("", "", now)
	assert.Error(t, err)
}
