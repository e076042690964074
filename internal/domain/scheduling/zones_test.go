package scheduling

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedWindowsNoZones(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	windows := AllowedWindows(now, time.UTC, nil, 7200)

	require.Len(t, windows, 1)
	assert.Equal(t, Window{Lo: 0, Hi: 7200}, windows[0])
}

func TestAllowedWindowsZeroHorizon(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Nil(t, AllowedWindows(now, time.UTC, nil, 0))
}

func TestAllowedWindowsComplementZone(t *testing.T) {
	// 23:00; nightly zone 00:00 for 8 h starts 3600 s out.
	now := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	zones := []ForbiddenZone{{StartHour: 0, DurationHours: 8}}
	horizon := int64(12 * 3600)

	windows := AllowedWindows(now, time.UTC, zones, horizon)

	want := []Window{
		{Lo: 0, Hi: 3600},
		{Lo: 3600 + 8*3600, Hi: horizon},
	}
	if diff := cmp.Diff(want, windows); diff != "" {
		t.Errorf("unexpected windows (-want, +got):\n%s", diff)
	}
}

func TestAllowedWindowsInsideZoneGetsGrace(t *testing.T) {
	// 02:00, inside the nightly 00:00+8h zone. The zone masks from 0 with
	// the grace extension; the allowed span starts where it ends.
	now := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	zones := []ForbiddenZone{{StartHour: 0, DurationHours: 8}}
	horizon := int64(24 * 3600)

	windows := AllowedWindows(now, time.UTC, zones, horizon)

	require.NotEmpty(t, windows)
	// 6 h left of the zone plus 60 s grace.
	assert.Equal(t, int64(6*3600+zoneGrace), windows[0].Lo)
}

// The allowed and forbidden spans must partition [0, horizon]: windows are
// sorted, non-overlapping, and their total length plus the projected zone
// time covers the horizon exactly.
func TestAllowedWindowsPartitionLaw(t *testing.T) {
	now := time.Date(2025, 6, 1, 17, 30, 0, 0, time.UTC)
	zones := []ForbiddenZone{
		{StartHour: 0, DurationHours: 8},
		{StartHour: 13, DurationHours: 1.5},
	}
	horizon := int64(3 * 24 * 3600)

	allowed := AllowedWindows(now, time.UTC, zones, horizon)
	forbidden := projectZones(now, time.UTC, zones, horizon)

	var total int64
	prevHi := int64(-1)
	for _, w := range allowed {
		assert.Less(t, w.Lo, w.Hi)
		assert.Greater(t, w.Lo, prevHi, "windows must be sorted and disjoint")
		prevHi = w.Hi
		total += w.Length()
	}
	for _, f := range forbidden {
		total += f.Length()
	}
	assert.Equal(t, horizon, total)
}

func TestAllowedWindowsZeroDurationZoneIgnored(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	zones := []ForbiddenZone{{StartHour: 13, DurationHours: 0}}

	windows := AllowedWindows(now, time.UTC, zones, 7200)

	require.Len(t, windows, 1)
	assert.Equal(t, Window{Lo: 0, Hi: 7200}, windows[0])
}

func TestWindowContains(t *testing.T) {
	w := Window{Lo: 100, Hi: 200}

	assert.True(t, w.Contains(100, 200))
	assert.True(t, w.Contains(120, 180))
	assert.False(t, w.Contains(90, 150))
	assert.False(t, w.Contains(150, 250))
}
