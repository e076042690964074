package scheduling

import (
	"sort"
	"time"
)

// ForbiddenZone is a daily wall-clock window during which no task may start.
type ForbiddenZone struct {
	StartHour     float64
	DurationHours float64
}

// Window is a half-open span [Lo, Hi) in seconds relative to "now".
type Window struct {
	Lo int64
	Hi int64
}

// Length returns the span length in seconds.
func (w Window) Length() int64 {
	return w.Hi - w.Lo
}

// Contains reports whether the span [lo, hi] fits inside this window.
func (w Window) Contains(lo, hi int64) bool {
	return lo >= w.Lo && hi <= w.Hi
}

// zoneGrace extends a window the current instant already fell into, so a
// solve that runs right at the window edge does not emit a start the
// dispatcher can no longer honor.
const zoneGrace = 60

// AllowedWindows projects the daily forbidden zones onto the solver's
// [0, horizon] axis and returns the complementary allowed spans, sorted and
// non-overlapping. With no zones the whole horizon is one span.
//
// Zone copies are enumerated for days -2 through ceil(horizon/86400)+1 around
// now's day in the given location, so windows begun yesterday still mask the
// start of the axis.
func AllowedWindows(now time.Time, loc *time.Location, zones []ForbiddenZone, horizon int64) []Window {
	if horizon <= 0 {
		return nil
	}
	forbidden := projectZones(now, loc, zones, horizon)
	if len(forbidden) == 0 {
		return []Window{{Lo: 0, Hi: horizon}}
	}

	var allowed []Window
	cursor := int64(0)
	for _, f := range forbidden {
		if f.Lo > cursor {
			allowed = append(allowed, Window{Lo: cursor, Hi: f.Lo})
		}
		if f.Hi > cursor {
			cursor = f.Hi
		}
	}
	if cursor < horizon {
		allowed = append(allowed, Window{Lo: cursor, Hi: horizon})
	}
	return allowed
}

// projectZones returns the clipped, merged forbidden spans on [0, horizon].
func projectZones(now time.Time, loc *time.Location, zones []ForbiddenZone, horizon int64) []Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	lastDay := int(horizon/86400) + 1
	if horizon%86400 != 0 {
		lastDay++
	}

	var spans []Window
	for day := -2; day <= lastDay; day++ {
		dayStart := midnight.AddDate(0, 0, day)
		for _, z := range zones {
			if z.DurationHours <= 0 {
				continue
			}
			abs0 := dayStart.Add(time.Duration(z.StartHour * float64(time.Hour)))
			abs1 := abs0.Add(time.Duration(z.DurationHours * float64(time.Hour)))
			lo := int64(abs0.Sub(now).Seconds())
			hi := int64(abs1.Sub(now).Seconds())

			// A window we are currently inside keeps masking for a grace
			// period and loses its past portion.
			if lo < 0 && hi > 0 {
				lo = 0
				hi += zoneGrace
			}
			if hi <= 0 || lo >= horizon {
				continue
			}
			if lo < 0 {
				lo = 0
			}
			if hi > horizon {
				hi = horizon
			}
			spans = append(spans, Window{Lo: lo, Hi: hi})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Lo < spans[j].Lo })
	return mergeWindows(spans)
}

func mergeWindows(spans []Window) []Window {
	if len(spans) == 0 {
		return nil
	}
	merged := []Window{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Lo <= last.Hi {
			if s.Hi > last.Hi {
				last.Hi = s.Hi
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
