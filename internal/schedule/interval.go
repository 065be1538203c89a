package schedule

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// NormalizeHHMM parses a clock time and returns it zero-padded ("7:5" ->
// "07:05"). ok is false for anything that is not a valid HH:MM.
func NormalizeHHMM(s string) (string, bool) {
	h, m, err := parseHHMM(s)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// InActiveWindow reports whether t falls inside the daily [start, end) hour
// window. start > end wraps past midnight; start == end is always open.
func InActiveWindow(t time.Time, startHour, endHour int) bool {
	h := t.Hour()
	switch {
	case startHour == endHour:
		return true
	case startHour < endHour:
		return h >= startHour && h < endHour
	default:
		return h >= startHour || h < endHour
	}
}

// NextWindowStart returns the next occurrence of startHour:00 strictly
// after now (today if still ahead, otherwise tomorrow). No jitter is
// applied to window-start boundaries.
func NextWindowStart(now time.Time, startHour int) time.Time {
	c := time.Date(now.Year(), now.Month(), now.Day(), startHour, 0, 0, 0, now.Location())
	if !c.After(now) {
		c = c.AddDate(0, 0, 1)
	}
	return c
}

// NextRun computes the next due time for an interval- or cron-cadence
// schedule.
//
// Interval cadence: now + intervalHours +/- jitter, pinned to the next
// active-window start when now (or the jittered target) falls outside the
// window. Cron cadence ignores active hours; the expression is explicit
// operator intent.
func NextRun(now time.Time, eff Effective, rng *rand.Rand) time.Time {
	if eff.Cadence == CadenceCron && eff.Cron != nil {
		return eff.Cron.Next(now)
	}

	if !InActiveWindow(now, eff.StartHour, eff.EndHour) {
		return NextWindowStart(now, eff.StartHour)
	}

	d := time.Duration(eff.IntervalHours) * time.Hour
	if eff.JitterMinutes > 0 && rng != nil {
		j := rng.Intn(2*eff.JitterMinutes+1) - eff.JitterMinutes
		d += time.Duration(j) * time.Minute
	}
	t := now.Add(d)
	if !InActiveWindow(t, eff.StartHour, eff.EndHour) {
		t = NextWindowStart(t, eff.StartHour)
	}
	return t
}

// FixedDue reports whether a fixed-cadence schedule is due at now, and the
// minute key identifying this trigger. Callers must compare the key against
// the last fired key so ticks sampling the same minute fire once.
func FixedDue(now time.Time, eff Effective) (key string, due bool) {
	hm := now.Format("15:04")
	for _, ft := range eff.FixedTimes {
		if ft == hm {
			return now.Format("2006-01-02 15:04"), true
		}
	}
	return "", false
}
