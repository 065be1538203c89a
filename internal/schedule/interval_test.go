package schedule

import (
	"math/rand"
	"testing"
	"time"
)

func TestNormalizeHHMM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"07:30", "07:30", true},
		{"7:5", "07:05", true},
		{" 22:00 ", "22:00", true},
		{"0:0", "00:00", true},
		{"23:59", "23:59", true},
		{"24:00", "", false},
		{"12:60", "", false},
		{"12", "", false},
		{"12:30:15", "", false},
		{"", "", false},
		{"ab:cd", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeHHMM(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeHHMM(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInActiveWindow(t *testing.T) {
	t.Parallel()

	at := func(h int) time.Time {
		return time.Date(2026, 3, 10, h, 30, 0, 0, time.Local)
	}
	tests := []struct {
		name       string
		hour       int
		start, end int
		want       bool
	}{
		{"inside day window", 12, 7, 23, true},
		{"at start hour", 7, 7, 23, true},
		{"at end hour", 23, 7, 23, false},
		{"before window", 3, 7, 23, false},
		{"wraparound evening", 23, 22, 6, true},
		{"wraparound early morning", 2, 22, 6, true},
		{"wraparound closed midday", 12, 22, 6, false},
		{"equal hours always open", 3, 9, 9, true},
		{"full day", 0, 0, 24, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InActiveWindow(at(tt.hour), tt.start, tt.end); got != tt.want {
				t.Errorf("InActiveWindow(h=%d, %d..%d) = %v, want %v", tt.hour, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestNextWindowStart(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.Local)
	if got, want := NextWindowStart(now, 7), time.Date(2026, 3, 10, 7, 0, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("before boundary: got %s, want %s", got, want)
	}

	now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	if got, want := NextWindowStart(now, 7), time.Date(2026, 3, 11, 7, 0, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("after boundary: got %s, want %s", got, want)
	}

	// Exactly on the boundary: strictly after, so tomorrow.
	now = time.Date(2026, 3, 10, 7, 0, 0, 0, time.Local)
	if got, want := NextWindowStart(now, 7), time.Date(2026, 3, 11, 7, 0, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("on boundary: got %s, want %s", got, want)
	}
}

func TestNextRunOutsideWindowPinsToStart(t *testing.T) {
	t.Parallel()

	eff := Effective{
		StartHour: 7, EndHour: 23,
		IntervalHours: 4, JitterMinutes: 60,
	}
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.Local)
	rng := rand.New(rand.NewSource(1))

	// 03:00 with a 7..23 window: next run is today 07:00 sharp, no jitter.
	got := NextRun(now, eff, rng)
	want := time.Date(2026, 3, 10, 7, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("NextRun = %s, want %s", got, want)
	}
}

func TestNextRunInsideWindowNoJitter(t *testing.T) {
	t.Parallel()

	eff := Effective{StartHour: 7, EndHour: 23, IntervalHours: 4}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	got := NextRun(now, eff, rand.New(rand.NewSource(1)))
	if want := now.Add(4 * time.Hour); !got.Equal(want) {
		t.Errorf("NextRun = %s, want %s", got, want)
	}
}

func TestNextRunJitterBounds(t *testing.T) {
	t.Parallel()

	eff := Effective{StartHour: 0, EndHour: 24, IntervalHours: 4, JitterMinutes: 30}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	rng := rand.New(rand.NewSource(42))

	lo := now.Add(4*time.Hour - 30*time.Minute)
	hi := now.Add(4*time.Hour + 30*time.Minute)
	sawEarly, sawLate := false, false
	for i := 0; i < 200; i++ {
		got := NextRun(now, eff, rng)
		if got.Before(lo) || got.After(hi) {
			t.Fatalf("NextRun = %s outside [%s, %s]", got, lo, hi)
		}
		if got.Before(now.Add(4 * time.Hour)) {
			sawEarly = true
		}
		if got.After(now.Add(4 * time.Hour)) {
			sawLate = true
		}
	}
	if !sawEarly || !sawLate {
		t.Error("jitter never produced both early and late offsets")
	}
}

func TestNextRunJitteredTargetOutsideWindow(t *testing.T) {
	t.Parallel()

	// 21:30 + 2h lands at 23:30, past the 23:00 close, so the run moves to
	// the next window start regardless of jitter sign.
	eff := Effective{StartHour: 7, EndHour: 23, IntervalHours: 2, JitterMinutes: 10}
	now := time.Date(2026, 3, 10, 21, 30, 0, 0, time.Local)
	rng := rand.New(rand.NewSource(7))

	want := time.Date(2026, 3, 11, 7, 0, 0, 0, time.Local)
	for i := 0; i < 50; i++ {
		if got := NextRun(now, eff, rng); !got.Equal(want) {
			t.Fatalf("NextRun = %s, want window start %s", got, want)
		}
	}
}

func TestNextRunCronIgnoresWindow(t *testing.T) {
	t.Parallel()

	sched, err := cronParser.Parse("0 */2 * * *")
	if err != nil {
		t.Fatal(err)
	}
	eff := Effective{
		Cadence: CadenceCron, Cron: sched,
		StartHour: 7, EndHour: 23,
	}
	now := time.Date(2026, 3, 10, 3, 10, 0, 0, time.Local)

	got := NextRun(now, eff, nil)
	want := time.Date(2026, 3, 10, 4, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("cron NextRun = %s, want %s (active hours must not apply)", got, want)
	}
}

func TestFixedDue(t *testing.T) {
	t.Parallel()

	eff := Effective{Cadence: CadenceFixed, FixedTimes: []string{"07:30", "22:00"}}

	key, due := FixedDue(time.Date(2026, 3, 10, 7, 30, 45, 0, time.Local), eff)
	if !due {
		t.Fatal("07:30:45 not due for fixed time 07:30")
	}
	if key != "2026-03-10 07:30" {
		t.Errorf("key = %q, want %q", key, "2026-03-10 07:30")
	}

	if _, due := FixedDue(time.Date(2026, 3, 10, 7, 31, 0, 0, time.Local), eff); due {
		t.Error("07:31 reported due")
	}

	// Same wall time a day later yields a distinct key.
	key2, _ := FixedDue(time.Date(2026, 3, 11, 7, 30, 0, 0, time.Local), eff)
	if key2 == key {
		t.Error("keys for different days collide")
	}
}
