package scheduler

import (
	"encoding/json"
	"testing"
	"time"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func TestOnceNextRun(t *testing.T) {
	t.Parallel()
	at := t0.Add(10 * time.Second)
	s := Once(at)

	for _, after := range []time.Time{t0, at.Add(-time.Nanosecond), t0.Add(-time.Hour)} {
		got, ok := s.NextRun(after)
		if !ok || !got.Equal(at) {
			t.Fatalf("NextRun(%v) = %v,%v want %v,true", after, got, ok, at)
		}
	}
	for _, after := range []time.Time{at, at.Add(time.Second)} {
		if _, ok := s.NextRun(after); ok {
			t.Fatalf("NextRun(%v) should be exhausted", after)
		}
	}
}

func TestIntervalNextRunStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	s := Every(90 * time.Second)
	cur := t0
	for i := 0; i < 50; i++ {
		next, ok := s.NextRun(cur)
		if !ok {
			t.Fatalf("interval exhausted at step %d", i)
		}
		if !next.Equal(cur.Add(90 * time.Second)) {
			t.Fatalf("step %d: next = %v, want %v", i, next, cur.Add(90*time.Second))
		}
		if !next.After(cur) {
			t.Fatalf("step %d: not increasing", i)
		}
		cur = next
	}
}

func TestIntervalNonPositiveNeverFires(t *testing.T) {
	t.Parallel()
	for _, d := range []time.Duration{0, -time.Second} {
		if _, ok := Every(d).NextRun(t0); ok {
			t.Fatalf("Every(%v) should never fire", d)
		}
		if err := Every(d).Validate(); err == nil {
			t.Fatalf("Every(%v).Validate() should fail", d)
		}
	}
}

func TestCronNextRun(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr  string
		after time.Time
		want  time.Time
	}{
		{"*/5 * * * *", t0, t0.Add(5 * time.Minute)},
		{"*/5 * * * *", t0.Add(time.Second), t0.Add(5 * time.Minute)},
		{"30 * * * * *", t0, t0.Add(30 * time.Second)},
		{"0 0 13 * * *", t0, t0.Add(time.Hour)},
		{"@hourly", t0.Add(time.Minute), t0.Add(time.Hour)},
		{"0 9 * * mon", t0, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, ok := Cron(tt.expr).NextRun(tt.after)
		if !ok {
			t.Fatalf("Cron(%q).NextRun(%v) exhausted", tt.expr, tt.after)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("Cron(%q).NextRun(%v) = %v, want %v", tt.expr, tt.after, got, tt.want)
		}
		if !got.After(tt.after) {
			t.Fatalf("Cron(%q) result not strictly after query", tt.expr)
		}
	}
}

func TestCronMalformedIsExhausted(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"", "not cron", "61 * * * *", "* * *"} {
		s := Cron(expr)
		for i := 0; i < 3; i++ {
			if _, ok := s.NextRun(t0.Add(time.Duration(i) * time.Hour)); ok {
				t.Fatalf("Cron(%q) should never yield a next run", expr)
			}
		}
	}
	if Cron("61 * * * *").cronError() == nil {
		t.Fatal("cronError should report the parse failure")
	}
}

func TestScheduleJSONRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []Schedule{
		Once(time.Date(2026, 10, 16, 12, 0, 0, 123456789, time.FixedZone("WIB", 7*3600))),
		Every(61*time.Second + 5*time.Millisecond),
		Cron("0 */15 * * * *"),
		Cron("not a cron"),
	}
	for _, in := range cases {
		b, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal %v: %v", in, err)
		}
		var out Schedule
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if out.Kind() != in.Kind() {
			t.Fatalf("kind = %s, want %s", out.Kind(), in.Kind())
		}
		for _, q := range []time.Time{t0, t0.Add(37 * time.Minute), t0.Add(-48 * time.Hour)} {
			a, aok := in.NextRun(q)
			b2, bok := out.NextRun(q)
			if aok != bok || !a.Equal(b2) {
				t.Fatalf("%s: NextRun(%v) differs after round trip: %v,%v vs %v,%v", b, q, a, aok, b2, bok)
			}
		}
	}
}

func TestScheduleUnmarshalLegacyTags(t *testing.T) {
	t.Parallel()
	var s Schedule
	if err := json.Unmarshal([]byte(`{"type":"Interval","value":60000000000}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Kind() != KindInterval || s.Interval() != time.Minute {
		t.Fatalf("got %v", s)
	}
	if err := json.Unmarshal([]byte(`{"type":"Weekly","value":"x"}`), &s); err == nil {
		t.Fatal("unknown type should fail")
	}
}
