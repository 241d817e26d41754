package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind tags a Schedule.
type Kind string

const (
	KindOnce     Kind = "once"
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
)

// cronParser accepts 5-field, 6-field (leading seconds) and descriptor
// (@hourly, @every 5m) expressions.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule decides when a job fires next. Values are immutable; build them
// with Once, Every or Cron.
type Schedule struct {
	kind  Kind
	at    time.Time
	every time.Duration
	expr  string
}

// Once fires a single time at t.
func Once(t time.Time) Schedule { return Schedule{kind: KindOnce, at: t} }

// Every fires at a fixed interval measured from each query instant.
func Every(d time.Duration) Schedule { return Schedule{kind: KindInterval, every: d} }

// Cron fires on a cron expression. The expression is not checked here; a
// malformed one simply never yields a next run.
func Cron(expr string) Schedule { return Schedule{kind: KindCron, expr: strings.TrimSpace(expr)} }

func (s Schedule) Kind() Kind              { return s.kind }
func (s Schedule) At() time.Time           { return s.at }
func (s Schedule) Interval() time.Duration { return s.every }
func (s Schedule) Expr() string            { return s.expr }
func (s Schedule) IsZero() bool            { return s.kind == "" }

// NextRun returns the first fire time strictly after `after`, or false when
// the schedule is exhausted. Cron expressions are evaluated in after's location.
func (s Schedule) NextRun(after time.Time) (time.Time, bool) {
	switch s.kind {
	case KindOnce:
		if s.at.After(after) {
			return s.at, true
		}
		return time.Time{}, false
	case KindInterval:
		if s.every <= 0 {
			return time.Time{}, false
		}
		return after.Add(s.every), true
	case KindCron:
		sched, err := cronParser.Parse(s.expr)
		if err != nil {
			return time.Time{}, false
		}
		next := sched.Next(after)
		if next.IsZero() || !next.After(after) {
			return time.Time{}, false
		}
		return next, true
	default:
		return time.Time{}, false
	}
}

// Validate reports schedules that are wrong regardless of the current time.
// Cron expressions are not parsed here.
func (s Schedule) Validate() error {
	switch s.kind {
	case KindOnce:
		if s.at.IsZero() {
			return errors.New("once: time required")
		}
	case KindInterval:
		if s.every <= 0 {
			return fmt.Errorf("interval must be > 0, got %s", s.every)
		}
	case KindCron:
		if s.expr == "" {
			return errors.New("cron: expression required")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.kind)
	}
	return nil
}

// cronError returns the parse error of a cron schedule (nil for other kinds).
func (s Schedule) cronError() error {
	if s.kind != KindCron {
		return nil
	}
	_, err := cronParser.Parse(s.expr)
	return err
}

func (s Schedule) String() string {
	switch s.kind {
	case KindOnce:
		return "once at " + s.at.Format(time.RFC3339)
	case KindInterval:
		return "every " + s.every.String()
	case KindCron:
		return "cron " + s.expr
	default:
		return "none"
	}
}

type scheduleJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes {"type":"once|interval|cron","value":...}. Once values
// are RFC3339Nano and interval values Go duration strings, so a decoded
// Schedule computes exactly the same next runs.
func (s Schedule) MarshalJSON() ([]byte, error) {
	var v any
	switch s.kind {
	case KindOnce:
		v = s.at.Format(time.RFC3339Nano)
	case KindInterval:
		v = s.every.String()
	case KindCron:
		v = s.expr
	default:
		return nil, fmt.Errorf("marshal schedule: unknown kind %q", s.kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(scheduleJSON{Type: string(s.kind), Value: raw})
}

// UnmarshalJSON accepts the type tag in any case. Interval values may be a
// duration string or a number of nanoseconds.
func (s *Schedule) UnmarshalJSON(b []byte) error {
	var in scheduleJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("unmarshal schedule: %w", err)
	}
	switch Kind(strings.ToLower(strings.TrimSpace(in.Type))) {
	case KindOnce:
		var raw string
		if err := json.Unmarshal(in.Value, &raw); err != nil {
			return fmt.Errorf("unmarshal once schedule: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("unmarshal once schedule: %w", err)
		}
		*s = Once(t)
	case KindInterval:
		var raw string
		if err := json.Unmarshal(in.Value, &raw); err == nil {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("unmarshal interval schedule: %w", err)
			}
			*s = Every(d)
			return nil
		}
		var ns int64
		if err := json.Unmarshal(in.Value, &ns); err != nil {
			return fmt.Errorf("unmarshal interval schedule: %w", err)
		}
		*s = Every(time.Duration(ns))
	case KindCron:
		var raw string
		if err := json.Unmarshal(in.Value, &raw); err != nil {
			return fmt.Errorf("unmarshal cron schedule: %w", err)
		}
		*s = Cron(raw)
	default:
		return fmt.Errorf("unmarshal schedule: unknown type %q", in.Type)
	}
	return nil
}
