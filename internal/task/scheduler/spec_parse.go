package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule turns operator input into a Schedule. Unlike Cron(), it
// rejects malformed cron expressions, because this is where typos should
// surface.
//
// Supported forms:
//   - Once: "at:2026-10-16T21:00:00+07:00", "at:2026-10-16 21:00" (in now's location), "in:90m"
//   - Cron: "*/5 * * * *", "0 30 9 * * mon-fri", "@hourly", "@every 55m", "cron:<expr>"
//   - Daily: "daily:21:00" (cron shorthand)
//   - Interval: "55m", "2h30m", "02:30" (2h30m), "interval:45s", "every:45s"
func ParseSchedule(raw string, now time.Time) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "at:"):
		return parseAt(strings.TrimSpace(s[len("at:"):]), now)
	case strings.HasPrefix(low, "in:"):
		v := strings.TrimSpace(s[len("in:"):])
		d, err := time.ParseDuration(v)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid delay %q (use a Go duration like '10m')", v)
		}
		if d <= 0 {
			return Schedule{}, fmt.Errorf("delay must be > 0")
		}
		return Once(now.Add(d)), nil
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "daily:"):
		h, m, err := parseHHMM(s[len("daily:"):])
		if err != nil {
			return Schedule{}, err
		}
		return Cron(fmt.Sprintf("0 %d %d * * *", m, h)), nil
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	if reHHMM.MatchString(s) {
		return parseInterval(s)
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Every(d), nil
	}

	return Schedule{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', interval like '55m' or '02:30', or once like 'at:2026-01-02 15:04' / 'in:10m')",
		raw,
	)
}

func parseAt(v string, now time.Time) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("time required after 'at:'")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return Once(t), nil
	}
	loc := now.Location()
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return Once(t), nil
		}
	}
	return Schedule{}, fmt.Errorf("invalid time %q (use RFC3339 or 'YYYY-MM-DD HH:MM')", v)
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron expression required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Schedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Cron(expr), nil
}

func parseInterval(v string) (Schedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Every(d), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Every(d), nil
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
