package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes the normalized kind of a recurrence rule.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

func (k SpecKind) String() string {
	switch k {
	case SpecCron:
		return "cron"
	case SpecInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// ParsedSpec represents a parsed recurrence rule.
//
// Supported forms:
//   - Cron with seconds: "*/5 * * * * *" (sec min hour dom month dow)
//   - Cron without seconds: "0 * * * *", "*/2 * * * *"
//   - Descriptors: "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

// Spec returns the form handed to the cron parser.
func (p ParsedSpec) Spec() string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a rule into either a cron expression or an interval
// duration. Cron expressions are normalized (day-of-week 7 becomes 0) and
// checked against the cron parser, so an error here means the rule can never
// be registered.
func ParseSchedule(raw string) (ParsedSpec, error) {
	ps, err := classify(raw)
	if err != nil {
		return ParsedSpec{}, err
	}
	if ps.Kind == SpecCron {
		ps.Cron = normalizeCron(ps.Cron)
		if _, err := NewParser().Parse(ps.Cron); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid cron rule %q: %w", raw, err)
		}
	}
	return ps, nil
}

func classify(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			d, src, err := parseInterval(s[len(p):])
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
		}
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}

	if reHHMM.MatchString(s) {
		d, _, err := parseHHMMDuration(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * * *', HH:MM like '02:30', or duration like '55m')",
		raw,
	)
}

// normalizeCron rewrites day-of-week 7 (Sunday, as many crontabs allow) to 0.
func normalizeCron(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "@") {
		return strings.Join(fields, " ")
	}
	if len(fields) != 5 && len(fields) != 6 {
		return strings.Join(fields, " ")
	}
	last := len(fields) - 1
	fields[last] = normalizeDow(fields[last])
	return strings.Join(fields, " ")
}

func normalizeDow(field string) string {
	items := strings.Split(field, ",")
	out := make([]string, 0, len(items)+1)
	sunday := false
	for _, it := range items {
		switch {
		case it == "7":
			sunday = true
		case strings.HasSuffix(it, "-7") && !strings.Contains(it, "/"):
			lo, err := strconv.Atoi(strings.TrimSuffix(it, "-7"))
			if err != nil || lo > 6 {
				out = append(out, it)
				continue
			}
			sunday = true
			if lo == 6 {
				out = append(out, "6")
			} else {
				out = append(out, fmt.Sprintf("%d-6", lo))
			}
		default:
			if it == "0" {
				sunday = true
				continue
			}
			out = append(out, it)
		}
	}
	if sunday {
		out = append(out, "0")
	}
	return strings.Join(out, ",")
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, _, err := parseHHMMDuration(v)
		return d, "hhmm", err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}

func parseHHMMDuration(v string) (time.Duration, string, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, "", fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, "", fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "hhmm", nil
}

// NextRuns returns the next n trigger times for rule after from, in loc.
func NextRuns(rule string, from time.Time, loc *time.Location, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be > 0, got %d", n)
	}
	ps, err := ParseSchedule(rule)
	if err != nil {
		return nil, err
	}
	var sched cron.Schedule
	if ps.Kind == SpecInterval {
		sched = cron.Every(ps.Every)
	} else {
		sched, err = NewParser().Parse(ps.Cron)
		if err != nil {
			return nil, err
		}
	}
	if loc == nil {
		loc = time.Local
	}
	t := from.In(loc)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
