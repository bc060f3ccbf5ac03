package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		cron     string
		duration time.Duration
	}{
		{name: "cron", raw: "*/2 * * * *", kind: SpecCron, source: "cron", cron: "*/2 * * * *"},
		{name: "cron with seconds", raw: "*/5 * * * * *", kind: SpecCron, source: "cron", cron: "*/5 * * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", cron: "0 0 * * *"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron", cron: "@hourly"},
		{name: "sunday as 7", raw: "0 0 12 * * 7", kind: SpecCron, source: "cron", cron: "0 0 12 * * 0"},
		{name: "range ending at 7", raw: "0 9 * * 5-7", kind: SpecCron, source: "cron", cron: "0 9 * * 5-6,0"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecCron && got.Cron != tt.cron {
				t.Fatalf("Cron = %q, want %q", got.Cron, tt.cron)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "61 * * * *", "* * * * * * * *", "interval:-5s", "00:00"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestNextRuns(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC) // Monday

	tests := []struct {
		name string
		rule string
		want []time.Time
	}{
		{
			name: "every five seconds",
			rule: "*/5 * * * * *",
			want: []time.Time{
				time.Date(2024, 1, 1, 10, 0, 35, 0, time.UTC),
				time.Date(2024, 1, 1, 10, 0, 40, 0, time.UTC),
				time.Date(2024, 1, 1, 10, 0, 45, 0, time.UTC),
			},
		},
		{
			name: "every two minutes",
			rule: "*/2 * * * *",
			want: []time.Time{
				time.Date(2024, 1, 1, 10, 2, 0, 0, time.UTC),
				time.Date(2024, 1, 1, 10, 4, 0, 0, time.UTC),
				time.Date(2024, 1, 1, 10, 6, 0, 0, time.UTC),
			},
		},
		{
			name: "top of the hour",
			rule: "0 * * * *",
			want: []time.Time{
				time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "sunday noon",
			rule: "0 0 12 * * 7",
			want: []time.Time{
				time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 21, 12, 0, 0, 0, time.UTC),
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRuns(tt.rule, from, time.UTC, len(tt.want))
			if err != nil {
				t.Fatalf("NextRuns(%q) error: %v", tt.rule, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d runs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Fatalf("run %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
